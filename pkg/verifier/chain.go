// Package verifier implements the chain verifier, pointer verifier, and
// decision-proof builder (C11, spec §4.8), grounded on
// original_source/engine/verify/{pointers,proof}.py and the teacher's
// pkg/ledger/ledger.go Verify() idiom (recompute-and-compare, fail at first
// mismatch with the offending index).
package verifier

import (
	"context"
	"fmt"

	"github.com/rynxs/operator-core/pkg/chain"
	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/event"
	"github.com/rynxs/operator-core/pkg/eventstore"
)

// ChainMismatch is {seq, expected, actual} (spec §4.8).
type ChainMismatch struct {
	Seq      int64
	Expected string
	Actual   string
}

func (m ChainMismatch) Error() string {
	return fmt.Sprintf("event_hash mismatch at seq %d: expected %s, actual %s", m.Seq, m.Expected, m.Actual)
}

// VerifyChain re-derives event_hash from prev_hash + canonical event
// fields for every record the store holds, failing at the first mismatch
// (spec §4.8). Because eventstore.Store.Read already performs this same
// check internally (spec §4.2), a successful Read is itself a chain proof;
// VerifyChain exists as a standalone, store-implementation-independent
// re-check for callers (e.g. the CLI's verify command and the decision
// proof builder) that want the explicit ChainMismatch shape rather than a
// generic errs.Integrity error.
func VerifyChain(ctx context.Context, store eventstore.Store) error {
	events, err := store.Read(ctx, eventstore.ReadOptions{})
	if err != nil {
		return err
	}
	prevHash := chain.ZeroHash
	for _, e := range events {
		seq, serr := e.RequireSeq()
		if serr != nil {
			return serr
		}
		expected, ok, herr := store.GetEventHash(ctx, seq)
		if herr != nil {
			return herr
		}
		if !ok {
			return errs.Integrity("verifier: no stored event_hash at seq %d", seq)
		}
		actual, err := chain.EventHash(prevHash, e)
		if err != nil {
			return err
		}
		if actual != expected {
			return ChainMismatch{Seq: seq, Expected: expected, Actual: actual}
		}
		prevHash = actual
	}
	return nil
}

// eventAt returns the event at seq, or ok=false if it doesn't exist.
func eventAt(ctx context.Context, store eventstore.Store, seq int64) (event.Event, bool, error) {
	events, err := store.Read(ctx, eventstore.ReadOptions{FromSeq: seq})
	if err != nil {
		return event.Event{}, false, err
	}
	for _, e := range events {
		s, _ := e.RequireSeq()
		if s == seq {
			return e, true, nil
		}
	}
	return event.Event{}, false, nil
}
