package verifier

import (
	"context"
	"fmt"

	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/eventstore"
)

// PointerMismatch names which of the four trigger pointers on an
// ActionsDecided record disagreed with the record it references
// (spec §4.8/§8 S6's exact wording: "trigger_event_hash mismatch" etc.).
type PointerMismatch struct {
	Seq   int64
	Field string
}

func (m PointerMismatch) Error() string {
	return fmt.Sprintf("%s mismatch at seq %d", m.Field, m.Seq)
}

// VerifyPointers checks, for every ActionsDecided record in store, that
// trigger_event_seq/trigger_event_hash/trigger_event_type/trigger_spec_hash
// agree with the referenced record (spec §4.8, invariant 2).
func VerifyPointers(ctx context.Context, store eventstore.Store) error {
	events, err := store.Read(ctx, eventstore.ReadOptions{})
	if err != nil {
		return err
	}
	for _, e := range events {
		if e.Type != "ActionsDecided" {
			continue
		}
		seq, _ := e.RequireSeq()

		triggerSeq := i64(e.Payload, "trigger_event_seq")
		triggerHash, _ := e.Payload["trigger_event_hash"].(string)
		triggerType, _ := e.Payload["trigger_event_type"].(string)
		triggerSpecHash, _ := e.Payload["trigger_spec_hash"].(string)

		referenced, ok, err := eventAt(ctx, store, triggerSeq)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Integrity("verifier: ActionsDecided at seq %d references missing trigger seq %d", seq, triggerSeq)
		}

		actualHash, ok, err := store.GetEventHash(ctx, triggerSeq)
		if err != nil {
			return err
		}
		if !ok || actualHash != triggerHash {
			return PointerMismatch{Seq: seq, Field: "trigger_event_hash"}
		}
		if referenced.Type != triggerType {
			return PointerMismatch{Seq: seq, Field: "trigger_event_type"}
		}
		actualSpecHash, _ := referenced.Payload["spec_hash"].(string)
		if actualSpecHash != triggerSpecHash {
			return PointerMismatch{Seq: seq, Field: "trigger_spec_hash"}
		}
	}
	return nil
}

func i64(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}
