// Package eventstore defines the append-only event log contract (spec §4.2):
// CAS append, retrying append, filtered ordered read, and tail-hash lookup.
// Concrete backends live in filestore and s3store.
package eventstore

import (
	"context"
	"time"

	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/event"
)

// AppendResult is the outcome of a single Append call. Its field set is
// grounded on original_source/engine/log/file_store.py's _append_locked
// return shape (event, seq, event_hash, prev_hash, committed, conflict,
// observed_prev_hash) — the AppendResult/append_with_retry definitions
// themselves were missing from the retrieved store.py, so this shape is
// reconstructed from that consuming code plus spec §4.2's contract text.
type AppendResult struct {
	Event            event.Event
	Seq              int64
	EventHash        string
	PrevHash         string
	Committed        bool
	Conflict         bool
	ObservedPrevHash string
}

// ReadOptions filters Read. FromSeq is inclusive; zero value reads from the
// start. An empty AggregateID means no aggregate filter.
type ReadOptions struct {
	AggregateID string
	FromSeq     int64
}

// Store is the append-only event log contract. Implementations MUST
// serialize Append per log (advisory file lock or conditional-put) and MUST
// re-validate the hash chain on Read, failing on any gap or mismatch.
type Store interface {
	// Append assigns seq = last_seq+1 and commits the record, unless
	// expectedPrevHash is non-nil and disagrees with the current tail hash,
	// in which case nothing is written and the result reports Conflict.
	Append(ctx context.Context, e event.Event, expectedPrevHash *string) (AppendResult, error)

	// AppendWithRetry refreshes the tail hash and retries on conflict up to
	// maxRetries times, returning the last conflicting result's error
	// context if retries are exhausted.
	AppendWithRetry(ctx context.Context, e event.Event, maxRetries int) (AppendResult, error)

	// Read returns the ordered, filtered event stream, already validated
	// against the hash chain.
	Read(ctx context.Context, opts ReadOptions) ([]event.Event, error)

	// GetLastHash returns the current tail's event_hash, or ZeroHash for an
	// empty log.
	GetLastHash(ctx context.Context) (string, error)

	// GetEventHash returns the event_hash recorded at seq, or ok=false if no
	// such record exists.
	GetEventHash(ctx context.Context, seq int64) (hash string, ok bool, err error)
}

// AppendWithRetry is a backend-agnostic helper backends can embed/call: it
// implements the refresh-tail-and-retry policy described in spec §4.2 on
// top of a bare Append, for backends that don't need to specialize it.
func AppendWithRetry(ctx context.Context, s Store, e event.Event, maxRetries int) (AppendResult, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		tail, err := s.GetLastHash(ctx)
		if err != nil {
			return AppendResult{}, err
		}
		result, err := s.Append(ctx, e, &tail)
		if err != nil {
			return AppendResult{}, err
		}
		if result.Committed {
			return result, nil
		}
		lastErr = errs.Concurrency("append conflict: observed_prev_hash=%s expected=%s (attempt %d/%d)",
			result.ObservedPrevHash, tail, attempt+1, maxRetries+1)
		select {
		case <-ctx.Done():
			return AppendResult{}, ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return AppendResult{}, lastErr
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 5 * time.Millisecond
	if d > 200*time.Millisecond {
		d = 200 * time.Millisecond
	}
	return d
}
