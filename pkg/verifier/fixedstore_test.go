package verifier

import (
	"context"

	"github.com/rynxs/operator-core/pkg/event"
	"github.com/rynxs/operator-core/pkg/eventstore"
)

// fixedStore replays a fixed, possibly-tampered slice of already-hashed
// events; used by both the scenario and property tests to exercise
// VerifyChain/VerifyPointers against a log whose contents are fully under
// the test's control (something a real store, which re-validates on
// Read, won't let a caller construct directly).
type fixedStore struct {
	events []event.Event
	hashes map[int64]string
}

func (s *fixedStore) Append(ctx context.Context, e event.Event, expectedPrevHash *string) (eventstore.AppendResult, error) {
	panic("not used")
}
func (s *fixedStore) AppendWithRetry(ctx context.Context, e event.Event, maxRetries int) (eventstore.AppendResult, error) {
	panic("not used")
}
func (s *fixedStore) Read(ctx context.Context, opts eventstore.ReadOptions) ([]event.Event, error) {
	return s.events, nil
}
func (s *fixedStore) GetLastHash(ctx context.Context) (string, error) {
	if len(s.events) == 0 {
		return "", nil
	}
	last := s.events[len(s.events)-1]
	seq, _ := last.RequireSeq()
	return s.hashes[seq], nil
}
func (s *fixedStore) GetEventHash(ctx context.Context, seq int64) (string, bool, error) {
	h, ok := s.hashes[seq]
	return h, ok, nil
}

func newFixedStoreFrom(ctx context.Context, store eventstore.Store) (*fixedStore, error) {
	events, err := store.Read(ctx, eventstore.ReadOptions{})
	if err != nil {
		return nil, err
	}
	hashes := map[int64]string{}
	for _, e := range events {
		seq, err := e.RequireSeq()
		if err != nil {
			return nil, err
		}
		h, ok, err := store.GetEventHash(ctx, seq)
		if err != nil {
			return nil, err
		}
		if ok {
			hashes[seq] = h
		}
	}
	return &fixedStore{events: append([]event.Event{}, events...), hashes: hashes}, nil
}

func cloneWithField(payload map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	out[key] = value
	return out
}
