package reducer

import (
	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/event"
)

// Handler is a pure state transition for one event type: given the current
// value of the aggregate this event dispatches to (nil if never set) and
// the event, it returns the next aggregate value. Handlers must not mutate
// aggState in place; they return a new value.
type Handler func(aggState any, e event.Event) (any, error)

// AggregateKeyFunc selects which aggregate slot of a State an event applies
// to. The default dispatches on the event's own AggregateID; domains whose
// events carry a per-entity id (e.g. "namespace/name") but whose reducer
// state lives under one designated global_aggregate_id (spec §4.3) override
// this to return a constant.
type AggregateKeyFunc func(e event.Event) string

// Reducer is a pluggable, pure fold: State × Event -> State. It never
// touches a clock, store, or any other I/O.
type Reducer struct {
	handlers  map[string]Handler
	strict    bool
	keyFunc   AggregateKeyFunc
}

// New constructs an empty Reducer. strict controls unknown-event-type
// handling: true fails with a Determinism error, false passes the
// aggregate's state through unchanged (spec §4.3).
func New(strict bool) *Reducer {
	return &Reducer{
		handlers: map[string]Handler{},
		strict:   strict,
		keyFunc:  func(e event.Event) string { return e.AggregateID },
	}
}

// WithAggregateKeyFunc overrides how events are mapped to aggregate keys and
// returns r for chaining.
func (r *Reducer) WithAggregateKeyFunc(f AggregateKeyFunc) *Reducer {
	r.keyFunc = f
	return r
}

// Register binds a Handler to an event type. Registering the same type
// twice replaces the prior handler.
func (r *Reducer) Register(eventType string, h Handler) *Reducer {
	r.handlers[eventType] = h
	return r
}

// Apply folds one event into state, returning the resulting new State.
// Unknown event types leave every aggregate unchanged in lenient mode (the
// returned State is still one version ahead), or are an errs.Determinism
// failure in strict mode.
func (r *Reducer) Apply(state State, e event.Event) (State, error) {
	h, ok := r.handlers[e.Type]
	if !ok {
		if r.strict {
			return state, errs.Determinism("reducer: unknown event type %q (strict mode)", e.Type)
		}
		return State{Version: state.Version + 1, Aggregates: state.Aggregates}, nil
	}
	key := r.keyFunc(e)
	cur := state.GetAgg(key)
	next, err := h(cur, e)
	if err != nil {
		return state, err
	}
	return state.WithAgg(key, next), nil
}
