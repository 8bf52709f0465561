// Package engine is the top-level reconciliation driver: the single
// component that owns one live clock.Logical reference and threads its
// ticks through every event this process emits, as spec §5 requires
// ("the engine adapter holds the only live reference and advances it
// exactly once per emitted event" — generalized here to the one driver
// loop that calls the adapter, since ActionsDecided/ActionApplied/
// ActionFailed also carry a logical ts and must share the same clock).
// Grounded on original_source/operator/universe_operator/reconciler.py's
// observe -> decide -> execute loop and the teacher's cmd/helm/main.go
// top-level wiring style.
package engine

import (
	"context"
	"log/slog"

	"github.com/rynxs/operator-core/pkg/adapter"
	"github.com/rynxs/operator-core/pkg/decision"
	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/event"
	"github.com/rynxs/operator-core/pkg/eventstore"
	"github.com/rynxs/operator-core/pkg/executor"
	"github.com/rynxs/operator-core/pkg/reducer"
	"github.com/rynxs/operator-core/pkg/replay"
)

// ActionOutcome pairs a dispatched action with its resulting feedback
// event and append seq.
type ActionOutcome struct {
	Action        decision.Action
	FeedbackEvent event.Event
	Seq           int64
}

// ReconcileResult is everything one Reconcile call produced, in commit
// order.
type ReconcileResult struct {
	Trigger        event.Event
	ActionsDecided event.Event
	Outcomes       []ActionOutcome
	State          reducer.State
}

// Driver is the single-writer reconciliation loop (spec §5: exactly one
// writer process per log). It is not safe for concurrent Reconcile calls
// against the same store.
type Driver struct {
	store    eventstore.Store
	adapter  *adapter.Adapter
	reducer  *reducer.Reducer
	decider  *decision.Decider
	executor *executor.Executor
	log      *slog.Logger
	writerID string
}

// New constructs a Driver. logger may be nil, in which case slog.Default()
// is used.
func New(store eventstore.Store, ad *adapter.Adapter, rdcr *reducer.Reducer, dec *decision.Decider, exec *executor.Executor, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{store: store, adapter: ad, reducer: rdcr, decider: dec, executor: exec, log: logger}
}

// WithWriterID stamps every event this driver appends with a
// meta.writer_id annotation identifying the process instance (spec §6's
// RYNXS_WRITER_ID). The annotation is added before append, so it is part of
// the event's hash input under both event.HashV1 and event.HashV2 (which
// omits meta only when it is empty); the chain stays valid, but the same
// event appended under a different writer id gets a different event_hash.
func (d *Driver) WithWriterID(id string) *Driver {
	d.writerID = id
	return d
}

func (d *Driver) stampWriter(e event.Event) event.Event {
	if d.writerID == "" {
		return e
	}
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	e.Meta["writer_id"] = d.writerID
	return e
}

// Reconcile runs one full observe -> decide -> execute cycle for obs: it
// appends AgentObserved, decides and appends ActionsDecided (with the four
// trigger pointers), dispatches every decided action through the executor,
// and appends each resulting ActionApplied/ActionFailed event — all ts
// values drawn from the adapter's single ticking clock (spec §9).
func (d *Driver) Reconcile(ctx context.Context, obs adapter.Observation) (ReconcileResult, error) {
	triggerEvt, err := d.adapter.AgentObserved(obs)
	if err != nil {
		d.log.Error("adapter: reject observation", "name", obs.Name, "namespace", obs.Namespace, "error", err)
		return ReconcileResult{}, err
	}

	triggerEvt = d.stampWriter(triggerEvt)
	appendResult, err := d.store.AppendWithRetry(ctx, triggerEvt, 3)
	if err != nil {
		d.log.Error("store: append AgentObserved failed", "error", err)
		return ReconcileResult{}, err
	}
	trigger := appendResult.Event
	triggerSeq, err := trigger.RequireSeq()
	if err != nil {
		return ReconcileResult{}, err
	}
	d.log.Info("observed agent", "aggregate_id", trigger.AggregateID, "seq", triggerSeq, "spec_hash", trigger.Payload["spec_hash"])

	actions, err := d.decider.Decide(trigger)
	if err != nil {
		d.log.Error("decision: decide failed", "seq", triggerSeq, "error", err)
		return ReconcileResult{}, err
	}

	decidedTs := d.adapter.Clock().Now()
	decidedEvt, err := decision.BuildActionsDecidedEvent(actions, trigger, appendResult.EventHash, decidedTs)
	if err != nil {
		return ReconcileResult{}, err
	}
	decidedEvt = d.stampWriter(decidedEvt)
	decidedResult, err := d.store.AppendWithRetry(ctx, decidedEvt, 3)
	if err != nil {
		d.log.Error("store: append ActionsDecided failed", "error", err)
		return ReconcileResult{}, err
	}
	d.log.Info("decided actions", "aggregate_id", trigger.AggregateID, "count", len(actions))

	outcomes := make([]ActionOutcome, 0, len(actions))
	for _, a := range actions {
		ts := d.adapter.Clock().Now()
		feedback, err := d.executor.Apply(ctx, a, ts)
		if err != nil {
			d.log.Error("executor: apply failed", "action_type", a.ActionType, "target", a.Target, "error", err)
			return ReconcileResult{}, err
		}
		feedback = d.stampWriter(feedback)
		fbResult, err := d.store.AppendWithRetry(ctx, feedback, 3)
		if err != nil {
			d.log.Error("store: append feedback failed", "action_type", a.ActionType, "error", err)
			return ReconcileResult{}, err
		}
		fbSeq, err := fbResult.Event.RequireSeq()
		if err != nil {
			return ReconcileResult{}, err
		}
		outcomes = append(outcomes, ActionOutcome{Action: a, FeedbackEvent: fbResult.Event, Seq: fbSeq})
	}

	state, err := d.replayState(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}

	return ReconcileResult{
		Trigger:        trigger,
		ActionsDecided: decidedResult.Event,
		Outcomes:       outcomes,
		State:          state,
	}, nil
}

// replayState folds the full log through the reducer to produce the
// current universe state. Callers that only need this occasionally (e.g.
// the CLI's replay/audit-report commands) should prefer replay.Engine
// directly rather than doing this on every Reconcile in a hot loop.
func (d *Driver) replayState(ctx context.Context) (reducer.State, error) {
	eng := replay.NewEngine(d.store, d.reducer)
	result, err := eng.Run(ctx, replay.Options{})
	if err != nil {
		return reducer.State{}, errs.IntegrityWrap(err, "engine: replay after reconcile failed")
	}
	return result.State, nil
}
