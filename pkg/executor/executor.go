// Package executor applies decided actions against an external resource
// API and emits ActionApplied/ActionFailed feedback events (C9, spec §4.6),
// grounded on original_source/operator/universe_operator/executor_layer.py
// and restructured around the teacher's SafeExecutor idiom (idempotency
// check, gating, outbox scheduling, dispatch, feedback).
package executor

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/rynxs/operator-core/pkg/canonical"
	"github.com/rynxs/operator-core/pkg/decision"
	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/event"
)

// Executor applies decision.Action values, fencing on leadership and
// throttling via an optional rate limiter, exactly as the teacher's
// SafeExecutor gates on decision/intent signatures before dispatch.
type Executor struct {
	api     ResourceAPI
	leader  LeaderChecker
	outbox  OutboxStore
	limiter *rate.Limiter
}

// Option configures an Executor at construction.
type Option func(*Executor)

// WithOutbox attaches a durable OutboxStore.
func WithOutbox(o OutboxStore) Option { return func(e *Executor) { e.outbox = o } }

// WithRateLimit throttles dispatch to r actions/sec, burst b.
func WithRateLimit(r rate.Limit, b int) Option {
	return func(e *Executor) { e.limiter = rate.NewLimiter(r, b) }
}

// WithLeaderChecker fences dispatch to leadership (spec §5).
func WithLeaderChecker(lc LeaderChecker) Option { return func(e *Executor) { e.leader = lc } }

// New constructs an Executor. api may be nil: every action then resolves to
// the NO_API reason code (spec §4.6 step 4).
func New(api ResourceAPI, opts ...Option) *Executor {
	e := &Executor{api: api, leader: AlwaysLeader{}}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Apply realizes one action against the external resource API and returns
// the resulting ActionApplied or ActionFailed event (never both; the
// executor's own failures, as opposed to the action's, are returned as
// err — spec §7: "the executor itself only raises on store failure").
// ts is the logical timestamp the caller's single owned clock has already
// ticked to for this emission (spec §9: one live clock reference threaded
// through the reconciliation loop).
func (e *Executor) Apply(ctx context.Context, a decision.Action, ts int64) (event.Event, error) {
	actionID, err := a.ID()
	if err != nil {
		return event.Event{}, err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return event.Event{}, errs.StorageWrap(err, "executor: rate limiter wait failed")
		}
	}

	isLeader, err := e.leader.IsLeader(ctx)
	if err != nil {
		return event.Event{}, errs.StorageWrap(err, "executor: leader check failed")
	}
	if !isLeader {
		return event.Event{}, errs.Concurrency("executor: lost leadership before applying action %s", actionID)
	}

	if e.outbox != nil {
		rec := OutboxRecord{ActionID: actionID, ActionType: a.ActionType, Target: a.Target, Params: a.Params, Status: "PENDING"}
		if err := e.outbox.Schedule(ctx, rec); err != nil {
			return event.Event{}, errs.StorageWrap(err, "executor: outbox schedule failed for %s", actionID)
		}
	}

	ref := resourceRefFor(a)
	normalized := normalizeParams(a.ActionType, a.Params)
	desiredHash, err := canonical.Hash(normalized)
	if err != nil {
		return event.Event{}, err
	}

	fb, applyErr := e.dispatch(ctx, actionID, a, ref, normalized, desiredHash, ts)

	if e.outbox != nil {
		if applyErr != nil || fb.Type == "ActionFailed" {
			_ = e.outbox.MarkFailed(ctx, actionID)
		} else {
			_ = e.outbox.MarkDone(ctx, actionID)
		}
	}

	return fb, applyErr
}

func resourceRefFor(a decision.Action) ResourceRef {
	namespace, _ := a.Params["namespace"].(string)
	kind := a.ActionType
	if len(kind) > len("Ensure") {
		kind = kind[len("Ensure"):]
	}
	return ResourceRef{Kind: kind, Namespace: namespace, Name: a.Target}
}

// dispatch implements spec §4.6 steps 2-6. Any returned error is an
// executor/store failure (not an action outcome); an action-level failure
// is instead reflected as an ActionFailed event with a nil error.
func (e *Executor) dispatch(ctx context.Context, actionID string, a decision.Action, ref ResourceRef, normalized map[string]any, desiredHash string, ts int64) (event.Event, error) {
	if e.api == nil {
		return e.applied(actionID, a, ref, "NO_API", OpSkip, true, 0, desiredHash, "", ts), nil
	}

	statusCode, err := e.api.Create(ctx, ref, normalized)
	if err == nil {
		return e.applied(actionID, a, ref, "CREATED", OpCreate, false, statusCode, desiredHash, desiredHash, ts), nil
	}

	var conflict *ErrConflict
	if errors.As(err, &conflict) {
		observed, getStatus, getErr := e.api.Get(ctx, ref)
		if getErr != nil {
			return e.failed(actionID, a, toAPIError(getErr, getStatus), ts), nil
		}
		observedHash, hashErr := canonical.Hash(observed)
		if hashErr != nil {
			return event.Event{}, hashErr
		}
		if observedHash == desiredHash {
			return e.applied(actionID, a, ref, "ALREADY_MATCHED", OpNoop, true, getStatus, desiredHash, observedHash, ts), nil
		}
		if immutablePostCreate[a.ActionType] {
			return e.applied(actionID, a, ref, "IMMUTABLE_EXISTS", OpNoop, true, getStatus, desiredHash, observedHash, ts), nil
		}
		patchStatus, patchErr := e.api.Patch(ctx, ref, normalized)
		if patchErr != nil {
			return e.failed(actionID, a, toAPIError(patchErr, patchStatus), ts), nil
		}
		return e.applied(actionID, a, ref, "PATCHED", OpPatch, false, patchStatus, desiredHash, observedHash, ts), nil
	}

	return e.failed(actionID, a, toAPIError(err, statusCode), ts), nil
}

func toAPIError(err error, statusCode int) *APIError {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae
	}
	return &APIError{StatusCode: statusCode, Reason: err.Error()}
}

func (e *Executor) applied(actionID string, a decision.Action, ref ResourceRef, resultCode string, op Operation, noop bool, statusCode int, desiredHash, observedHash string, ts int64) event.Event {
	payload := map[string]any{
		"action_id":     actionID,
		"action_type":   a.ActionType,
		"target":        a.Target,
		"result_code":   resultCode,
		"resource_ref":  fmt.Sprintf("%s/%s/%s", ref.Kind, ref.Namespace, ref.Name),
		"operation":     string(op),
		"noop":          noop,
		"status_code":   statusCode,
		"desired_hash":  desiredHash,
		"observed_hash": observedHash,
	}
	return event.New("ActionApplied", a.Target, ts, payload, nil)
}

func (e *Executor) failed(actionID string, a decision.Action, apiErr *APIError, ts int64) event.Event {
	lowered := lowerAPIError(apiErr.StatusCode, apiErr.Reason)
	payload := map[string]any{
		"action_id":    actionID,
		"action_type":  a.ActionType,
		"target":       a.Target,
		"result_code":  "FAILED",
		"error_code":   lowered.Code,
		"error_type":   string(lowered.Kind),
		"error_status": apiErr.StatusCode,
		"error_reason": apiErr.Reason,
	}
	return event.New("ActionFailed", a.Target, ts, payload, nil)
}
