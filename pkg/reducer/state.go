// Package reducer implements the pure state-transition registry (C5) and
// the operator-core domain's UniverseState (spec §3/§4.3), grounded on
// original_source/engine/core/{state,reducer}.py and
// operator/universe_operator/reducer_handlers.py.
package reducer

// State is the generic, immutable container: a version counter and a
// string-keyed map of aggregate values. Each reducer application produces a
// new State one version ahead; aggregates is semantically unordered
// (canonical serialization sorts keys via pkg/canonical).
type State struct {
	Version    uint64
	Aggregates map[string]any
}

// NewState returns the empty initial State (version 0).
func NewState() State {
	return State{Version: 0, Aggregates: map[string]any{}}
}

// GetAgg returns the current value stored for aggregateID, or nil if unset.
func (s State) GetAgg(aggregateID string) any {
	return s.Aggregates[aggregateID]
}

// WithAgg returns a NEW State with aggregateID set to aggState; s itself is
// unchanged.
func (s State) WithAgg(aggregateID string, aggState any) State {
	next := make(map[string]any, len(s.Aggregates)+1)
	for k, v := range s.Aggregates {
		next[k] = v
	}
	next[aggregateID] = aggState
	return State{Version: s.Version + 1, Aggregates: next}
}

// UNIVERSE_AGG_ID is the designated global_aggregate_id (spec §4.3) under
// which the operator-core domain's UniverseState is stored, independent of
// any individual event's own AggregateID (which continues to carry the
// per-agent "namespace/name" identity for log filtering and payload
// content).
const UNIVERSE_AGG_ID = "universe"

// AgentRecord is the latest observed spec snapshot for one agent plus its
// spec_hash, grounded on UniverseState.agents[id] (spec §3).
type AgentRecord struct {
	Name      string         `json:"name"`
	Namespace string         `json:"namespace"`
	Spec      map[string]any `json:"spec"`
	SpecHash  string         `json:"spec_hash"`
	Labels    map[string]any `json:"labels"`
}

// ActionDescriptor is one entry of a DesiredEntry's Actions map.
type ActionDescriptor struct {
	ActionType  string `json:"action_type"`
	Target      string `json:"target"`
	Fingerprint string `json:"fingerprint"`
}

// DesiredEntry records the most recent decision for one agent along with
// the four trigger pointers needed to verify provenance (spec §3 Invariant 2).
type DesiredEntry struct {
	Actions           map[string]ActionDescriptor `json:"actions"`
	ActionsHash       string                      `json:"actions_hash"`
	TriggerEventSeq   int64                       `json:"trigger_event_seq"`
	TriggerEventHash  string                      `json:"trigger_event_hash"`
	TriggerEventType  string                      `json:"trigger_event_type"`
	TriggerSpecHash   string                      `json:"trigger_spec_hash"`
}

// AppliedEntry records a successful action application.
type AppliedEntry struct {
	ActionType string `json:"action_type"`
	Target     string `json:"target"`
	ResultCode string `json:"result_code"`
	AppliedSeq int64  `json:"applied_seq"`
}

// FailureEntry records a failed action application.
type FailureEntry struct {
	ActionID    string `json:"action_id"`
	ResultCode  string `json:"result_code"`
	ErrorCode   string `json:"error_code"`
	ErrorType   string `json:"error_type"`
	ErrorStatus int    `json:"error_status"`
	ErrorReason string `json:"error_reason"`
	FailedSeq   int64  `json:"failed_seq"`
}

// UniverseState is the domain aggregate named in spec §3: the reducer's
// sole global_aggregate_id value.
type UniverseState struct {
	Agents            map[string]AgentRecord `json:"agents"`
	LastSeenSpecHash  map[string]string      `json:"last_seen_spec_hash"`
	Desired           map[string]DesiredEntry `json:"desired"`
	Applied           map[string]AppliedEntry `json:"applied"`
	Failures          []FailureEntry          `json:"failures"`
}

// InitialUniverseState returns an empty UniverseState with all maps
// initialized (never nil, so canonical serialization emits `{}` rather than
// `null`).
func InitialUniverseState() UniverseState {
	return UniverseState{
		Agents:           map[string]AgentRecord{},
		LastSeenSpecHash: map[string]string{},
		Desired:          map[string]DesiredEntry{},
		Applied:          map[string]AppliedEntry{},
		Failures:         []FailureEntry{},
	}
}

// asUniverse coerces a State's "universe" aggregate value (any, nil on a
// fresh state) into a UniverseState, defaulting to an empty one.
func asUniverse(v any) UniverseState {
	if v == nil {
		return InitialUniverseState()
	}
	u, ok := v.(UniverseState)
	if !ok {
		return InitialUniverseState()
	}
	return u
}

// Universe extracts the UniverseState from s, defaulting to empty.
func Universe(s State) UniverseState {
	return asUniverse(s.GetAgg(UNIVERSE_AGG_ID))
}
