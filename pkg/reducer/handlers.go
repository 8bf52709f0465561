package reducer

import (
	"fmt"

	"github.com/rynxs/operator-core/pkg/event"
)

// NewUniverseReducer returns a Reducer with the four operator-core handlers
// registered and its aggregate key fixed to UNIVERSE_AGG_ID, regardless of
// any individual event's own AggregateID (spec §4.3: "a designated
// global_aggregate_id carries cross-aggregate state"). strict selects
// unknown-event-type handling and MUST match between live append and
// replay (spec §4.3).
func NewUniverseReducer(strict bool) *Reducer {
	r := New(strict).WithAggregateKeyFunc(func(event.Event) string { return UNIVERSE_AGG_ID })
	r.Register("AgentObserved", handleAgentObserved)
	r.Register("ActionsDecided", handleActionsDecided)
	r.Register("ActionApplied", handleActionApplied)
	r.Register("ActionFailed", handleActionFailed)
	return r
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
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

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// handleAgentObserved updates agents[id] and last_seen_spec_hash[id].
func handleAgentObserved(aggState any, e event.Event) (any, error) {
	u := asUniverse(aggState)
	id := e.AggregateID
	name := str(e.Payload, "name")
	namespace := str(e.Payload, "namespace")
	specHash := str(e.Payload, "spec_hash")
	spec := asMap(e.Payload["spec"])
	labels := asMap(e.Payload["labels"])

	agents := cloneAgents(u.Agents)
	agents[id] = AgentRecord{
		Name:      name,
		Namespace: namespace,
		Spec:      spec,
		SpecHash:  specHash,
		Labels:    labels,
	}
	lastSeen := cloneStrings(u.LastSeenSpecHash)
	lastSeen[id] = specHash

	u.Agents = agents
	u.LastSeenSpecHash = lastSeen
	return u, nil
}

// handleActionsDecided replaces desired[agent_id] with its action map plus
// the four trigger pointers (spec §3 Invariant 2).
func handleActionsDecided(aggState any, e event.Event) (any, error) {
	u := asUniverse(aggState)
	agentID := str(e.Payload, "agent_id")
	if agentID == "" {
		agentID = e.AggregateID
	}

	actionsRaw := asMap(e.Payload["actions"])
	actions := make(map[string]ActionDescriptor, len(actionsRaw))
	for id, v := range actionsRaw {
		am := asMap(v)
		actions[id] = ActionDescriptor{
			ActionType:  str(am, "action_type"),
			Target:      str(am, "target"),
			Fingerprint: str(am, "fingerprint"),
		}
	}

	desired := cloneDesired(u.Desired)
	desired[agentID] = DesiredEntry{
		Actions:          actions,
		ActionsHash:      str(e.Payload, "actions_hash"),
		TriggerEventSeq:  i64(e.Payload, "trigger_event_seq"),
		TriggerEventHash: str(e.Payload, "trigger_event_hash"),
		TriggerEventType: str(e.Payload, "trigger_event_type"),
		TriggerSpecHash:  str(e.Payload, "trigger_spec_hash"),
	}
	u.Desired = desired
	return u, nil
}

// handleActionApplied sets applied[action_id].
func handleActionApplied(aggState any, e event.Event) (any, error) {
	u := asUniverse(aggState)
	actionID := str(e.Payload, "action_id")
	if actionID == "" {
		return nil, fmt.Errorf("reducer: ActionApplied missing action_id")
	}
	applied := cloneApplied(u.Applied)
	seq, _ := e.RequireSeq()
	applied[actionID] = AppliedEntry{
		ActionType: str(e.Payload, "action_type"),
		Target:     str(e.Payload, "target"),
		ResultCode: str(e.Payload, "result_code"),
		AppliedSeq: seq,
	}
	u.Applied = applied
	return u, nil
}

// handleActionFailed appends to failures.
func handleActionFailed(aggState any, e event.Event) (any, error) {
	u := asUniverse(aggState)
	seq, _ := e.RequireSeq()
	failures := make([]FailureEntry, len(u.Failures), len(u.Failures)+1)
	copy(failures, u.Failures)
	failures = append(failures, FailureEntry{
		ActionID:    str(e.Payload, "action_id"),
		ResultCode:  str(e.Payload, "result_code"),
		ErrorCode:   str(e.Payload, "error_code"),
		ErrorType:   str(e.Payload, "error_type"),
		ErrorStatus: int(i64(e.Payload, "error_status")),
		ErrorReason: str(e.Payload, "error_reason"),
		FailedSeq:   seq,
	})
	u.Failures = failures
	return u, nil
}

func cloneAgents(m map[string]AgentRecord) map[string]AgentRecord {
	n := make(map[string]AgentRecord, len(m)+1)
	for k, v := range m {
		n[k] = v
	}
	return n
}

func cloneStrings(m map[string]string) map[string]string {
	n := make(map[string]string, len(m)+1)
	for k, v := range m {
		n[k] = v
	}
	return n
}

func cloneDesired(m map[string]DesiredEntry) map[string]DesiredEntry {
	n := make(map[string]DesiredEntry, len(m)+1)
	for k, v := range m {
		n[k] = v
	}
	return n
}

func cloneApplied(m map[string]AppliedEntry) map[string]AppliedEntry {
	n := make(map[string]AppliedEntry, len(m)+1)
	for k, v := range m {
		n[k] = v
	}
	return n
}
