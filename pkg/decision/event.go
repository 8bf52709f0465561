package decision

import (
	"github.com/rynxs/operator-core/pkg/canonical"
	"github.com/rynxs/operator-core/pkg/event"
)

// BuildActionsDecidedEvent assembles the ActionsDecided event recording
// actions and the four trigger pointers back to the event that caused them
// (spec §3 Invariant 2, §4.3). trigger must already carry a seq (it was
// read back from the store, or is the just-appended AgentObserved result).
func BuildActionsDecidedEvent(actions []Action, trigger event.Event, triggerHash string, ts int64) (event.Event, error) {
	triggerSeq, err := trigger.RequireSeq()
	if err != nil {
		return event.Event{}, err
	}
	triggerSpecHash, _ := trigger.Payload["spec_hash"].(string)

	actionsMap := make(map[string]any, len(actions))
	for _, a := range actions {
		id, err := a.ID()
		if err != nil {
			return event.Event{}, err
		}
		paramsJSON, err := canonical.String(a.Params)
		if err != nil {
			return event.Event{}, err
		}
		actionsMap[id] = map[string]any{
			"action_type": a.ActionType,
			"target":      a.Target,
			"fingerprint": id,
			"params_json": paramsJSON,
		}
	}
	actionsHash, err := canonical.Hash(actionsMap)
	if err != nil {
		return event.Event{}, err
	}

	payload := map[string]any{
		"agent_id":            trigger.AggregateID,
		"actions":             actionsMap,
		"actions_hash":        actionsHash,
		"trigger_event_seq":   triggerSeq,
		"trigger_event_hash":  triggerHash,
		"trigger_event_type":  trigger.Type,
		"trigger_spec_hash":   triggerSpecHash,
	}
	return event.New("ActionsDecided", trigger.AggregateID, ts, payload, nil), nil
}
