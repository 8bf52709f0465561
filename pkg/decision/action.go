// Package decision implements the pure decide(state, event) -> []Action
// function (C8, spec §4.5), grounded on
// original_source/operator/universe_operator/decision_layer.py.
package decision

import (
	"sort"

	"github.com/rynxs/operator-core/pkg/canonical"
	"github.com/rynxs/operator-core/pkg/ids"
)

// Action is {action_type, target, params}; action_id is derived, never
// stored as part of the value's identity beyond being computed from these
// three fields (spec §3).
type Action struct {
	ActionType string
	Target     string
	Params     map[string]any
}

// ID returns stable_id(action_type, target, canonical_json(params))
// (spec §3/§4.5).
func (a Action) ID() (string, error) {
	paramsJSON, err := canonical.String(a.Params)
	if err != nil {
		return "", err
	}
	return ids.StableID(a.ActionType, a.Target, paramsJSON), nil
}

// sortKey returns (action_type, target, canonical_json(params)) for the
// total order spec §4.5 requires.
func (a Action) sortKey() (string, string, string, error) {
	paramsJSON, err := canonical.String(a.Params)
	if err != nil {
		return "", "", "", err
	}
	return a.ActionType, a.Target, paramsJSON, nil
}

// SortActions sorts actions by (action_type, target, canonical_json(params))
// in place and returns it, matching spec §4.5's determinism contract: two
// correct implementations emit byte-equal action lists.
func SortActions(actions []Action) ([]Action, error) {
	keys := make([][3]string, len(actions))
	for i, a := range actions {
		t, tg, p, err := a.sortKey()
		if err != nil {
			return nil, err
		}
		keys[i] = [3]string{t, tg, p}
	}
	idx := make([]int, len(actions))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		a, b := keys[idx[i]], keys[idx[j]]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	out := make([]Action, len(actions))
	for i, j := range idx {
		out[i] = actions[j]
	}
	return out, nil
}
