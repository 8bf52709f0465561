package decision

import (
	"fmt"

	"github.com/rynxs/operator-core/pkg/event"
)

// Decider wraps the compiled egress predicate; decide() itself takes no
// other external input (spec §4.5: "MUST NOT depend on local time,
// randomness, environment, or network").
type Decider struct {
	egress *EgressPredicate
}

// NewDecider constructs a Decider with its egress predicate compiled from
// expr (empty string selects DefaultEgressExpr).
func NewDecider(expr string) (*Decider, error) {
	p, err := CompileEgressPredicate(expr)
	if err != nil {
		return nil, err
	}
	return &Decider{egress: p}, nil
}

// Decide implements decide(state, event) -> []Action (spec §4.5) with the
// event as its only input: the current rule set for AgentObserved is
// self-contained in the event's own payload, so no prior state is taken.
func (d *Decider) Decide(e event.Event) ([]Action, error) {
	if e.Type != "AgentObserved" {
		return nil, nil
	}

	name, _ := e.Payload["name"].(string)
	namespace, _ := e.Payload["namespace"].(string)
	spec, _ := e.Payload["spec"].(map[string]any)

	actions := []Action{
		ensureConfigMap(name, namespace, spec),
		ensurePVC(name, namespace, spec),
		ensureDeployment(name, namespace, spec),
	}

	netpol, err := d.ensureNetworkPolicy(name, namespace, spec)
	if err != nil {
		return nil, err
	}
	actions = append(actions, netpol)

	return SortActions(actions)
}

func ensureConfigMap(name, namespace string, spec map[string]any) Action {
	return Action{
		ActionType: "EnsureConfigMap",
		Target:     name + "-spec",
		Params: map[string]any{
			"namespace": namespace,
			"data": map[string]any{
				"agent.json": spec,
			},
		},
	}
}

func ensurePVC(name, namespace string, spec map[string]any) Action {
	workspace, _ := spec["workspace"].(map[string]any)
	size, _ := workspace["size"].(string)
	if size == "" {
		size = "1Gi"
	}
	params := map[string]any{
		"namespace": namespace,
		"size":      size,
	}
	if sc, ok := workspace["storage_class"]; ok {
		params["storage_class"] = sc
	}
	return Action{
		ActionType: "EnsurePVC",
		Target:     name + "-workspace",
		Params:     params,
	}
}

func ensureDeployment(name, namespace string, spec map[string]any) Action {
	image, _ := spec["image"].(map[string]any)
	repo, _ := image["repository"].(string)
	tag, _ := image["tag"].(string)
	if tag == "" {
		tag = "latest"
	}

	volumes := []any{
		map[string]any{"name": "workspace", "claim_name": name + "-workspace"},
	}
	volumeMounts := []any{
		map[string]any{"name": "workspace", "mount_path": "/workspace"},
	}
	env := []any{
		map[string]any{"name": "AGENT_NAME", "value": name},
		map[string]any{"name": "AGENT_NAMESPACE", "value": namespace},
	}

	return Action{
		ActionType: "EnsureDeployment",
		Target:     name + "-runtime",
		Params: map[string]any{
			"namespace": namespace,
			"spec": map[string]any{
				"replicas":      1,
				"image":         fmt.Sprintf("%s:%s", repo, tag),
				"env":           env,
				"runtime_class": "gvisor",
				"volumes":       volumes,
				"volume_mounts": volumeMounts,
			},
		},
	}
}

func (d *Decider) ensureNetworkPolicy(name, namespace string, spec map[string]any) (Action, error) {
	role, _ := spec["role"].(string)
	permissions, _ := spec["permissions"].(map[string]any)

	allow, err := d.egress.AllowEgress(role, permissions)
	if err != nil {
		return Action{}, err
	}

	policy := "deny-egress"
	target := name + "-deny-egress"
	if allow {
		policy = "allow-egress"
		target = name + "-allow-egress"
	}

	return Action{
		ActionType: "EnsureNetworkPolicy",
		Target:     target,
		Params: map[string]any{
			"namespace": namespace,
			"policy":    policy,
			"pod_selector": map[string]any{
				"app":   "universe-agent",
				"agent": name,
			},
		},
	}, nil
}
