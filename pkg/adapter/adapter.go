// Package adapter translates an external agent observation into the
// deterministic AgentObserved event (C7, spec §4.4), grounded on
// original_source/operator/universe_operator/engine_adapter.py.
package adapter

import (
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/rynxs/operator-core/pkg/canonical"
	"github.com/rynxs/operator-core/pkg/clock"
	"github.com/rynxs/operator-core/pkg/event"
)

// labelAllowlist is the stable, sorted set of label keys that survive into
// an AgentObserved payload (spec §4.4).
var labelAllowlist = []string{"app", "network-policy", "policy", "role", "team"}

// annotationBlocklistPrefixes names controller-managed annotation prefixes
// dropped before normalization (spec §4.4). kubectl's last-applied-config
// annotation is the canonical example.
var annotationBlocklistPrefixes = []string{
	"kubectl.kubernetes.io/",
	"rynxs-operator.io/last-applied-",
	"rynxs-operator.io/managed-",
}

// Observation is the raw external input: {name, namespace, spec, labels,
// annotations} (spec §4.4). Metadata fields that vary across observers
// (resourceVersion, uid, generation, managedFields, creationTimestamp, any
// status) must never be placed in Spec/Labels/Annotations by the caller —
// the adapter has no way to recover their absence once blended in.
type Observation struct {
	Name        string
	Namespace   string
	Spec        map[string]any
	Labels      map[string]string
	Annotations map[string]string
}

// Adapter holds the mutable logical clock that ticks once per emitted event
// (spec §4.4: "not wall time"). It is not safe for concurrent use without
// external synchronization, matching the single-writer assumption of the
// engine loop it lives in (spec §5).
type Adapter struct {
	clk    clock.Logical
	schema *jsonschema.Schema
}

// New constructs an Adapter with its logical clock starting at startTick
// (0 for a fresh log) and compiles the agent spec validation schema once.
func New(startTick int64) (*Adapter, error) {
	sch, err := compileAgentSpecSchema()
	if err != nil {
		return nil, err
	}
	return &Adapter{clk: clock.New(startTick), schema: sch}, nil
}

// Clock returns the adapter's current logical clock value (read-only; does
// not tick).
func (a *Adapter) Clock() clock.Logical { return a.clk }

// AgentObserved translates obs into an AgentObserved event with Seq unset
// (the store assigns it on append). The adapter's clock ticks exactly once
// per call, whether or not the caller ends up appending the resulting
// event — spec §4.4 only promises the tick accompanies emission, and an
// adapter only emits by calling this method.
func (a *Adapter) AgentObserved(obs Observation) (event.Event, error) {
	if err := validateSpec(a.schema, obs.Spec); err != nil {
		return event.Event{}, err
	}

	normalizedSpec := normalizeSpec(obs.Spec)
	normalizedSpec, err := canonical.Canonicalize(normalizedSpec)
	if err != nil {
		return event.Event{}, err
	}
	specHash, err := specHash16(normalizedSpec)
	if err != nil {
		return event.Event{}, err
	}

	labels := filterLabels(obs.Labels)
	annotations := filterAnnotations(obs.Annotations)

	a.clk = a.clk.Tick()
	tick := a.clk.Now()

	aggregateID := obs.Namespace + "/" + obs.Name
	payload := map[string]any{
		"name":                   obs.Name,
		"namespace":              obs.Namespace,
		"spec":                   normalizedSpec,
		"spec_hash":              specHash,
		"labels":                 labels,
		"annotations":            annotations,
		"observed_logical_time":  tick,
	}

	e := event.New("AgentObserved", aggregateID, tick, payload, nil)
	return e, nil
}

// specHash16 returns SHA-256(canonical_json(normalizedSpec))[0:16] hex
// (spec §4.4).
func specHash16(normalizedSpec any) (string, error) {
	h, err := canonical.Hash(normalizedSpec)
	if err != nil {
		return "", err
	}
	return h[:16], nil
}

func filterLabels(labels map[string]string) map[string]any {
	out := map[string]any{}
	for _, k := range labelAllowlist {
		if v, ok := labels[k]; ok {
			out[k] = v
		}
	}
	return out
}

func filterAnnotations(annotations map[string]string) map[string]any {
	out := map[string]any{}
	keys := make([]string, 0, len(annotations))
	for k := range annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if hasBlockedPrefix(k) {
			continue
		}
		out[k] = annotations[k]
	}
	return out
}

func hasBlockedPrefix(key string) bool {
	for _, p := range annotationBlocklistPrefixes {
		if len(key) >= len(p) && key[:len(p)] == p {
			return true
		}
	}
	return false
}
