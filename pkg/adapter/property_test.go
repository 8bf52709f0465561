//go:build property
// +build property

package adapter

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestTranslationDeterminism checks P6: two observations differing only in
// (a) a kubectl-managed annotation, (b) a label key outside the allowlist,
// (c) an explicit default vs. an absent field, produce byte-equal
// AgentObserved payloads (same spec_hash, same labels/annotations).
func TestTranslationDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ignorable variation does not change the translated event", prop.ForAll(
		func(name, noise, ownerLabelValue string) bool {
			if name == "" {
				name = "agent"
			}

			bare := Observation{
				Name:      name,
				Namespace: "ns",
				Spec:      map[string]any{"team": "platform"},
				Labels:    map[string]string{"app": name},
			}
			noisy := Observation{
				Name:      name,
				Namespace: "ns",
				// Explicit defaults equal to what normalizeSpec fills in.
				Spec: map[string]any{
					"team": "platform",
					"role": "worker",
					"permissions": map[string]any{
						"canAssignTasks":     false,
						"canAccessAuditLogs": false,
						"canManageTeam":      false,
					},
				},
				Labels: map[string]string{
					"app":   name,
					"owner": ownerLabelValue, // outside allowlist
				},
				Annotations: map[string]string{
					"kubectl.kubernetes.io/last-applied-configuration": noise,
				},
			}

			a1, err := New(0)
			if err != nil {
				return false
			}
			a2, err := New(0)
			if err != nil {
				return false
			}

			e1, err := a1.AgentObserved(bare)
			if err != nil {
				return false
			}
			e2, err := a2.AgentObserved(noisy)
			if err != nil {
				return false
			}

			if e1.Payload["spec_hash"] != e2.Payload["spec_hash"] {
				return false
			}
			labels1, _ := e1.Payload["labels"].(map[string]any)
			labels2, _ := e2.Payload["labels"].(map[string]any)
			if len(labels1) != len(labels2) {
				return false
			}
			for k, v := range labels1 {
				if labels2[k] != v {
					return false
				}
			}
			annotations2, _ := e2.Payload["annotations"].(map[string]any)
			if _, present := annotations2["kubectl.kubernetes.io/last-applied-configuration"]; present {
				return false
			}
			return true
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
