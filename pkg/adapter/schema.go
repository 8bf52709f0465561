package adapter

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/rynxs/operator-core/pkg/errs"
)

// agentSpecSchema is the Draft 2020-12 shape-check applied to a raw
// observation's spec before normalization (SPEC_FULL.md §4.4), grounded on
// the teacher's pkg/interfaces/agui/agui.go use of
// github.com/santhosh-tekuri/jsonschema/v5. It constrains types (and limits
// role to its enum) but sets no defaults — defaulting happens afterward in
// normalizeSpec so "absent" and "equal to default" still converge.
const agentSpecSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "role": {"type": "string", "enum": ["worker", "manager", "director"]},
    "team": {"type": "string"},
    "permissions": {
      "type": "object",
      "properties": {
        "canAssignTasks": {"type": "boolean"},
        "canAccessAuditLogs": {"type": "boolean"},
        "canManageTeam": {"type": "boolean"}
      },
      "additionalProperties": true
    },
    "image": {
      "type": "object",
      "properties": {
        "repository": {"type": "string"},
        "tag": {"type": "string"},
        "verify": {"type": "boolean"}
      },
      "additionalProperties": true
    },
    "workspace": {
      "type": "object",
      "properties": {
        "size": {"type": "string"},
        "storage_class": {"type": "string"}
      },
      "additionalProperties": true
    }
  },
  "additionalProperties": true
}`

func compileAgentSpecSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("agent-spec.json", bytes.NewReader([]byte(agentSpecSchemaJSON))); err != nil {
		return nil, errs.Config("adapter: failed to load agent spec schema: %v", err)
	}
	sch, err := c.Compile("agent-spec.json")
	if err != nil {
		return nil, errs.Config("adapter: failed to compile agent spec schema: %v", err)
	}
	return sch, nil
}

// validateSpec checks raw spec data against the compiled schema. A
// violation is surfaced as a Determinism error before any normalization or
// hashing occurs (SPEC_FULL.md §4.4: fail before hash).
func validateSpec(sch *jsonschema.Schema, spec map[string]any) error {
	// jsonschema validates against decoded JSON values (map[string]any /
	// []any / json.Number / etc.); round-trip through json to get that
	// canonical decoded shape regardless of how the caller built spec.
	raw, err := json.Marshal(spec)
	if err != nil {
		return errs.Determinism("adapter: spec not json-marshalable: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return errs.Determinism("adapter: spec not json-unmarshalable: %v", err)
	}
	if err := sch.Validate(decoded); err != nil {
		return errs.Determinism("adapter: spec schema validation failed: %v", err)
	}
	return nil
}
