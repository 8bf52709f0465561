package adapter

// normalizeSpec injects the explicit defaults spec §4.4 requires so that
// "absent" and "equal to default" produce identical payloads:
//
//   - role = "worker"
//   - permissions.canAssignTasks / canAccessAuditLogs / canManageTeam = false
//   - image.tag = "latest", image.verify = false
//   - workspace.size = "1Gi"
//
// It never mutates obs's caller-owned map; it returns a fresh tree.
func normalizeSpec(spec map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range spec {
		out[k] = v
	}

	if _, ok := out["role"]; !ok {
		out["role"] = "worker"
	}

	perms := asStringMap(out["permissions"])
	if _, ok := perms["canAssignTasks"]; !ok {
		perms["canAssignTasks"] = false
	}
	if _, ok := perms["canAccessAuditLogs"]; !ok {
		perms["canAccessAuditLogs"] = false
	}
	if _, ok := perms["canManageTeam"]; !ok {
		perms["canManageTeam"] = false
	}
	out["permissions"] = perms

	image := asStringMap(out["image"])
	if _, ok := image["tag"]; !ok {
		image["tag"] = "latest"
	}
	if _, ok := image["verify"]; !ok {
		image["verify"] = false
	}
	out["image"] = image

	workspace := asStringMap(out["workspace"])
	if _, ok := workspace["size"]; !ok {
		workspace["size"] = "1Gi"
	}
	out["workspace"] = workspace

	return out
}

func asStringMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, vv := range m {
			out[k] = vv
		}
		return out
	}
	return map[string]any{}
}
