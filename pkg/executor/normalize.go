package executor

import "sort"

// normalizeParams projects an action's params into the shape desired_hash
// and observed_hash are computed over (spec §4.6 step 1): a per-action-type
// function, e.g. a Deployment's env/volume lists sorted by name/path, and a
// PVC projected down to {size, storage_class}.
func normalizeParams(actionType string, params map[string]any) map[string]any {
	switch actionType {
	case "EnsurePVC":
		return normalizePVC(params)
	case "EnsureDeployment":
		return normalizeDeployment(params)
	case "EnsureConfigMap":
		return normalizeConfigMap(params)
	case "EnsureNetworkPolicy":
		return normalizeNetworkPolicy(params)
	default:
		return params
	}
}

func normalizePVC(params map[string]any) map[string]any {
	out := map[string]any{
		"size": params["size"],
	}
	if sc, ok := params["storage_class"]; ok {
		out["storage_class"] = sc
	} else {
		out["storage_class"] = nil
	}
	return out
}

func normalizeConfigMap(params map[string]any) map[string]any {
	return map[string]any{
		"namespace": params["namespace"],
		"data":      params["data"],
	}
}

func normalizeNetworkPolicy(params map[string]any) map[string]any {
	return map[string]any{
		"namespace":    params["namespace"],
		"policy":       params["policy"],
		"pod_selector": params["pod_selector"],
	}
}

func normalizeDeployment(params map[string]any) map[string]any {
	spec, _ := params["spec"].(map[string]any)
	out := map[string]any{
		"namespace": params["namespace"],
	}
	normSpec := map[string]any{
		"replicas":      spec["replicas"],
		"image":         spec["image"],
		"runtime_class": spec["runtime_class"],
		"env":           sortNamedList(spec["env"], "name"),
		"volumes":       sortNamedList(spec["volumes"], "name"),
		"volume_mounts": sortNamedList(spec["volume_mounts"], "mount_path"),
	}
	out["spec"] = normSpec
	return out
}

// sortNamedList sorts a []any of map[string]any entries by the string value
// at key, stable for ties, leaving non-conforming input untouched.
func sortNamedList(v any, key string) []any {
	list, ok := v.([]any)
	if !ok {
		return []any{}
	}
	out := make([]any, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		mi, _ := out[i].(map[string]any)
		mj, _ := out[j].(map[string]any)
		si, _ := mi[key].(string)
		sj, _ := mj[key].(string)
		return si < sj
	})
	return out
}

// immutablePostCreate names action types whose resources cannot be patched
// once created: a conflict always means IMMUTABLE_EXISTS, never PATCHED
// (spec §4.6 step 3).
var immutablePostCreate = map[string]bool{
	"EnsurePVC": true,
}
