package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rynxs/operator-core/pkg/decision"
)

type fakeAPI struct {
	existing  map[string]map[string]any
	createErr error
	getErr    error
	patchErr  error
}

func newFakeAPI() *fakeAPI { return &fakeAPI{existing: map[string]map[string]any{}} }

func (f *fakeAPI) key(ref ResourceRef) string { return ref.Kind + "/" + ref.Namespace + "/" + ref.Name }

func (f *fakeAPI) Create(ctx context.Context, ref ResourceRef, normalizedParams map[string]any) (int, error) {
	if f.createErr != nil {
		return 500, f.createErr
	}
	if _, exists := f.existing[f.key(ref)]; exists {
		return 409, &ErrConflict{Ref: ref}
	}
	f.existing[f.key(ref)] = normalizedParams
	return 201, nil
}

func (f *fakeAPI) Get(ctx context.Context, ref ResourceRef) (map[string]any, int, error) {
	if f.getErr != nil {
		return nil, 500, f.getErr
	}
	v, ok := f.existing[f.key(ref)]
	if !ok {
		return nil, 404, &APIError{StatusCode: 404, Reason: "not found"}
	}
	return v, 200, nil
}

func (f *fakeAPI) Patch(ctx context.Context, ref ResourceRef, normalizedParams map[string]any) (int, error) {
	if f.patchErr != nil {
		return 500, f.patchErr
	}
	f.existing[f.key(ref)] = normalizedParams
	return 200, nil
}

func configMapAction(name, namespace string) decision.Action {
	return decision.Action{
		ActionType: "EnsureConfigMap",
		Target:     name + "-spec",
		Params: map[string]any{
			"namespace": namespace,
			"data":      map[string]any{"agent.json": map[string]any{"role": "worker"}},
		},
	}
}

func TestExecutor_NilAPIResolvesNoOp(t *testing.T) {
	e := New(nil)
	fb, err := e.Apply(context.Background(), configMapAction("a", "ns"), 1)
	require.NoError(t, err)
	assert.Equal(t, "ActionApplied", fb.Type)
	assert.Equal(t, "NO_API", fb.Payload["result_code"])
	assert.Equal(t, string(OpSkip), fb.Payload["operation"])
}

func TestExecutor_CreateSucceeds(t *testing.T) {
	e := New(newFakeAPI())
	fb, err := e.Apply(context.Background(), configMapAction("a", "ns"), 1)
	require.NoError(t, err)
	assert.Equal(t, "ActionApplied", fb.Type)
	assert.Equal(t, "CREATED", fb.Payload["result_code"])
	assert.Equal(t, string(OpCreate), fb.Payload["operation"])
}

func TestExecutor_ConflictWithMatchingStateIsNoop(t *testing.T) {
	api := newFakeAPI()
	e := New(api)
	action := configMapAction("a", "ns")

	_, err := e.Apply(context.Background(), action, 1)
	require.NoError(t, err)

	fb, err := e.Apply(context.Background(), action, 2)
	require.NoError(t, err)
	assert.Equal(t, "ActionApplied", fb.Type)
	assert.Equal(t, "ALREADY_MATCHED", fb.Payload["result_code"])
	assert.Equal(t, string(OpNoop), fb.Payload["operation"])
}

func TestExecutor_ConflictWithDivergentStatePatches(t *testing.T) {
	api := newFakeAPI()
	e := New(api)

	action1 := configMapAction("a", "ns")
	_, err := e.Apply(context.Background(), action1, 1)
	require.NoError(t, err)

	action2 := configMapAction("a", "ns")
	action2.Params["data"] = map[string]any{"agent.json": map[string]any{"role": "manager"}}

	fb, err := e.Apply(context.Background(), action2, 2)
	require.NoError(t, err)
	assert.Equal(t, "ActionApplied", fb.Type)
	assert.Equal(t, "PATCHED", fb.Payload["result_code"])
	assert.Equal(t, string(OpPatch), fb.Payload["operation"])
}

func networkPolicyAction(name, namespace, agent string) decision.Action {
	return decision.Action{
		ActionType: "EnsureNetworkPolicy",
		Target:     name + "-deny-egress",
		Params: map[string]any{
			"namespace":    namespace,
			"policy":       "deny-egress",
			"pod_selector": map[string]any{"app": "universe-agent", "agent": agent},
		},
	}
}

func TestExecutor_NetworkPolicyPodSelectorChangeTriggersPatch(t *testing.T) {
	api := newFakeAPI()
	e := New(api)

	action1 := networkPolicyAction("a", "ns", "a")
	_, err := e.Apply(context.Background(), action1, 1)
	require.NoError(t, err)

	action2 := networkPolicyAction("a", "ns", "a")
	action2.Params["pod_selector"] = map[string]any{"app": "universe-agent", "agent": "b"}

	fb, err := e.Apply(context.Background(), action2, 2)
	require.NoError(t, err)
	assert.Equal(t, "PATCHED", fb.Payload["result_code"])
	assert.Equal(t, string(OpPatch), fb.Payload["operation"])
}

func TestExecutor_ImmutableResourceConflictNeverPatches(t *testing.T) {
	api := newFakeAPI()
	e := New(api)

	pvcAction := decision.Action{
		ActionType: "EnsurePVC",
		Target:     "a-workspace",
		Params:     map[string]any{"namespace": "ns", "size": "1Gi"},
	}
	_, err := e.Apply(context.Background(), pvcAction, 1)
	require.NoError(t, err)

	divergent := pvcAction
	divergent.Params = map[string]any{"namespace": "ns", "size": "5Gi"}
	fb, err := e.Apply(context.Background(), divergent, 2)
	require.NoError(t, err)
	assert.Equal(t, "IMMUTABLE_EXISTS", fb.Payload["result_code"])
	assert.Equal(t, string(OpNoop), fb.Payload["operation"])
}

func TestExecutor_CreateFailureEmitsActionFailed(t *testing.T) {
	api := newFakeAPI()
	api.createErr = &APIError{StatusCode: 403, Reason: "forbidden"}
	e := New(api)

	fb, err := e.Apply(context.Background(), configMapAction("a", "ns"), 1)
	require.NoError(t, err)
	assert.Equal(t, "ActionFailed", fb.Type)
	assert.Equal(t, "K8S_FORBIDDEN", fb.Payload["error_code"])
	assert.EqualValues(t, 403, fb.Payload["error_status"])
}

type neverLeader struct{}

func (neverLeader) IsLeader(context.Context) (bool, error) { return false, nil }

func TestExecutor_LosesLeadershipBeforeDispatch(t *testing.T) {
	e := New(newFakeAPI(), WithLeaderChecker(neverLeader{}))
	_, err := e.Apply(context.Background(), configMapAction("a", "ns"), 1)
	require.Error(t, err)
}

type recordingOutbox struct {
	scheduled []OutboxRecord
	done      []string
	failed    []string
}

func (o *recordingOutbox) Schedule(ctx context.Context, rec OutboxRecord) error {
	o.scheduled = append(o.scheduled, rec)
	return nil
}
func (o *recordingOutbox) GetPending(ctx context.Context) ([]OutboxRecord, error) { return nil, nil }
func (o *recordingOutbox) MarkDone(ctx context.Context, actionID string) error {
	o.done = append(o.done, actionID)
	return nil
}
func (o *recordingOutbox) MarkFailed(ctx context.Context, actionID string) error {
	o.failed = append(o.failed, actionID)
	return nil
}

func TestExecutor_OutboxScheduledThenMarkedDone(t *testing.T) {
	ob := &recordingOutbox{}
	e := New(newFakeAPI(), WithOutbox(ob))

	fb, err := e.Apply(context.Background(), configMapAction("a", "ns"), 1)
	require.NoError(t, err)
	assert.Equal(t, "ActionApplied", fb.Type)
	require.Len(t, ob.scheduled, 1)
	require.Len(t, ob.done, 1)
	assert.Empty(t, ob.failed)
}

func TestExecutor_OutboxMarkedFailedOnActionFailure(t *testing.T) {
	api := newFakeAPI()
	api.createErr = &APIError{StatusCode: 500, Reason: "boom"}
	ob := &recordingOutbox{}
	e := New(api, WithOutbox(ob))

	fb, err := e.Apply(context.Background(), configMapAction("a", "ns"), 1)
	require.NoError(t, err)
	assert.Equal(t, "ActionFailed", fb.Type)
	require.Len(t, ob.failed, 1)
	assert.Empty(t, ob.done)
}
