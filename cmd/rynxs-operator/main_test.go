package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rynxs/operator-core/pkg/adapter"
	"github.com/rynxs/operator-core/pkg/decision"
	"github.com/rynxs/operator-core/pkg/event"
	"github.com/rynxs/operator-core/pkg/eventstore/filestore"
	"github.com/rynxs/operator-core/pkg/executor"
)

// seedLog writes one observe->decide->execute cycle directly to a fresh
// file-backed log at path, independent of the CLI under test.
func seedLog(t *testing.T, path string) {
	t.Helper()
	store, err := filestore.Open(filestore.Config{Path: path, HashVersion: event.HashV1})
	require.NoError(t, err)

	ad, err := adapter.New(0)
	require.NoError(t, err)
	trigger, err := ad.AgentObserved(adapter.Observation{Name: "a", Namespace: "ns", Spec: map[string]any{"role": "worker"}})
	require.NoError(t, err)
	triggerResult, err := store.AppendWithRetry(context.Background(), trigger, 3)
	require.NoError(t, err)

	dec, err := decision.NewDecider("")
	require.NoError(t, err)
	actions, err := dec.Decide(triggerResult.Event)
	require.NoError(t, err)
	decided, err := decision.BuildActionsDecidedEvent(actions, triggerResult.Event, triggerResult.EventHash, ad.Clock().Now())
	require.NoError(t, err)
	_, err = store.AppendWithRetry(context.Background(), decided, 3)
	require.NoError(t, err)

	exec := executor.New(nil)
	for _, a := range actions {
		fb, err := exec.Apply(context.Background(), a, ad.Clock().Now())
		require.NoError(t, err)
		_, err = store.AppendWithRetry(context.Background(), fb, 3)
		require.NoError(t, err)
	}
}

func setTestEnv(t *testing.T, eventPath string) {
	t.Helper()
	t.Setenv("EVENT_STORE_TYPE", "file")
	t.Setenv("EVENT_STORE_PATH", eventPath)
	t.Setenv("RYNXS_HASH_VERSION", "v1")
	t.Setenv("RYNXS_WRITER_ID", "cli-test")
	t.Setenv("RYNXS_CHECKPOINT_KEY_PATH", filepath.Join(filepath.Dir(eventPath), "checkpoint_ed25519"))
}

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"rynxs-operator"}, &stdout, &stderr)
	assert.Equal(t, ExitUsageOrIO, code)
	assert.Contains(t, stdout.String(), "USAGE")
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"rynxs-operator", "bogus"}, &stdout, &stderr)
	assert.Equal(t, ExitUsageOrIO, code)
	assert.Contains(t, stderr.String(), "Unknown command")
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"rynxs-operator", "help"}, &stdout, &stderr)
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout.String(), "COMMANDS")
}

func TestRun_LogTail(t *testing.T) {
	eventPath := filepath.Join(t.TempDir(), "events.log")
	seedLog(t, eventPath)
	setTestEnv(t, eventPath)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"rynxs-operator", "log", "tail"}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.GreaterOrEqual(t, len(lines), 2)
	assert.Contains(t, stdout.String(), "AgentObserved")
	assert.Contains(t, stdout.String(), "ActionsDecided")
}

func TestRun_LogTailFiltersByEventType(t *testing.T) {
	eventPath := filepath.Join(t.TempDir(), "events.log")
	seedLog(t, eventPath)
	setTestEnv(t, eventPath)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"rynxs-operator", "log", "tail", "--event-type", "ActionsDecided"}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())
	assert.NotContains(t, stdout.String(), "AgentObserved")
	assert.Contains(t, stdout.String(), "ActionsDecided")
}

func TestRun_LogInspectMissingSeq(t *testing.T) {
	eventPath := filepath.Join(t.TempDir(), "events.log")
	seedLog(t, eventPath)
	setTestEnv(t, eventPath)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"rynxs-operator", "log", "inspect", "--seq", "999"}, &stdout, &stderr)
	assert.Equal(t, ExitUsageOrIO, code)
	assert.Contains(t, stderr.String(), "no event at seq 999")
}

func TestRun_LogInspectFound(t *testing.T) {
	eventPath := filepath.Join(t.TempDir(), "events.log")
	seedLog(t, eventPath)
	setTestEnv(t, eventPath)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"rynxs-operator", "log", "inspect", "--seq", "0"}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "AgentObserved")
}

func TestRun_Replay(t *testing.T) {
	eventPath := filepath.Join(t.TempDir(), "events.log")
	seedLog(t, eventPath)
	setTestEnv(t, eventPath)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"rynxs-operator", "replay", "--show-state"}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "replayed")
	assert.Contains(t, stdout.String(), "universe")
}

func TestRun_CheckpointCreateAndVerify(t *testing.T) {
	eventPath := filepath.Join(t.TempDir(), "events.log")
	seedLog(t, eventPath)
	setTestEnv(t, eventPath)

	keyPath := filepath.Join(filepath.Dir(eventPath), "checkpoint_ed25519")
	cpDir := filepath.Join(t.TempDir(), "checkpoints")

	var stdout, stderr bytes.Buffer
	code := Run([]string{
		"rynxs-operator", "checkpoint", "create",
		"--out", cpDir, "--key", keyPath, "--generate-key",
	}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "checkpoint saved")

	_, err := os.Stat(keyPath)
	require.NoError(t, err, "generate-key must have written the private key file")

	stdout.Reset()
	stderr.Reset()
	code = Run([]string{
		"rynxs-operator", "checkpoint", "verify",
		"--log", cpDir, "--key", keyPath + ".pub", "--at-seq", "5",
	}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "VALID")
}

func TestRun_AuditReport(t *testing.T) {
	eventPath := filepath.Join(t.TempDir(), "events.log")
	seedLog(t, eventPath)
	setTestEnv(t, eventPath)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"rynxs-operator", "audit-report", "--at-seq", "1", "--format", "json"}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), `"Valid"`)
}
