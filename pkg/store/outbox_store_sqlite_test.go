package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rynxs/operator-core/pkg/executor"
)

func openTestSQLiteStore(t *testing.T) *SQLiteOutboxStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outbox.db")
	s, err := OpenSQLiteOutboxStore(path)
	require.NoError(t, err)
	return s
}

func TestSQLiteOutboxStore_ScheduleAndGetPending(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLiteStore(t)

	rec := executor.OutboxRecord{
		ActionID:   "a1",
		ActionType: "ensureConfigMap",
		Target:     "ns/agent-config",
		Params:     map[string]any{"key": "value"},
	}
	require.NoError(t, s.Schedule(ctx, rec))

	pending, err := s.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a1", pending[0].ActionID)
	assert.Equal(t, "ensureConfigMap", pending[0].ActionType)
	assert.Equal(t, "value", pending[0].Params["key"])
}

func TestSQLiteOutboxStore_ScheduleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLiteStore(t)

	rec := executor.OutboxRecord{ActionID: "a1", ActionType: "ensurePVC", Target: "ns/x", Params: map[string]any{}}
	require.NoError(t, s.Schedule(ctx, rec))
	require.NoError(t, s.Schedule(ctx, rec)) // duplicate schedule must not error or duplicate the row

	pending, err := s.GetPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSQLiteOutboxStore_MarkDoneRemovesFromPending(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLiteStore(t)

	rec := executor.OutboxRecord{ActionID: "a1", ActionType: "ensureDeployment", Target: "ns/x", Params: map[string]any{}}
	require.NoError(t, s.Schedule(ctx, rec))
	require.NoError(t, s.MarkDone(ctx, "a1"))

	pending, err := s.GetPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLiteOutboxStore_MarkFailedRemovesFromPending(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLiteStore(t)

	rec := executor.OutboxRecord{ActionID: "a1", ActionType: "ensureNetworkPolicy", Target: "ns/x", Params: map[string]any{}}
	require.NoError(t, s.Schedule(ctx, rec))
	require.NoError(t, s.MarkFailed(ctx, "a1"))

	pending, err := s.GetPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLiteOutboxStore_GetPendingOrdersByScheduledAt(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLiteStore(t)

	require.NoError(t, s.Schedule(ctx, executor.OutboxRecord{ActionID: "first", ActionType: "t", Target: "x", Params: map[string]any{}}))
	require.NoError(t, s.Schedule(ctx, executor.OutboxRecord{ActionID: "second", ActionType: "t", Target: "x", Params: map[string]any{}}))

	pending, err := s.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "first", pending[0].ActionID)
	assert.Equal(t, "second", pending[1].ActionID)
}
