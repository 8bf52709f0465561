package verifier

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rynxs/operator-core/pkg/adapter"
	"github.com/rynxs/operator-core/pkg/checkpoint"
	"github.com/rynxs/operator-core/pkg/decision"
	"github.com/rynxs/operator-core/pkg/event"
	"github.com/rynxs/operator-core/pkg/eventstore"
	"github.com/rynxs/operator-core/pkg/eventstore/filestore"
	"github.com/rynxs/operator-core/pkg/executor"
)

// buildReconciledLog appends one full observe->decide->execute cycle
// (AgentObserved, ActionsDecided, one ActionApplied per decided action)
// directly through the adapter/decider/executor layers, without going
// through pkg/engine, so these tests stay focused on the verifier's own
// contract.
func buildReconciledLog(t *testing.T) (eventstore.Store, int64) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.log")
	store, err := filestore.Open(filestore.Config{Path: path, HashVersion: event.HashV1})
	require.NoError(t, err)

	ad, err := adapter.New(0)
	require.NoError(t, err)
	trigger, err := ad.AgentObserved(adapter.Observation{
		Name: "a", Namespace: "ns", Spec: map[string]any{"role": "worker"},
	})
	require.NoError(t, err)
	triggerResult, err := store.AppendWithRetry(context.Background(), trigger, 3)
	require.NoError(t, err)

	dec, err := decision.NewDecider("")
	require.NoError(t, err)
	actions, err := dec.Decide(triggerResult.Event)
	require.NoError(t, err)

	decided, err := decision.BuildActionsDecidedEvent(actions, triggerResult.Event, triggerResult.EventHash, ad.Clock().Now())
	require.NoError(t, err)
	decidedResult, err := store.AppendWithRetry(context.Background(), decided, 3)
	require.NoError(t, err)

	exec := executor.New(nil)
	for _, a := range actions {
		fb, err := exec.Apply(context.Background(), a, ad.Clock().Now())
		require.NoError(t, err)
		_, err = store.AppendWithRetry(context.Background(), fb, 3)
		require.NoError(t, err)
	}

	decidedSeq, err := decidedResult.Event.RequireSeq()
	require.NoError(t, err)
	return store, decidedSeq
}

func TestVerifyChain_PassesOnUntamperedLog(t *testing.T) {
	store, _ := buildReconciledLog(t)
	assert.NoError(t, VerifyChain(context.Background(), store))
}

func TestVerifyPointers_PassesOnUntamperedLog(t *testing.T) {
	store, _ := buildReconciledLog(t)
	assert.NoError(t, VerifyPointers(context.Background(), store))
}

func TestBuildDecisionProof_ValidWithoutCheckpoint(t *testing.T) {
	store, decidedSeq := buildReconciledLog(t)

	proof, err := BuildDecisionProof(context.Background(), store, nil, nil, decidedSeq)
	require.NoError(t, err)
	assert.True(t, proof.Valid)
	assert.Len(t, proof.ActionResults, len(proof.ActionsDecided.ActionIDs))
	for _, r := range proof.ActionResults {
		assert.True(t, r.Found)
		assert.Equal(t, "ActionApplied", r.FromEvent)
	}
}

func TestBuildDecisionProof_ValidatesCheckpointSignature(t *testing.T) {
	store, decidedSeq := buildReconciledLog(t)

	signer, err := checkpoint.GenerateSigner()
	require.NoError(t, err)
	cpStore, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)

	hash, ok, err := store.GetEventHash(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, ok)

	cp, err := signer.Sign(0, hash, []byte(`{}`), "statehash", 1)
	require.NoError(t, err)
	require.NoError(t, cpStore.Save(cp))

	proof, err := BuildDecisionProof(context.Background(), store, cpStore, signer.PublicKey(), decidedSeq)
	require.NoError(t, err)
	assert.True(t, proof.Checkpoint.Found)
	assert.True(t, proof.Checkpoint.SignatureValid)
	assert.True(t, proof.Valid)
}

func TestBuildDecisionProof_InvalidWithWrongPublicKey(t *testing.T) {
	store, decidedSeq := buildReconciledLog(t)

	signer, err := checkpoint.GenerateSigner()
	require.NoError(t, err)
	other, err := checkpoint.GenerateSigner()
	require.NoError(t, err)
	cpStore, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)

	hash, ok, err := store.GetEventHash(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, ok)

	cp, err := signer.Sign(0, hash, []byte(`{}`), "statehash", 1)
	require.NoError(t, err)
	require.NoError(t, cpStore.Save(cp))

	proof, err := BuildDecisionProof(context.Background(), store, cpStore, other.PublicKey(), decidedSeq)
	require.NoError(t, err)
	assert.False(t, proof.Checkpoint.SignatureValid)
	assert.False(t, proof.Valid)
}

func TestBuildDecisionProof_ErrorsOnNonActionsDecidedSeq(t *testing.T) {
	store, _ := buildReconciledLog(t)
	_, err := BuildDecisionProof(context.Background(), store, nil, nil, 0) // seq 0 is AgentObserved
	require.Error(t, err)
}
