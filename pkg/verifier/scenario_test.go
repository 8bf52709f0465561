package verifier

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rynxs/operator-core/pkg/adapter"
	"github.com/rynxs/operator-core/pkg/event"
	"github.com/rynxs/operator-core/pkg/eventstore"
	"github.com/rynxs/operator-core/pkg/eventstore/filestore"
	"github.com/rynxs/operator-core/pkg/reducer"
	"github.com/rynxs/operator-core/pkg/replay"
)

// TestConcurrentObserveTwoAgents_ContiguousSeqAndDeterministicReplay is
// scenario S3: two concurrent writers append AgentObserved for two
// different agents; the final log has contiguous seq numbers and two
// independent replays produce identical state regardless of commit order.
func TestConcurrentObserveTwoAgents_ContiguousSeqAndDeterministicReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	store, err := filestore.Open(filestore.Config{Path: path, HashVersion: event.HashV1})
	require.NoError(t, err)

	adA, err := adapter.New(0)
	require.NoError(t, err)
	adB, err := adapter.New(0)
	require.NoError(t, err)

	obsA, err := adA.AgentObserved(adapter.Observation{Name: "a", Namespace: "ns", Spec: map[string]any{"role": "worker"}})
	require.NoError(t, err)
	obsB, err := adB.AgentObserved(adapter.Observation{Name: "b", Namespace: "ns", Spec: map[string]any{"role": "manager"}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := eventstore.AppendWithRetry(context.Background(), store, obsA, 5)
		require.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := eventstore.AppendWithRetry(context.Background(), store, obsB, 5)
		require.NoError(t, err)
	}()
	wg.Wait()

	events, err := store.Read(context.Background(), eventstore.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for i, e := range events {
		seq, err := e.RequireSeq()
		require.NoError(t, err)
		assert.Equal(t, int64(i), seq)
	}

	rdcr := reducer.NewUniverseReducer(true)
	r1, err := replay.NewEngine(store, rdcr).Run(context.Background(), replay.Options{})
	require.NoError(t, err)
	r2, err := replay.NewEngine(store, rdcr).Run(context.Background(), replay.Options{})
	require.NoError(t, err)
	assert.Equal(t, r1.LastHash, r2.LastHash)
	assert.Len(t, reducer.Universe(r1.State).Agents, 2)
}

// TestVerifyChain_TamperedPayloadFailsAtOffendingSeq is scenario S4: a
// tampered payload byte with an unchanged event_hash fails the chain
// verifier at exactly the offending seq.
func TestVerifyChain_TamperedPayloadFailsAtOffendingSeq(t *testing.T) {
	store, _ := buildReconciledLog(t)
	fixed, err := newFixedStoreFrom(context.Background(), store)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(fixed.events), 2)

	tamperSeq, err := fixed.events[1].RequireSeq()
	require.NoError(t, err)
	fixed.events[1].Payload = cloneWithField(fixed.events[1].Payload, "tampered", "yes")

	err = VerifyChain(context.Background(), fixed)
	require.Error(t, err)
	mismatch, ok := err.(ChainMismatch)
	require.True(t, ok)
	assert.Equal(t, tamperSeq, mismatch.Seq)
}

// TestVerifyPointers_AllZeroTriggerHashFails is scenario S6: flipping
// trigger_event_hash to all zeros fails the pointer verifier with a
// trigger_event_hash mismatch at the offending seq.
func TestVerifyPointers_AllZeroTriggerHashFails(t *testing.T) {
	store, decidedSeq := buildReconciledLog(t)
	fixed, err := newFixedStoreFrom(context.Background(), store)
	require.NoError(t, err)

	for i, e := range fixed.events {
		seq, serr := e.RequireSeq()
		require.NoError(t, serr)
		if seq != decidedSeq {
			continue
		}
		fixed.events[i].Payload = cloneWithField(e.Payload, "trigger_event_hash",
			"0000000000000000000000000000000000000000000000000000000000000000")
	}

	err = VerifyPointers(context.Background(), fixed)
	require.Error(t, err)
	mismatch, ok := err.(PointerMismatch)
	require.True(t, ok)
	assert.Equal(t, decidedSeq, mismatch.Seq)
	assert.Equal(t, "trigger_event_hash", mismatch.Field)
}
