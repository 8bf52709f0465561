package checkpoint

import (
	"context"
	"crypto/ed25519"

	"github.com/rynxs/operator-core/pkg/canonical"
	"github.com/rynxs/operator-core/pkg/eventstore"
	"github.com/rynxs/operator-core/pkg/reducer"
	"github.com/rynxs/operator-core/pkg/replay"
)

// Mode selects how much of a checkpoint's claims get re-derived
// (spec §4.7).
type Mode string

const (
	// ModeSignature checks only pubkey_id agreement + Ed25519 verification.
	ModeSignature Mode = "signature"
	// ModeFull additionally re-derives state_hash from state_bytes, checks
	// the log's recorded event_hash at event_index, and replays [0..event_index]
	// to confirm it reproduces state_hash — closing the gap a pointer-only
	// check would leave (a forged state_bytes that merely matches its own
	// recomputed hash, but was never produced by the real log).
	ModeFull Mode = "full"
)

// StepResult names one individual check performed during verification, so
// a caller can see exactly which sub-claim failed (spec §4.7: "any
// inconsistency fails the check with a per-step result flag").
type StepResult struct {
	Step   string
	Passed bool
	Detail string
}

// Result is the outcome of VerifyCheckpoint.
type Result struct {
	Valid bool
	Steps []StepResult
}

func (r *Result) record(step string, passed bool, detail string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Passed: passed, Detail: detail})
	if !passed {
		r.Valid = false
	}
}

// VerifyCheckpoint checks cp under mode. store/rdcr are required for
// ModeFull and ignored (may be nil) for ModeSignature.
func VerifyCheckpoint(ctx context.Context, cp Checkpoint, pub ed25519.PublicKey, mode Mode, store eventstore.Store, rdcr *reducer.Reducer) (Result, error) {
	result := Result{Valid: true}

	sigOK, err := VerifySignature(cp, pub)
	if err != nil {
		return Result{}, err
	}
	result.record("signature", sigOK, "ed25519 verify over canonical signing payload")
	if !sigOK {
		return result, nil
	}

	if mode == ModeSignature {
		return result, nil
	}

	recomputedStateHash := canonical.HashBytes(cp.StateBytes)
	result.record("state_hash_consistent", recomputedStateHash == cp.StateHash,
		"SHA-256(state_bytes) must equal state_hash")

	logEventHash, ok, err := store.GetEventHash(ctx, cp.EventIndex)
	if err != nil {
		return Result{}, err
	}
	result.record("event_hash_in_log", ok && logEventHash == cp.EventHash,
		"log's event_hash at event_index must equal the checkpoint's event_hash")

	toSeq := cp.EventIndex
	replayResult, err := replay.NewEngine(store, rdcr).Run(ctx, replay.Options{ToSeq: &toSeq})
	if err != nil {
		return Result{}, err
	}
	_, replayedStateHash, err := Snapshot(replayResult.State)
	if err != nil {
		return Result{}, err
	}
	result.record("replay_reproduces_state_hash", replayedStateHash == cp.StateHash,
		"replay [0..event_index] must reproduce state_hash")

	return result, nil
}
