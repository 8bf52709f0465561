// Package checkpoint implements signed state snapshots (C10, spec §4.7),
// grounded on original_source/engine/checkpoint/{model,signer,snapshot,
// store,verify}.py and the teacher's pkg/crypto/signer.go (Ed25519
// sign/verify idiom, hex encoding) generalized from decision/intent/receipt
// signing onto a single checkpoint signing payload.
package checkpoint

import (
	"github.com/rynxs/operator-core/pkg/canonical"
	"github.com/rynxs/operator-core/pkg/reducer"
)

// Version is the checkpoint format version, bumped if the signing payload
// shape ever changes.
const Version = 1

// Checkpoint is a signed snapshot of replayed state at a specific log
// position (spec §4.7). StateBytes, Meta, and Signature are themselves
// excluded from the signing payload (spec §3/§9). StateBytes is committed to
// only through StateHash, which the payload does sign, so re-serialization
// differences (whitespace, key order from a non-canonical encoder) can
// never invalidate a signature that canonical re-derivation would still
// accept; Meta is not committed to at all. Meta carries caller-supplied, non-authoritative context (e.g. the
// reason a checkpoint was taken) and is never interpreted by verification.
type Checkpoint struct {
	Version          int            `json:"version"`
	EventIndex       int64          `json:"event_index"`
	EventHash        string         `json:"event_hash"`
	StateHash        string         `json:"state_hash"`
	CreatedAtLogical int64          `json:"created_at_logical"`
	PubkeyID         string         `json:"pubkey_id"`
	StateBytes       []byte         `json:"state_bytes_b64"`
	Signature        string         `json:"signature"`
	Meta             map[string]any `json:"meta,omitempty"`
}

// signingFields is the exact field set, in spec order, that the Ed25519
// signature covers: {version, event_index, event_hash, state_hash,
// created_at_logical, pubkey_id} (spec §4.7) — notably NOT state_bytes or
// signature itself.
func (c Checkpoint) signingFields() map[string]any {
	return map[string]any{
		"version":            c.Version,
		"event_index":        c.EventIndex,
		"event_hash":         c.EventHash,
		"state_hash":         c.StateHash,
		"created_at_logical": c.CreatedAtLogical,
		"pubkey_id":          c.PubkeyID,
	}
}

// SigningPayload returns the canonical JSON bytes the signature is computed
// over.
func (c Checkpoint) SigningPayload() ([]byte, error) {
	return canonical.Bytes(c.signingFields())
}

// Snapshot builds the state_bytes/state_hash pair from a reducer.State:
// state_bytes = canonical_json(state_subset); state_hash = SHA-256(state_bytes)
// (spec §4.7).
func Snapshot(state reducer.State) (stateBytes []byte, stateHash string, err error) {
	subset := map[string]any{
		"version":    state.Version,
		"aggregates": state.Aggregates,
	}
	stateBytes, err = canonical.Bytes(subset)
	if err != nil {
		return nil, "", err
	}
	stateHash = canonical.HashBytes(stateBytes)
	return stateBytes, stateHash, nil
}
