// Package chain implements the per-record hash-chain binding (spec §3/§4.2),
// grounded field-for-field on original_source/engine/log/integrity.py.
package chain

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/rynxs/operator-core/pkg/canonical"
	"github.com/rynxs/operator-core/pkg/event"
)

// ZeroHash is the all-zero 64-hex digest used as prev_hash of the first
// record in a log.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is the stored unit: {prev_hash, event_hash, event}.
type Record struct {
	PrevHash  string      `json:"prev_hash"`
	EventHash string      `json:"event_hash"`
	Event     event.Event `json:"event"`
}

// FieldsForHash builds the hash-input projection of e per the event's
// HashVersion: v1 always includes meta (even empty); v2 includes meta only
// when non-empty, and tags the fields with hash_version so the codec
// version itself is part of what's hashed (spec §3).
func FieldsForHash(e event.Event) (map[string]any, error) {
	seq, err := e.RequireSeq()
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"type":         e.Type,
		"aggregate_id": e.AggregateID,
		"seq":          seq,
		"ts":           e.Ts,
		"payload":      e.Payload,
	}
	if e.HashVersion == event.HashV2 {
		data["hash_version"] = string(event.HashV2)
		if len(e.Meta) > 0 {
			data["meta"] = e.Meta
		}
	} else {
		data["meta"] = e.Meta
	}
	return data, nil
}

// EventHash computes SHA-256(prev_hash_bytes ‖ canonical_json(fields)).
func EventHash(prevHash string, e event.Event) (string, error) {
	fields, err := FieldsForHash(e)
	if err != nil {
		return "", err
	}
	canon, err := canonical.Bytes(fields)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canon)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Build assembles the chain record for e given the prior record's
// event_hash (or ZeroHash for the first record).
func Build(prevHash string, e event.Event) (Record, error) {
	h, err := EventHash(prevHash, e)
	if err != nil {
		return Record{}, err
	}
	return Record{PrevHash: prevHash, EventHash: h, Event: e}, nil
}

// IsZero reports whether h is the all-zero genesis hash.
func IsZero(h string) bool {
	return h == ZeroHash
}
