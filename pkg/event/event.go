// Package event defines the immutable Event record (spec §3), grounded on
// original_source/engine/core/events.py. The hash_version field is present
// in that dataclass's real usage (engine/log/integrity.py,
// engine/log/file_store.py both read event.hash_version unconditionally)
// even though the single retrieved events.py snippet omitted it from its
// field list — added here to match the fields actually consumed.
package event

import "github.com/rynxs/operator-core/pkg/errs"

// HashVersion names the hash-input shape policy for a record (spec §4.2).
type HashVersion string

const (
	// HashV1 always includes meta in the hash input (default, absent tag).
	HashV1 HashVersion = "v1"
	// HashV2 omits meta from the hash input when it is empty, so nil and
	// empty meta hash alike; a non-empty meta (e.g. a writer-id annotation)
	// is hashed, and adding one changes the event_hash.
	HashV2 HashVersion = "v2"
)

// Event is an immutable record of something that happened. Seq is assigned
// by the store at append time; Ts is a logical (integer) timestamp from a
// deterministic clock, never wall-clock.
type Event struct {
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	Seq         *int64         `json:"seq,omitempty"`
	Ts          int64          `json:"ts"`
	Payload     map[string]any `json:"payload"`
	Meta        map[string]any `json:"meta,omitempty"`
	HashVersion HashVersion    `json:"hash_version,omitempty"`
}

// New constructs an Event with Seq unset (to be assigned by the store).
func New(typ, aggregateID string, ts int64, payload, meta map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return Event{Type: typ, AggregateID: aggregateID, Ts: ts, Payload: payload, Meta: meta}
}

// WithSeq returns a copy of e with Seq set to seq.
func (e Event) WithSeq(seq int64) Event {
	e.Seq = &seq
	return e
}

// RequireSeq returns e.Seq, failing with a Determinism error if the event
// has never been appended (Seq unset) — mirrors
// original_source/engine/core/events.py's require_seq.
func (e Event) RequireSeq() (int64, error) {
	if e.Seq == nil {
		return 0, errs.Determinism("event: seq required but unset for type=%s aggregate_id=%s", e.Type, e.AggregateID)
	}
	return *e.Seq, nil
}
