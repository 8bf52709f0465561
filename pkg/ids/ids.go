// Package ids provides the module's sole identifier-derivation primitive:
// a stable, pipe-joined SHA-256 fingerprint, grounded on
// original_source/engine/core/ids.py's stable_id.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// StableID returns the lower-case hex SHA-256 digest of parts joined with
// "|". Used for action ids and action fingerprints; never for content that
// needs Unicode normalization (callers pass already-canonicalized strings
// where that matters, e.g. canonical_json(params)).
func StableID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
