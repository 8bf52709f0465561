package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStableID_Deterministic(t *testing.T) {
	id1 := StableID("a", "b", "c")
	id2 := StableID("a", "b", "c")
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestStableID_OrderSensitive(t *testing.T) {
	assert.NotEqual(t, StableID("a", "b"), StableID("b", "a"))
}

func TestStableID_DistinctFromConcatenationWithoutSeparator(t *testing.T) {
	// "ab"+"c" vs "a"+"bc" must not collide, since parts are pipe-joined,
	// not raw-concatenated.
	assert.NotEqual(t, StableID("ab", "c"), StableID("a", "bc"))
}

func TestStableID_NoArgs(t *testing.T) {
	assert.Len(t, StableID(), 64)
}
