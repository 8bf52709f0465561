package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_StartsAtGivenValue(t *testing.T) {
	c := New(5)
	assert.Equal(t, int64(5), c.Now())
}

func TestZeroValue_StartsAtZero(t *testing.T) {
	var c Logical
	assert.Equal(t, int64(0), c.Now())
}

func TestTick_ReturnsNewValueAndLeavesReceiverUnchanged(t *testing.T) {
	c := New(0)
	next := c.Tick()

	assert.Equal(t, int64(0), c.Now(), "Tick must not mutate the receiver")
	assert.Equal(t, int64(1), next.Now())
}

func TestTick_Monotonic(t *testing.T) {
	c := New(0)
	var seen []int64
	for i := 0; i < 5; i++ {
		c = c.Tick()
		seen = append(seen, c.Now())
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seen)
}
