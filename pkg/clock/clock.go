// Package clock implements the deterministic logical clock required by
// spec §5/§9: an immutable value type whose Tick returns a new instance,
// never a wall-clock read. Grounded on
// original_source/engine/core/clock.go's DeterministicClock dataclass.
package clock

// Logical is an immutable logical timestamp. The zero value starts at 0.
type Logical struct {
	current int64
}

// New returns a Logical clock starting at the given value (0 for a fresh
// log).
func New(start int64) Logical {
	return Logical{current: start}
}

// Now returns the current tick without advancing it.
func (c Logical) Now() int64 {
	return c.current
}

// Tick returns a NEW clock value one tick ahead; c itself is unchanged.
// Callers that hold "the" live clock (e.g. the engine adapter) rebind their
// field to the result: c = c.Tick().
func (c Logical) Tick() Logical {
	return Logical{current: c.current + 1}
}
