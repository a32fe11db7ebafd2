// Package token holds the per-render token context: control-token lookup with
// a write-once cache, the seeded random generator, the render timestamp and
// the price reading.
//
// A [Context] belongs to exactly one render. It is not safe to share a
// Context between renders of different artifacts; use [Context.Fork] to run
// a second pass (for example a peek followed by the real render) over the
// same lever values, timestamp and random sequence.
package token

import (
	"github.com/matzehuels/strata/pkg/errors"
)

// ControlToken is the numeric vector stored for a token: one (min, max,
// current) triple per lever.
type ControlToken []int64

// leverStride is the number of slots per lever.
const leverStride = 3

// Levers returns the number of complete levers in the token.
func (t ControlToken) Levers() int {
	return len(t) / leverStride
}

// Lever returns the current value of lever id, found at offset 2 + 3·id.
func (t ControlToken) Lever(id int) (int64, error) {
	if id < 0 {
		return 0, errors.New(errors.ErrCodeInvalidLever, "lever id %d is negative", id)
	}
	// id >= Levers() without computing 3·(id+1), which overflows for
	// large ids.
	if id >= t.Levers() {
		return 0, errors.New(errors.ErrCodeInvalidLever,
			"lever %d is out of range, token has %d levers (%d values)", id, t.Levers(), len(t))
	}
	return t[2+leverStride*id], nil
}

// Range returns the (min, max) bounds of lever id.
func (t ControlToken) Range(id int) (int64, int64, error) {
	if _, err := t.Lever(id); err != nil {
		return 0, 0, err
	}
	return t[leverStride*id], t[leverStride*id+1], nil
}
