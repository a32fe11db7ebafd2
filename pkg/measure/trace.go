package measure

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Trace is the ordered sequence of values resolved during one render. Two
// renders of the same layout with the same token context produce equal
// traces, so the trace identifies the rendered artifact.
type Trace struct {
	values []int64
}

// Append records a resolved value.
func (t *Trace) Append(v int64) {
	t.values = append(t.values, v)
}

// Values returns a copy of the recorded values.
func (t *Trace) Values() []int64 {
	out := make([]int64, len(t.values))
	copy(out, t.values)
	return out
}

// Len returns the number of recorded values.
func (t *Trace) Len() int {
	return len(t.values)
}

// Key joins the values with underscores, e.g. "1_3_4_34".
func (t *Trace) Key() string {
	parts := make([]string, len(t.values))
	for i, v := range t.values {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, "_")
}

// Hash returns the hex SHA-256 of [Trace.Key]. Keys grow with the layout;
// the hash has a fixed length suitable for storage paths.
func (t *Trace) Hash() string {
	sum := sha256.Sum256([]byte(t.Key()))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two traces hold the same values.
func (t *Trace) Equal(o *Trace) bool {
	if len(t.values) != len(o.values) {
		return false
	}
	for i := range t.values {
		if t.values[i] != o.values[i] {
			return false
		}
	}
	return true
}
