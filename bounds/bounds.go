// Package bounds implements the monotonically-shrinking index window an
// index-addressed list provider confines its cache to.
package bounds

import "math"

const (
	// NegInf is the sentinel for an unspecified minimum (open below).
	NegInf = math.MinInt64
	// PosInf is the sentinel for an unspecified maximum (open above).
	PosInf = math.MaxInt64
)

// Bounds is the half-open window [Min, Max) that an IndexProvider's cached
// items must live within.
type Bounds struct {
	Min, Max int64
}

// Unbounded returns (-infinity, +infinity).
func Unbounded() Bounds { return Bounds{Min: NegInf, Max: PosInf} }

// Len returns Max - Min. Callers must not call this on an unbounded side;
// it is intended for already-finite windows.
func (b Bounds) Len() int64 { return b.Max - b.Min }

// Valid reports whether Min <= Max.
func (b Bounds) Valid() bool { return b.Min <= b.Max }

// Contains reports whether i falls within [Min, Max).
func (b Bounds) Contains(i int64) bool { return i >= b.Min && i < b.Max }

// Shrink applies a declared bounds update from a fetch response. Bounds
// may only narrow via this path: the narrower of the declared and current
// bound is kept on each side, and widened is reported true if declared
// tried to widen either side (the caller emits INCONSISTENT_RANGE in that
// case, but still applies the narrower value).
func (b Bounds) Shrink(declaredMin, declaredMax int64) (result Bounds, widened bool) {
	result = b
	if declaredMin > b.Min {
		result.Min = declaredMin
	} else if declaredMin < b.Min {
		widened = true
	}
	if declaredMax < b.Max {
		result.Max = declaredMax
	} else if declaredMax > b.Max {
		widened = true
	}
	return result, widened
}

// ExtendMax grows Max by n. This is the single case in which bounds
// widen: CRUD inserts are authoritative about the list they mutate. An
// unbounded Max stays at the sentinel.
func (b Bounds) ExtendMax(n int64) Bounds {
	if b.Max != PosInf {
		b.Max += n
	}
	return b
}

// ShrinkMax contracts Max by n, used when a CRUD delete removes items from
// the end of the cached window. An unbounded Max stays at the sentinel.
func (b Bounds) ShrinkMax(n int64) Bounds {
	if b.Max != PosInf {
		b.Max -= n
	}
	return b
}
