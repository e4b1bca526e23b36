// Package varbus implements the variable bus: thread-safe named slots
// carrying scalar values shared between nodes (spec §2, "Variable bus").
package varbus

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 encapsulates a float64 for non-locking atomic operations.
// Ported from the teacher's atomic_float package, which bit-cast a float64
// through unsafe.Pointer for use with atomic.LoadUint64/CompareAndSwapUint64.
// Go's atomic.Uint64 makes the unsafe pointer arithmetic unnecessary; the
// CAS-loop shape (read old, compute new, CAS, let the caller retry or not)
// is unchanged.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 returns a slot initialized to val.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.bits.Store(math.Float64bits(val))
	return af
}

// AtomicRead atomically reads the float64.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicAdd attempts to add addend to the float64, failing if another
// writer changed the value in between. Callers that must succeed should
// retry in a loop; this function intentionally does not loop internally,
// since a caller observing the value changed out from under it may prefer
// to recompute addend against the new value rather than blindly reapply it.
func (af *AtomicFloat64) AtomicAdd(addend float64) (newVal float64, succeeded bool) {
	old := af.AtomicRead()
	newVal = old + addend
	succeeded = af.bits.CompareAndSwap(math.Float64bits(old), math.Float64bits(newVal))
	return
}

// AtomicSet sets the float64 unconditionally, returning the value it
// replaced.
func (af *AtomicFloat64) AtomicSet(newVal float64) (old float64) {
	bits := math.Float64bits(newVal)
	old = math.Float64frombits(af.bits.Swap(bits))
	return
}
