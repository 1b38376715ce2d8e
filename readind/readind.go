package readind

import (
	"sync/atomic"

	"github.com/joeycumines/go-ptm/registry"
)

const (
	notReading uint64 = 0
	reading    uint64 = 1
)

// Indicator is a single-sided presence counter, one slot per registry id.
//
// Progress condition: Arrive/Depart are wait-free population oblivious;
// IsEmpty is O(N) in the registry's current high-water mark.
type Indicator struct {
	reg    *registry.Registry
	states []atomic.Uint64
}

// New constructs an Indicator sized to reg's capacity.
func New(reg *registry.Registry) *Indicator {
	return &Indicator{reg: reg, states: make([]atomic.Uint64, reg.MaxThreads())}
}

// Arrive announces that tid is about to start a read-side critical section.
func (ind *Indicator) Arrive(tid int) {
	ind.states[tid].Store(reading)
}

// Depart announces that tid has left its read-side critical section.
func (ind *Indicator) Depart(tid int) {
	ind.states[tid].Store(notReading)
}

// IsEmpty reports whether no tid currently has an outstanding Arrive.
func (ind *Indicator) IsEmpty() bool {
	max := ind.reg.MaxTid()
	for tid := 0; tid < max; tid++ {
		if ind.states[tid].Load() != notReading {
			return false
		}
	}
	return true
}

// DualIndicator holds two independent Indicator instances, addressed by a
// side in {0, 1}. Romulus LR uses this so writers can drain the side
// readers are leaving while new readers arrive on the other side.
type DualIndicator struct {
	sides [2]Indicator
}

// NewDual constructs a DualIndicator sized to reg's capacity.
func NewDual(reg *registry.Registry) *DualIndicator {
	return &DualIndicator{sides: [2]Indicator{*New(reg), *New(reg)}}
}

// Arrive announces tid's presence on the given side.
func (d *DualIndicator) Arrive(side int, tid int) { d.sides[side].Arrive(tid) }

// Depart announces tid's departure from the given side.
func (d *DualIndicator) Depart(side int, tid int) { d.sides[side].Depart(tid) }

// IsEmpty reports whether the given side has no outstanding arrivals.
func (d *DualIndicator) IsEmpty(side int) bool { return d.sides[side].IsEmpty() }
