package hazard

import (
	"sync/atomic"

	"github.com/joeycumines/go-ptm/registry"
)

// DefaultMaxHPs is the default number of hazard pointer slots per thread,
// matching the original design's MAX_HPS.
const DefaultMaxHPs = 5

// hpThresholdR is named 'R' in the hazard pointers paper: the number of
// retired objects a thread may accumulate before it is forced to attempt a
// scan-and-delete. The original sets this to 0 (always scan on retire).
const hpThresholdR = 0

// Domain is a hazard pointer domain for retiring *T values.
//
// Progress conditions: Protect is lock-free; Clear/ClearOne/ProtectPtr are
// wait-free population oblivious; Retire is wait-free bounded by
// maxThreads^2 (it scans every thread's slots against every retired
// pointer).
type Domain[T any] struct {
	reg     *registry.Registry
	maxHPs  int
	hp      [][]atomic.Pointer[T]
	retired [][]*T
	heads   []atomic.Pointer[T]
}

// New constructs a Domain with maxHPs slots per thread (DefaultMaxHPs if
// non-positive), sized to reg's capacity.
func New[T any](reg *registry.Registry, maxHPs int) *Domain[T] {
	if maxHPs <= 0 {
		maxHPs = DefaultMaxHPs
	}
	n := reg.MaxThreads()
	d := &Domain[T]{
		reg:     reg,
		maxHPs:  maxHPs,
		hp:      make([][]atomic.Pointer[T], n),
		retired: make([][]*T, n),
		heads:   make([]atomic.Pointer[T], 2*n),
	}
	for i := range d.hp {
		d.hp[i] = make([]atomic.Pointer[T], maxHPs)
	}
	return d
}

// Clear releases all of tid's published hazard pointers.
func (d *Domain[T]) Clear(tid int) {
	for i := range d.hp[tid] {
		d.hp[tid][i].Store(nil)
	}
}

// ClearOne releases a single hazard pointer slot for tid.
func (d *Domain[T]) ClearOne(idx, tid int) {
	d.hp[tid][idx].Store(nil)
}

// Protect publishes the current value of atom into tid's slot idx, looping
// until the published value matches the latest read (so a retirer can never
// observe a stale publication racing a pointer update). Returns the
// protected value.
func (d *Domain[T]) Protect(idx int, atom *atomic.Pointer[T], tid int) *T {
	var n *T
	var ret *T
	for {
		ret = atom.Load()
		if ret == n {
			break
		}
		d.hp[tid][idx].Store(ret)
		n = ret
	}
	return ret
}

// ProtectPtr publishes ptr directly into tid's slot idx (no re-check loop;
// use when ptr is already known to be reachable, e.g. just obtained from
// another protected slot). Returns ptr.
func (d *Domain[T]) ProtectPtr(idx int, ptr *T, tid int) *T {
	d.hp[tid][idx].Store(ptr)
	return ptr
}

// CopyPtr copies the value currently published in tid's slot other into
// slot idx.
func (d *Domain[T]) CopyPtr(idx, other, tid int) {
	d.hp[tid][idx].Store(d.hp[tid][other].Load())
}

// ProtectHead publishes head into the auxiliary heads pool at
// combinedIndex, in [0, 2*maxThreads).
func (d *Domain[T]) ProtectHead(combinedIndex int, head *T) {
	d.heads[combinedIndex].Store(head)
}

// Heads returns the auxiliary heads pool, scanned by Retire in addition to
// every thread's ordinary hazard pointer slots.
func (d *Domain[T]) Heads() []atomic.Pointer[T] { return d.heads }

// Retire marks ptr for reclamation under tid. Once no thread's hazard
// pointer slot (nor the heads pool) references ptr, it is dropped from the
// retired list and becomes eligible for ordinary Go garbage collection --
// unlike the original's explicit `delete ptr`, this module never frees
// memory itself.
func (d *Domain[T]) Retire(ptr *T, tid int) {
	if len(d.retired[tid]) >= hpThresholdR {
		d.scanAndDelete(tid)
	}
	d.retired[tid] = append(d.retired[tid], ptr)
}

func (d *Domain[T]) scanAndDelete(tid int) {
	maxThreads := d.reg.MaxThreads()
	remaining := d.retired[tid][:0]
	for _, ptr := range d.retired[tid] {
		inUse := false
		for it := 0; it < maxThreads && !inUse; it++ {
			for ihp := d.maxHPs - 1; ihp >= 0; ihp-- {
				if ptr == d.hp[it][ihp].Load() {
					inUse = true
					break
				}
			}
		}
		if !inUse {
			for i := range d.heads {
				if ptr == d.heads[i].Load() {
					inUse = true
					break
				}
			}
		}
		if inUse {
			remaining = append(remaining, ptr)
		}
	}
	d.retired[tid] = remaining
}
