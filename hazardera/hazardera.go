package hazardera

import (
	"sync/atomic"

	"github.com/joeycumines/go-ptm/registry"
)

// noEra is the sentinel era value meaning "this thread is not currently
// protecting any era". Transaction sequence numbers start at 1, so the
// all-bits-set value can never collide with a real era.
const noEra = ^uint64(0)

// Closure is a retired, era-tagged object. NewEra/DelEra bound the
// transaction-sequence window during which some helper may still invoke it;
// Finalize (if non-nil) runs exactly once, when Clean determines the
// closure is no longer reachable by any live thread's published era.
type Closure struct {
	NewEra   uint64
	DelEra   uint64
	Finalize func()
}

// Domain is a hazard-era reclamation domain, scoped to a registry.
//
// Progress conditions: ProtectEra/ClearEra are wait-free population
// oblivious; Clean is bounded wait-free (it sweeps the caller's retired
// list exactly once per call).
type Domain struct {
	reg     *registry.Registry
	eras    []atomic.Uint64
	retired [][]*Closure
}

// New constructs a Domain sized to reg's capacity. Every thread starts with
// no protected era.
func New(reg *registry.Registry) *Domain {
	d := &Domain{
		reg:     reg,
		eras:    make([]atomic.Uint64, reg.MaxThreads()),
		retired: make([][]*Closure, reg.MaxThreads()),
	}
	for i := range d.eras {
		d.eras[i].Store(noEra)
	}
	return d
}

// ProtectEra publishes era as the era tid is currently operating under.
func (d *Domain) ProtectEra(tid int, era uint64) {
	d.eras[tid].Store(era)
}

// ClearEra releases tid's published era.
func (d *Domain) ClearEra(tid int) {
	d.eras[tid].Store(noEra)
}

// Retire appends c to tid's retired list. c.NewEra/c.DelEra must already be
// set by the caller (ofwf sets them to (firstEra, curTx.seq+1) when a thread
// announces its next operation and retires the previous one).
func (d *Domain) Retire(c *Closure, tid int) {
	d.retired[tid] = append(d.retired[tid], c)
}

// Clean sweeps tid's retired list once, finalizing (and dropping) any
// closure whose [NewEra, DelEra] window no longer intersects any live
// thread's published era. curEra is the caller's own current era: closures
// whose DelEra hasn't been reached yet are skipped without scanning every
// thread, since they cannot possibly be safe to reclaim regardless.
func (d *Domain) Clean(curEra uint64, tid int) {
	maxThreads := d.reg.MaxThreads()
	remaining := d.retired[tid][:0]
	for _, c := range d.retired[tid] {
		if c.DelEra > curEra {
			remaining = append(remaining, c)
			continue
		}
		protected := false
		for it := 0; it < maxThreads; it++ {
			e := d.eras[it].Load()
			if e == noEra {
				continue
			}
			if e >= c.NewEra && e <= c.DelEra {
				protected = true
				break
			}
		}
		if protected {
			remaining = append(remaining, c)
			continue
		}
		if c.Finalize != nil {
			c.Finalize()
		}
	}
	d.retired[tid] = remaining
}

// Pending reports how many closures are currently retired (awaiting
// reclamation) for tid. Exposed for tests and diagnostics.
func (d *Domain) Pending(tid int) int {
	return len(d.retired[tid])
}
