package crwwp

import (
	"runtime"
	"sync/atomic"

	"github.com/joeycumines/go-ptm/readind"
	"github.com/joeycumines/go-ptm/registry"
)

// cohort is the writer-side spin-lock: at most one writer holds it at a
// time, serializing writers against each other before they drain readers.
type cohort struct {
	locked atomic.Bool
}

func (c *cohort) tryLock() bool {
	return c.locked.CompareAndSwap(false, true)
}

func (c *cohort) lock() {
	for !c.tryLock() {
		runtime.Gosched()
	}
}

func (c *cohort) unlock() {
	c.locked.Store(false)
}

func (c *cohort) isLocked() bool {
	return c.locked.Load()
}

// Lock is a writer-preference reader/writer lock. Multiple readers may hold
// it concurrently, or a single writer; a waiting writer is never starved by
// a steady stream of readers because readers re-check for a pending writer
// on every arrival attempt.
type Lock struct {
	ri *readind.Indicator
	sp cohort
}

// New constructs a Lock whose reader-presence tracking is scoped to reg.
func New(reg *registry.Registry) *Lock {
	return &Lock{ri: readind.New(reg)}
}

// ExclusiveLock acquires the lock for writing: first the cohort spin-lock,
// then it busy-waits for all present readers to depart.
func (l *Lock) ExclusiveLock() {
	l.sp.lock()
	for !l.ri.IsEmpty() {
		runtime.Gosched()
	}
}

// TryExclusiveLock attempts to acquire the lock for writing without
// blocking. It does not wait for readers to drain; callers that succeed
// must still ensure no readers are present before mutating, e.g. by calling
// WaitForReaders.
func (l *Lock) TryExclusiveLock() bool {
	return l.sp.tryLock()
}

// ExclusiveUnlock releases a lock held for writing.
func (l *Lock) ExclusiveUnlock() {
	l.sp.unlock()
}

// SharedLock acquires the lock for reading under tid. It gives way to a
// writer: if a writer is (or becomes) active while this attempt is
// arriving, the reader departs and waits for the writer to finish before
// retrying.
func (l *Lock) SharedLock(tid int) {
	for {
		l.ri.Arrive(tid)
		if !l.sp.isLocked() {
			return
		}
		l.ri.Depart(tid)
		for l.sp.isLocked() {
			runtime.Gosched()
		}
	}
}

// SharedUnlock releases a lock held for reading under tid.
func (l *Lock) SharedUnlock(tid int) {
	l.ri.Depart(tid)
}

// WaitForReaders blocks until no reader presence is outstanding. Used by a
// writer that has already acquired the cohort lock via TryExclusiveLock.
func (l *Lock) WaitForReaders() {
	for !l.ri.IsEmpty() {
		runtime.Gosched()
	}
}
