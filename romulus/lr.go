package romulus

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/joeycumines/go-ptm/readind"
	"github.com/joeycumines/go-ptm/registry"
)

// side identifies one of Romulus's two physical regions.
type side int32

const (
	sideLeft  side = 0
	sideRight side = 1
)

func (sd side) other() side {
	if sd == sideLeft {
		return sideRight
	}
	return sideLeft
}

// LREngine is the Left-Right Romulus variant: readers never block writers
// and vice versa. A writer mutates whichever side readers are not
// currently addressing (the idle side), flips which side is current once
// the write has been logged, drains the side that just went stale, and
// replays the same byte ranges there so both sides agree again before the
// next writer starts. Writers still serialize against each other (LR's
// concurrency benefit is readers-vs-writers, not writers-vs-writers).
type LREngine struct {
	reg     *registry.Registry
	s       *shared
	current atomic.Int32
	ind     *readind.DualIndicator
	wlock   atomic.Bool
}

// OpenLREngine opens or creates a Romulus LR region at path, with the left
// and right sides each regionSize bytes.
func OpenLREngine(path string, reg *registry.Registry, regionSize int64, opts ...Option) (e *LREngine, recovered bool, err error) {
	var cfg engineConfig
	for _, o := range opts {
		o(&cfg)
	}
	s, recovered, err := openShared(path, regionSize, uint64(regionSize)/4, cfg.logger)
	if err != nil {
		return nil, false, err
	}
	e = &LREngine{reg: reg, s: s, ind: readind.NewDual(reg)}
	e.current.Store(int32(sideLeft))
	return e, recovered, nil
}

// Close releases the underlying mapping.
func (e *LREngine) Close() error { return e.s.Close() }

func (e *LREngine) currentSide() side { return side(e.current.Load()) }

func (e *LREngine) region(sd side) []byte {
	if sd == sideLeft {
		return e.s.main()
	}
	return e.s.back()
}

func (e *LREngine) lockWriter() {
	for !e.wlock.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (e *LREngine) unlockWriter() { e.wlock.Store(false) }

// LRTx carries the in-flight transaction state visible to Word[T] and
// TxMalloc/TxFree calls made from inside a transaction body.
type LRTx struct {
	eng      *LREngine
	sd       side
	readOnly bool
}

func (tx *LRTx) base() []byte { return tx.eng.region(tx.sd) }

func (tx *LRTx) logWrite(off, length uint64) { tx.eng.s.log.add(off, length) }

// ReadTxLR runs fn as a read-only transaction against whichever side is
// currently designated for readers. Arrive/Depart bracket the read so a
// concurrent writer's drain (after flipping current) knows when it is
// safe to replay onto the now-stale side.
func ReadTxLR[R any](e *LREngine, tid int, fn func(tx *LRTx) (R, error)) (R, error) {
	sd := e.currentSide()
	e.ind.Arrive(int(sd), tid)
	for e.currentSide() != sd {
		e.ind.Depart(int(sd), tid)
		sd = e.currentSide()
		e.ind.Arrive(int(sd), tid)
	}
	defer e.ind.Depart(int(sd), tid)

	tx := &LRTx{eng: e, sd: sd, readOnly: true}
	return fn(tx)
}

// UpdateTxLR runs fn as a write transaction, mutating the side readers are
// not currently addressing. A body returning ErrAborted rolls back just
// the idle side (readers were never exposed to it) and retries.
func UpdateTxLR[R any](e *LREngine, tid int, fn func(tx *LRTx) (R, error)) (R, error) {
	e.lockWriter()
	defer e.unlockWriter()

	for {
		cur := e.currentSide()
		idle := cur.other()
		tx := &LRTx{eng: e, sd: idle}

		e.s.beginMutation()
		result, ferr := fn(tx)

		if errors.Is(ferr, ErrAborted) {
			e.s.abortMutation(e.region(cur), e.region(idle))
			continue
		}
		if ferr != nil {
			e.s.abortMutation(e.region(cur), e.region(idle))
			var zero R
			return zero, ferr
		}

		// idle now holds the new, committed state. Readers may keep
		// addressing cur right up until this store; once flipped, new
		// readers see idle and old ones still mid-read on cur are let
		// finish before cur is overwritten.
		e.current.Store(int32(idle))
		for !e.ind.IsEmpty(int(cur)) {
			runtime.Gosched()
		}
		e.s.finishMutation(e.region(idle), e.region(cur))
		e.s.logger.Debug().Int("side", int(idle)).Log("romulus/lr: flipped current side")
		return result, nil
	}
}

// TxMalloc allocates size raw bytes from tx's side. Must be called from
// within a write transaction body.
func (e *LREngine) TxMalloc(tx *LRTx, size uint64) (uint64, error) {
	if tx.readOnly {
		return 0, ErrReadOnly
	}
	return e.s.newAllocator(tx.base(), false).Malloc(size)
}

// TxFree returns a TxMalloc'd block to tx's side's allocator. Must be
// called from within a write transaction body.
func (e *LREngine) TxFree(tx *LRTx, off uint64) {
	if tx.readOnly {
		return
	}
	e.s.newAllocator(tx.base(), false).Free(off)
}

// GetRootLR returns a Word[T] bound to whatever offset root slot idx holds
// on the side readers currently address, or nil if never set.
func GetRootLR[T Numeric](e *LREngine, idx int) (*Word[T], error) {
	off, err := e.s.root(e.region(e.currentSide()), idx)
	if err != nil {
		return nil, err
	}
	if off == 0 {
		return nil, nil
	}
	return NewWordAt[T](off), nil
}

// PutRootLR stores w's offset into root slot idx on tx's side. Must be
// called from within a write transaction body.
func PutRootLR[T Numeric](tx *LRTx, idx int, w *Word[T]) error {
	return tx.eng.s.setRoot(tx.base(), idx, w.Offset())
}
