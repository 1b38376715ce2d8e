package romulus

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/joeycumines/go-ptm/crwwp"
	"github.com/joeycumines/go-ptm/esloco"
	"github.com/joeycumines/go-ptm/internal/logging"
	"github.com/joeycumines/go-ptm/registry"
)

// LogEngine is the flat-combining Romulus variant: every writer queues its
// transaction body into a per-thread slot; whichever thread next acquires
// the cohort lock becomes the combiner, folding every currently-queued
// body into one combined transaction before replicating the touched byte
// ranges to back. Readers take a shared lock and always see main, which a
// combiner only ever mutates between beginMutation and finishMutation.
type LogEngine struct {
	reg   *registry.Registry
	s     *shared
	lock  *crwwp.Lock
	alloc *esloco.Allocator
	fc    []atomic.Pointer[fcSlot]
}

// fcSlot is one queued, not-yet-combined write transaction body.
type fcSlot struct {
	fn     func(tx *LogTx) (any, error)
	result any
	err    error
	done   chan struct{}
}

// Option configures a LogEngine at construction time.
type Option func(*engineConfig)

type engineConfig struct {
	logger *logging.Logger
}

// WithLogger attaches a structured logger: combine emits a Debug event per
// commit/abort, recovery a Warning event. A nil logger disables logging.
func WithLogger(l *logging.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

// OpenLogEngine opens or creates a Romulus Log region at path, with main
// and back each regionSize bytes.
func OpenLogEngine(path string, reg *registry.Registry, regionSize int64, opts ...Option) (e *LogEngine, recovered bool, err error) {
	var cfg engineConfig
	for _, o := range opts {
		o(&cfg)
	}
	s, recovered, err := openShared(path, regionSize, uint64(regionSize)/4, cfg.logger)
	if err != nil {
		return nil, false, err
	}
	e = &LogEngine{
		reg:   reg,
		s:     s,
		lock:  crwwp.New(reg),
		alloc: s.newAllocator(s.main(), false),
		fc:    make([]atomic.Pointer[fcSlot], reg.MaxThreads()),
	}
	return e, recovered, nil
}

// Close releases the underlying mapping.
func (e *LogEngine) Close() error { return e.s.Close() }

// LogTx carries the in-flight transaction state visible to Word[T] and
// TxMalloc/TxFree calls made from inside a transaction body.
type LogTx struct {
	eng      *LogEngine
	readOnly bool
}

func (tx *LogTx) base() []byte { return tx.eng.s.main() }

func (tx *LogTx) logWrite(off, length uint64) { tx.eng.s.log.add(off, length) }

// UpdateTx runs fn as a write transaction on behalf of tid, combined via
// flat combining with any other thread's concurrently queued body. A body
// returning ErrAborted causes the whole combined batch to roll back and
// every participant (including this one) to retry with a fresh closure
// invocation.
func UpdateTx[R any](e *LogEngine, tid int, fn func(tx *LogTx) (R, error)) (R, error) {
	for {
		slot := &fcSlot{done: make(chan struct{})}
		slot.fn = func(tx *LogTx) (any, error) { return fn(tx) }
		e.fc[tid].Store(slot)

		// Either we become the combiner ourselves, or some other combiner
		// picks up our slot while we're spinning for the lock -- checked
		// on every iteration so a missed scan window can't strand us.
		for {
			select {
			case <-slot.done:
			default:
				if e.lock.TryExclusiveLock() {
					e.combine(tid)
				} else {
					runtime.Gosched()
					continue
				}
			}
			break
		}

		if slot.err != nil {
			if errors.Is(slot.err, ErrAborted) {
				continue
			}
			var zero R
			return zero, slot.err
		}
		r, _ := slot.result.(R)
		return r, nil
	}
}

// ReadTx runs fn as a read-only transaction against main, serialized only
// against a concurrent combiner (shared lock).
func ReadTx[R any](e *LogEngine, tid int, fn func(tx *LogTx) (R, error)) (R, error) {
	e.lock.SharedLock(tid)
	defer e.lock.SharedUnlock(tid)
	tx := &LogTx{eng: e, readOnly: true}
	return fn(tx)
}

// combine runs while e holds the exclusive lock: it collects every
// currently queued closure, runs all of them under one beginMutation /
// finish-or-abort pair, and wakes every participant (not just the ones
// this thread queued).
func (e *LogEngine) combine(tid int) {
	defer e.lock.ExclusiveUnlock()
	e.lock.WaitForReaders()

	var slots []*fcSlot
	var ids []int
	for i := 0; i < e.reg.MaxTid(); i++ {
		if s := e.fc[i].Load(); s != nil {
			slots = append(slots, s)
			ids = append(ids, i)
		}
	}
	if len(slots) == 0 {
		return
	}

	tx := &LogTx{eng: e}
	e.s.beginMutation()

	var firstAbort error
	for i, s := range slots {
		s.result, s.err = s.fn(tx)
		if errors.Is(s.err, ErrAborted) && firstAbort == nil {
			firstAbort = ErrAborted
		}
		e.fc[ids[i]].CompareAndSwap(s, nil)
	}

	if firstAbort != nil {
		e.s.abortMutation(e.s.back(), e.s.main())
		for _, s := range slots {
			s.err = ErrAborted
		}
		e.s.logger.Debug().Int("batch", len(slots)).Log("romulus/log: combined batch aborted")
	} else {
		e.s.finishMutation(e.s.main(), e.s.back())
		e.s.logger.Debug().Int("batch", len(slots)).Log("romulus/log: combined batch committed")
	}

	for _, s := range slots {
		close(s.done)
	}
}

// TxMalloc allocates size raw bytes from main's allocator. Must be called
// from within a write transaction body.
func (e *LogEngine) TxMalloc(tx *LogTx, size uint64) (uint64, error) {
	if tx.readOnly {
		return 0, ErrReadOnly
	}
	return e.alloc.Malloc(size)
}

// TxFree returns a TxMalloc'd block to the allocator's free-list. Must be
// called from within a write transaction body.
func (e *LogEngine) TxFree(tx *LogTx, off uint64) {
	if tx.readOnly {
		return
	}
	e.alloc.Free(off)
}

// GetRoot returns a Word[T] bound to whatever offset root slot idx holds,
// or nil if the slot has never been set.
func GetRoot[T Numeric](e *LogEngine, idx int) (*Word[T], error) {
	off, err := e.s.root(e.s.main(), idx)
	if err != nil {
		return nil, err
	}
	if off == 0 {
		return nil, nil
	}
	return NewWordAt[T](off), nil
}

// PutRoot stores w's offset into root slot idx. Must be called from within
// a write transaction body.
func PutRoot[T Numeric](tx *LogTx, idx int, w *Word[T]) error {
	return tx.eng.s.setRoot(tx.eng.s.main(), idx, w.Offset())
}
