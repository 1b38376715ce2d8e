package ofwf

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/joeycumines/go-ptm/esloco"
	"github.com/joeycumines/go-ptm/hazardera"
	"github.com/joeycumines/go-ptm/internal/logging"
	"github.com/joeycumines/go-ptm/nvm"
	"github.com/joeycumines/go-ptm/registry"
)

// RootSlots mirrors the original's MAX_ROOT_POINTERS.
const RootSlots = 100

// MaxReadTries bounds how many times a read transaction retries before
// posing as an update transaction, the same constant the original uses.
const MaxReadTries = 4

// ErrAborted signals a user-level abort from within a transaction body.
var ErrAborted = errors.New("ofwf: transaction aborted")

// ErrRootIndex is returned by GetRoot/PutRoot for an out-of-range slot.
var ErrRootIndex = errors.New("ofwf: root index out of range")

// operation is one thread's currently announced transaction body: fn is
// run by whichever thread's commit attempt gets to it first via
// transformAll, and seq is this thread's own monotonically increasing
// operation counter (distinct from the shared curTx sequence). era is the
// curTx sequence at which the operation was announced.
type operation struct {
	fn  func(tx *Tx) (any, error)
	seq uint64
	era uint64
}

// result is the outcome of the operation with the matching seq. A thread's
// operation is known to have been applied once results[tid].seq catches up
// to operations[tid].seq.
type result struct {
	val any
	err error
	seq uint64
}

// Engine is one OneFile-WF instance.
type Engine struct {
	reg        *registry.Registry
	curTx      atomic.Uint64
	writeSets  []*writeSet
	operations []atomic.Pointer[operation]
	results    []atomic.Pointer[result]
	roots      [RootSlots]atomic.Pointer[any]
	heap       []byte
	alloc      *esloco.Allocator
	durable    nvm.Durable
	he         *hazardera.Domain
	log        *logging.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger attaches a structured logger; a commit and a reclamation sweep
// each emit one Debug event. A nil logger disables logging.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New constructs an Engine bound to reg; see oflf.New for heap/durable.
func New(reg *registry.Registry, heap []byte, durable nvm.Durable, opts ...Option) *Engine {
	if durable == nil {
		durable = nvm.Volatile{}
	}
	e := &Engine{
		reg:        reg,
		writeSets:  make([]*writeSet, reg.MaxThreads()),
		operations: make([]atomic.Pointer[operation], reg.MaxThreads()),
		results:    make([]atomic.Pointer[result], reg.MaxThreads()),
		heap:       heap,
		alloc:      esloco.New(heap, durable, true),
		durable:    durable,
		he:         hazardera.New(reg),
	}
	e.curTx.Store(seqIdxToTx(1, 0))
	for i := range e.writeSets {
		e.writeSets[i] = newWriteSet()
	}
	for i := range e.operations {
		e.operations[i].Store(&operation{seq: 0})
	}
	for i := range e.results {
		e.results[i].Store(&result{seq: 0})
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Close is a no-op; see oflf.Engine.Close for why.
func (e *Engine) Close() error { return nil }

// Tx carries per-call transaction state, threaded through every Word
// access made while running inside a transform-all pass.
type Tx struct {
	eng   *Engine
	tid   int
	curTx uint64
}

func (tx *Tx) lookup(a addr) (any, bool) { return tx.eng.writeSets[tx.tid].lookup(a) }
func (tx *Tx) stage(a addr, val any, apply func(uint64)) {
	tx.eng.writeSets[tx.tid].stage(a, val, apply)
}

func seqIdxToTx(seq, idx uint64) uint64 { return (seq << 10) | idx }
func txSeq(tx uint64) uint64            { return tx >> 10 }
func txIdx(tx uint64) uint64            { return tx & 0x3FF }

// UpdateTx runs fn as a wait-free update transaction on behalf of tid.
func UpdateTx[R any](eng *Engine, tid int, fn func(tx *Tx) (R, error)) (R, error) {
	v, err := eng.innerUpdateTx(tid, func(tx *Tx) (any, error) { return fn(tx) })
	var zero R
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	return v.(R), nil
}

// ReadTx runs fn as a read-only transaction, retrying up to MaxReadTries
// times before posing as UpdateTx.
func ReadTx[R any](eng *Engine, tid int, fn func(tx *Tx) (R, error)) (R, error) {
	eng.writeSets[tid].reset()
	for iter := 0; iter < MaxReadTries; iter++ {
		cur := eng.curTx.Load()
		eng.helpApply(cur, tid)
		eng.writeSets[tid].reset()
		eng.he.ProtectEra(tid, txSeq(cur))
		if cur != eng.curTx.Load() {
			continue
		}
		tx := &Tx{eng: eng, tid: tid, curTx: cur}
		r, err := fn(tx)
		if errors.Is(err, ErrAborted) {
			continue
		}
		eng.he.ClearEra(tid)
		return r, err
	}
	eng.he.ClearEra(tid)
	return UpdateTx(eng, tid, fn)
}

// innerUpdateTx announces fn, then repeatedly helps apply every
// outstanding announced operation (including its own) until either its own
// result is in, or it manages to commit the combined write-set itself.
func (e *Engine) innerUpdateTx(tid int, fn func(tx *Tx) (any, error)) (any, error) {
	firstEra := txSeq(e.curTx.Load())
	oldOp := e.operations[tid].Load()
	op := &operation{fn: fn, seq: oldOp.seq + 1, era: firstEra}
	e.operations[tid].Store(op)
	if oldOp.fn != nil {
		captured := oldOp
		e.he.Retire(&hazardera.Closure{
			NewEra:   captured.era,
			DelEra:   txSeq(e.curTx.Load()) + 1,
			Finalize: func() { captured.fn = nil },
		}, tid)
	}

	var tx *Tx
	for iter := 0; iter < 4; iter++ {
		if e.results[tid].Load().seq >= op.seq {
			break
		}
		cur := e.curTx.Load()
		e.writeSets[tid].reset()
		e.helpApply(cur, tid)
		e.writeSets[tid].reset()
		e.he.ProtectEra(tid, txSeq(cur))
		if cur != e.curTx.Load() {
			continue
		}
		tx = &Tx{eng: e, tid: tid, curTx: cur}
		ok, aborted := e.transformAll(tx, cur)
		if aborted || !ok {
			continue
		}
		if e.commitTx(tx) {
			break
		}
	}
	e.he.ClearEra(tid)
	e.he.Clean(txSeq(e.curTx.Load()), tid)
	e.log.Debug().Int("tid", tid).Log("ofwf: reclamation sweep")
	r := e.results[tid].Load()
	return r.val, r.err
}

// transformAll runs every thread's not-yet-applied operation using tx's
// write-set, recording each one's outcome in results. It returns ok=false
// without having applied anything further once curTx has moved out from
// under it (the caller must restart), and aborted=true if some operation
// itself asked to abort (ErrAborted), which likewise must restart.
func (e *Engine) transformAll(tx *Tx, cur uint64) (ok bool, aborted bool) {
	maxThreads := e.reg.MaxThreads()
	for i := 0; i < maxThreads; i++ {
		opI := e.operations[i].Load()
		resI := e.results[i].Load()
		if resI.seq >= opI.seq {
			continue
		}
		if cur != e.curTx.Load() {
			return false, false
		}
		val, err := opI.fn(tx)
		if errors.Is(err, ErrAborted) {
			return false, true
		}
		e.results[i].Store(&result{val: val, err: err, seq: opI.seq})
	}
	return true, false
}

// commitTx attempts to publish tx's combined write-set as the next
// transaction.
func (e *Engine) commitTx(tx *Tx) bool {
	ws := e.writeSets[tx.tid]
	if ws.numStores() == 0 {
		return true
	}
	if tx.curTx != e.curTx.Load() {
		return false
	}
	seq := txSeq(tx.curTx)
	newTx := seqIdxToTx(seq+1, uint64(tx.tid))
	ws.request.Store(newTx)
	e.durable.Fence()
	old := tx.curTx
	if !e.curTx.CompareAndSwap(old, newTx) {
		return false
	}
	e.durable.Fence()
	e.helpApply(newTx, tx.tid)
	e.log.Debug().Int("tid", tx.tid).Uint64("seq", seq+1).Log("ofwf: committed")
	return true
}

func (e *Engine) helpApply(lcurTx uint64, tid int) {
	idx := int(txIdx(lcurTx))
	seq := txSeq(lcurTx)
	owner := e.writeSets[idx]
	if lcurTx != owner.request.Load() {
		return
	}
	applier := owner
	if idx != tid {
		applier = e.writeSets[tid]
		applier.copyFrom(owner)
		if lcurTx != e.curTx.Load() {
			return
		}
		if lcurTx != owner.request.Load() {
			return
		}
	}
	applier.apply(seq)
	newReq := seqIdxToTx(seq+1, uint64(idx))
	owner.request.CompareAndSwap(lcurTx, newReq)
}

// TxNew allocates a fresh Word on the ordinary Go heap, see oflf.TxNew.
func TxNew[T any](val T) *Word[T] { return NewWord(val) }

// TxDelete retires w through the engine's hazard-era domain: the retired
// closure keeps w referenced until Clean finds no thread's published era in
// [era, era+1] (era being curTx's sequence at the call), and only then drops
// that reference, mirroring how the engine already retires a thread's own
// superseded operation closures. Unlike oflf.TxDelete, this is not a no-op -- OF-WF's
// per-transaction era numbering (already needed for wait-free helping)
// gives TxDelete a ready-made epoch to retire against, so this port
// exercises it for real reclamation instead of leaving retired nodes for
// the garbage collector the way OF-LF does.
func TxDelete[T any](tx *Tx, w *Word[T]) {
	era := txSeq(tx.eng.curTx.Load())
	tx.eng.he.Retire(&hazardera.Closure{
		NewEra:   era,
		DelEra:   era + 1,
		Finalize: func() { runtime.KeepAlive(w) },
	}, tx.tid)
}

// TxMalloc allocates size raw bytes from the engine's esloco-backed heap
// as part of tx; see oflf.Engine.TxMalloc for why this is staged through
// tx's own write-set rather than applied immediately.
func (e *Engine) TxMalloc(tx *Tx, size uint64) (uint64, error) {
	return e.alloc.MallocTxn(txnAdapter{tx: tx, heap: e.heap}, size)
}

// TxFree returns a TxMalloc'd block to the allocator's free-list as part
// of tx.
func (e *Engine) TxFree(tx *Tx, off uint64) {
	e.alloc.FreeTxn(txnAdapter{tx: tx, heap: e.heap}, off)
}

// GetRoot returns the value stored in root slot idx.
func GetRoot[T any](e *Engine, idx int) (T, error) {
	var zero T
	if idx < 0 || idx >= RootSlots {
		return zero, ErrRootIndex
	}
	p := e.roots[idx].Load()
	if p == nil {
		return zero, nil
	}
	v, _ := (*p).(T)
	return v, nil
}

// PutRoot stores val in root slot idx.
func PutRoot[T any](e *Engine, idx int, val T) error {
	if idx < 0 || idx >= RootSlots {
		return ErrRootIndex
	}
	var v any = val
	e.roots[idx].Store(&v)
	return nil
}
