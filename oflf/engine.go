package oflf

import (
	"errors"
	"sync/atomic"

	"github.com/joeycumines/go-ptm/esloco"
	"github.com/joeycumines/go-ptm/internal/logging"
	"github.com/joeycumines/go-ptm/nvm"
	"github.com/joeycumines/go-ptm/registry"
)

// RootSlots mirrors the original's MAX_ROOT_POINTERS: the number of
// well-known, engine-held pointers an application can use as transaction
// roots without having to persist the address anywhere itself.
const RootSlots = 100

// ErrAborted is returned from a transaction body to signal a user-level
// abort: the engine discards the write-set and retries the transaction
// from the top, the same control-flow role the original's AbortedTx
// exception plays.
var ErrAborted = errors.New("oflf: transaction aborted")

// ErrRootIndex is returned by GetRoot/PutRoot for an out-of-range slot.
var ErrRootIndex = errors.New("oflf: root index out of range")

// Engine is one OneFile-LF instance: a shared curTx word, one write-set
// and request slot per registered thread, a root-pointer table, and an
// esloco-backed byte heap for raw allocations.
type Engine struct {
	reg       *registry.Registry
	curTx     atomic.Uint64
	writeSets []*writeSet
	roots     [RootSlots]atomic.Pointer[any]
	heap      []byte
	alloc     *esloco.Allocator
	durable   nvm.Durable
	log       *logging.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger attaches a structured logger; a commit emits one Debug event.
// A nil logger (the default) disables logging entirely.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New constructs an Engine bound to reg. heap backs the esloco allocator
// used by TxMalloc/TxFree; pass a plain make([]byte, n) for a purely
// volatile engine, or (*nvm.Region).Heap() to persist raw allocations.
// durable may be nil, defaulting to nvm.Volatile{}.
func New(reg *registry.Registry, heap []byte, durable nvm.Durable, opts ...Option) *Engine {
	if durable == nil {
		durable = nvm.Volatile{}
	}
	e := &Engine{
		reg:       reg,
		writeSets: make([]*writeSet, reg.MaxThreads()),
		heap:      heap,
		alloc:     esloco.New(heap, durable, true),
		durable:   durable,
	}
	e.curTx.Store(seqIdxToTx(1, 0))
	for i := range e.writeSets {
		e.writeSets[i] = newWriteSet()
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Close is a no-op: an Engine never owns heap/durable, only borrows them
// from whatever the caller passed to New, so there is nothing for it to
// release itself. Provided so Engine satisfies ptm.Closer uniformly
// alongside the romulus engines, which do own their region.
func (e *Engine) Close() error { return nil }

// Tx carries the per-call state a running transaction needs: which thread
// it belongs to and the curTx value observed when it began.
type Tx struct {
	eng   *Engine
	tid   int
	curTx uint64
}

func (tx *Tx) lookup(a addr) (any, bool) { return tx.eng.writeSets[tx.tid].lookup(a) }
func (tx *Tx) stage(a addr, val any, apply func(uint64)) {
	tx.eng.writeSets[tx.tid].stage(a, val, apply)
}

// seqIdxToTx / txSeq / txIdx pack and unpack curTx the same way the
// original's seqidx2trans/trans2seq/trans2idx do: a sequence number in the
// high bits, a thread index in the low 10 bits (so up to 1024 registered
// threads can be identified by a committed transaction).
func seqIdxToTx(seq, idx uint64) uint64 { return (seq << 10) | idx }
func txSeq(tx uint64) uint64            { return tx >> 10 }
func txIdx(tx uint64) uint64            { return tx & 0x3FF }

// UpdateTx runs fn as a read-write transaction on behalf of tid, retrying
// until it commits. fn returning ErrAborted restarts the transaction; any
// other non-nil error aborts it without retrying and is returned as-is.
func UpdateTx[R any](eng *Engine, tid int, fn func(tx *Tx) (R, error)) (R, error) {
	tx := &Tx{eng: eng, tid: tid}
	for {
		eng.beginTx(tx)
		r, err := fn(tx)
		if errors.Is(err, ErrAborted) {
			continue
		}
		if err != nil {
			var zero R
			return zero, err
		}
		if eng.commitTx(tx) {
			return r, nil
		}
	}
}

// ReadTx runs fn as a read-only transaction. It shares beginTx's
// help-and-retry loop with UpdateTx (a read-only body may still need to
// help apply someone else's in-flight commit before its reads are
// consistent), but never calls commitTx's CAS since an empty write-set
// always "commits" for free.
func ReadTx[R any](eng *Engine, tid int, fn func(tx *Tx) (R, error)) (R, error) {
	tx := &Tx{eng: eng, tid: tid}
	for {
		eng.beginTx(tx)
		r, err := fn(tx)
		if errors.Is(err, ErrAborted) {
			continue
		}
		var zero R
		if err != nil {
			return zero, err
		}
		return r, nil
	}
}

// beginTx is lock-free: the loop only restarts when another thread
// committed a transaction while we were helping apply the previous one.
func (e *Engine) beginTx(tx *Tx) {
	for {
		cur := e.curTx.Load()
		e.helpApply(cur, tx.tid)
		e.writeSets[tx.tid].reset()
		if cur == e.curTx.Load() {
			tx.curTx = cur
			return
		}
	}
}

// commitTx attempts to publish tx's write-set as the next transaction. It
// returns false (without having made any visible change) if curTx moved
// since beginTx, in which case the caller must begin again.
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
	e.log.Debug().Int("tid", tx.tid).Uint64("seq", seq+1).Log("oflf: committed")
	return true
}

// helpApply is wait-free population-oblivious: it either finds the
// request matching lcurTx already closed (nothing to do) or applies it
// itself, on behalf of whichever thread calls it.
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

// TxNew allocates a fresh Word on the ordinary Go heap, initialized to
// val. Unlike TxMalloc, this never touches the esloco-backed region: a
// Word's value may itself contain Go pointers, which must stay visible to
// the garbage collector.
func TxNew[T any](val T) *Word[T] { return NewWord(val) }

// TxDelete is the Word counterpart to TxNew. OneFile-LF performs no
// explicit reclamation of retired Words itself (the original likewise
// relies on whatever the surrounding data structure does); once nothing
// references w, Go's collector reclaims it. Callers building lock-free
// structures that need safe-to-free-while-others-may-still-read semantics
// should retire through package hazard instead of calling this directly.
func TxDelete[T any](*Word[T]) {}

// TxMalloc allocates size raw bytes from the engine's esloco-backed heap
// as part of tx, returning the byte offset of the allocation. Every
// metadata mutation this makes (freelist unlinking, poolTop advancement,
// the new block's size-exponent header word) is staged into tx's own
// write-set via txnAdapter, exactly like an ordinary Word store: it has
// no effect outside tx until tx commits, and a transaction that aborts or
// gets outraced and retries never leaked or duplicated a block, matching
// the original's EsLoco<tmtype> being wrapped in the same transactional
// store discipline as everything else a transaction touches.
func (e *Engine) TxMalloc(tx *Tx, size uint64) (uint64, error) {
	return e.alloc.MallocTxn(txnAdapter{tx: tx, heap: e.heap}, size)
}

// TxFree returns a TxMalloc'd block to the allocator's free-list as part
// of tx; see TxMalloc for why this is staged rather than immediate.
func (e *Engine) TxFree(tx *Tx, off uint64) {
	e.alloc.FreeTxn(txnAdapter{tx: tx, heap: e.heap}, off)
}

// GetRoot returns the value stored in root slot idx, or the zero value of
// T if nothing has been stored there yet.
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
