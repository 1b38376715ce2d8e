package oflf

import (
	"sync/atomic"
)

// versionedValue is the (value, sequence) pair a Word atomically swaps in
// as a whole, standing in for the original's 128-bit (val, seq) DCAS word.
type versionedValue[T any] struct {
	val T
	seq uint64
}

// Word is a single transactional memory location. It must only ever be
// read via Load and written via Store, both of which take the Tx the
// access belongs to; reading or writing a Word outside of a transaction is
// a programming error that this package does not attempt to detect.
type Word[T any] struct {
	p atomic.Pointer[versionedValue[T]]
}

// NewWord returns a Word initialized to val, not yet owned by any
// transaction.
func NewWord[T any](val T) *Word[T] {
	w := &Word[T]{}
	w.p.Store(&versionedValue[T]{val: val})
	return w
}

// Load returns w's value as seen from tx: if tx has already staged a write
// to w this transaction, that pending value is returned (read-your-writes
// within the transaction), otherwise the last committed value is -- unless
// that value was written by a transaction sequenced after tx's own
// snapshot, in which case tx's view is torn (some other word it already
// read may reflect the old state) and Load returns ErrAborted, mirroring
// the original's pload() throwing AbortedTxException when a word's seq
// exceeds myTx.seq. Callers run inside UpdateTx/ReadTx, whose retry loop
// already treats ErrAborted as "restart the transaction".
func (w *Word[T]) Load(tx *Tx) (T, error) {
	if v, ok := tx.lookup(wordAddr(w)); ok {
		return v.(T), nil
	}
	cur := w.p.Load()
	if cur.seq > txSeq(tx.curTx) {
		var zero T
		return zero, ErrAborted
	}
	return cur.val, nil
}

// Store stages val as w's new value for when tx commits. It does not take
// effect immediately: other threads (and tx itself, via Load of a
// different Word) won't observe it until commitTx succeeds and helpApply
// runs the write-set.
func (w *Word[T]) Store(tx *Tx, val T) {
	tx.stage(wordAddr(w), val, func(seq uint64) { w.applyIfNewer(val, seq) })
}

// applyIfNewer installs val as w's value tagged with seq, unless w was
// already updated by an equal-or-newer sequence -- the mechanism that lets
// two helpers race to apply the same committed write-set without either
// undoing the other's work.
func (w *Word[T]) applyIfNewer(val T, seq uint64) {
	for {
		cur := w.p.Load()
		if cur != nil && cur.seq >= seq {
			return
		}
		next := &versionedValue[T]{val: val, seq: seq}
		if w.p.CompareAndSwap(cur, next) {
			return
		}
	}
}

// wordAddr returns the address identifying w for write-set coalescing
// purposes; any two accesses to the same Word must coalesce regardless of
// T's identity, so it is computed uniformly via addrOf rather than a
// type-parameterized helper.
func wordAddr[T any](w *Word[T]) addr {
	return addrOf(w)
}
