package oflf

import (
	"sync/atomic"
	"unsafe"

	"github.com/joeycumines/go-ptm/esloco"
)

// txnAdapter bridges a running Tx into esloco's Txn contract: every
// metadata mutation a MallocTxn/FreeTxn call makes is staged into the
// same write-set ordinary Word stores use, keyed by the identity of the
// heap byte it touches, so it becomes visible to other threads -- and
// survives this transaction's own retry -- only once commitTx actually
// publishes the write-set, exactly like any other transactional store.
type txnAdapter struct {
	tx   *Tx
	heap []byte
}

var _ esloco.Txn = txnAdapter{}

func (t txnAdapter) LoadUint64(off uint64) uint64 {
	if v, ok := t.tx.lookup(addrOf(&t.heap[off])); ok {
		return v.(uint64)
	}
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&t.heap[off])))
}

func (t txnAdapter) StoreUint64(off uint64, val uint64) {
	heap := t.heap
	t.tx.stage(addrOf(&heap[off]), val, func(uint64) {
		atomic.StoreUint64((*uint64)(unsafe.Pointer(&heap[off])), val)
	})
}
