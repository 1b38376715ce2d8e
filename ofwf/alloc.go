package ofwf

import (
	"sync/atomic"
	"unsafe"

	"github.com/joeycumines/go-ptm/esloco"
)

// txnAdapter bridges a running Tx into esloco's Txn contract; see
// oflf.txnAdapter for the fuller rationale. ofwf keeps an independent copy
// rather than sharing oflf's, for the same reason the two engines keep
// independent Word/writeSet types: their Tx types are unrelated.
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
