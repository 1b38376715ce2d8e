package esloco

import (
	"encoding/binary"
	"errors"
	"unsafe"

	"golang.org/x/exp/constraints"

	"github.com/joeycumines/go-ptm/nvm"
)

// MaxBlockSize bounds the freelists table: entry i holds the free-list for
// blocks of size 2^i bytes, for i in [0, MaxBlockSize). 50 covers up to
// 1024 TB worth of block sizes, same headroom as the original.
const MaxBlockSize = 50

// blockHeaderSize is the two 8-byte words prefixing every block: size
// exponent, then next-free-block offset (0 means "none", so offset 0 of
// the heap is never itself allocatable -- the header area reserves it).
const blockHeaderSize = 16

// headerBytes is the freelists table (MaxBlockSize heads) plus the single
// poolTop word, both stored at the front of the heap so they persist and
// recover along with everything else, rounded up to a multiple of 16 so the
// first block (and, since every block size is a power of two of at least
// 16, every later one) starts 16-byte aligned relative to the heap.
const headerBytes = (MaxBlockSize*8 + 8 + 15) &^ 15

// ErrOutOfMemory is returned by Malloc when the heap has no free block of
// the requested size and no room left to carve a new one from the top.
var ErrOutOfMemory = errors.New("esloco: out of memory for allocation")

// Allocator is EsLoco bound to a single heap slice (normally
// (*nvm.Region).Heap()). It is not safe for concurrent use; callers
// serialize access to it the same way the original serializes access
// through a PTM's own transactional store mechanism (a committing
// transaction is the only writer to the freelists and poolTop words).
type Allocator struct {
	heap    []byte
	durable nvm.Durable
}

// New wraps heap with an allocator. If fresh is true the freelists and
// poolTop are (re)initialized to empty; otherwise they are trusted as-is,
// the recovery path after reopening an existing region.
func New(heap []byte, durable nvm.Durable, fresh bool) *Allocator {
	if durable == nil {
		durable = nvm.Volatile{}
	}
	a := &Allocator{heap: heap, durable: durable}
	if fresh {
		for i := range a.heap[:headerBytes] {
			a.heap[i] = 0
		}
		a.setPoolTop(headerBytes)
		a.flushHeader()
	}
	return a
}

// UsedBytes reports how much of the heap, from its start, may contain
// allocated (or freed-but-not-yet-reused) blocks.
func (a *Allocator) UsedBytes() uint64 { return a.poolTop() }

func (a *Allocator) freelistHead(exp uint64) uint64 {
	return binary.LittleEndian.Uint64(a.heap[exp*8:])
}

func (a *Allocator) setFreelistHead(exp, off uint64) {
	binary.LittleEndian.PutUint64(a.heap[exp*8:], off)
	a.durable.FlushRange(ptrAt(a.heap, exp*8), 8)
}

func (a *Allocator) poolTop() uint64 {
	return binary.LittleEndian.Uint64(a.heap[MaxBlockSize*8:])
}

func (a *Allocator) setPoolTop(off uint64) {
	binary.LittleEndian.PutUint64(a.heap[MaxBlockSize*8:], off)
	a.durable.FlushRange(ptrAt(a.heap, MaxBlockSize*8), 8)
}

func (a *Allocator) flushHeader() {
	a.durable.FlushRange(ptrAt(a.heap, 0), headerBytes)
	a.durable.Fence()
}

func blockSizeExp(off uint64, heap []byte) uint64 {
	return binary.LittleEndian.Uint64(heap[off:])
}

func setBlockSizeExp(off uint64, heap []byte, exp uint64) {
	binary.LittleEndian.PutUint64(heap[off:], exp)
}

func blockNext(off uint64, heap []byte) uint64 {
	return binary.LittleEndian.Uint64(heap[off+8:])
}

func setBlockNext(off uint64, heap []byte, next uint64) {
	binary.LittleEndian.PutUint64(heap[off+8:], next)
}

// Txn is the minimal transactional load/store contract a hosting engine
// implements over its own Word/write-set (or byte-range log) mechanism.
// MallocTxn/FreeTxn route every metadata mutation -- freelist-head
// unlinking, poolTop advancement, a block's size-exponent header word --
// through it instead of touching the heap directly, so those mutations
// become visible to other threads, and survive a transaction's own retry,
// only on the same terms as an ordinary transactional store: the original
// ties this guarantee to EsLoco being instantiated as EsLoco<tmtype>, so
// every allocator bookkeeping write is itself one of the PTM's own
// transactional stores. off is always a byte offset into the heap.
type Txn interface {
	LoadUint64(off uint64) uint64
	StoreUint64(off uint64, val uint64)
}

// MallocTxn behaves like Malloc, but every metadata mutation is staged
// through txn rather than applied to the heap immediately: it becomes
// part of whatever transaction txn itself is bound to, so an aborted or
// outraced attempt never permanently consumes (or permanently loses) a
// block the way a direct Malloc call would.
func (a *Allocator) MallocTxn(txn Txn, size uint64) (uint64, error) {
	exp := highestBit(size + blockHeaderSize)
	if exp >= MaxBlockSize {
		return 0, ErrOutOfMemory
	}
	if head := txn.LoadUint64(exp * 8); head != 0 {
		txn.StoreUint64(exp*8, txn.LoadUint64(head+8))
		return head + blockHeaderSize, nil
	}
	top := txn.LoadUint64(MaxBlockSize * 8)
	blockSize := uint64(1) << exp
	if top+blockSize > uint64(len(a.heap)) {
		return 0, ErrOutOfMemory
	}
	txn.StoreUint64(top, exp)
	txn.StoreUint64(MaxBlockSize*8, top+blockSize)
	return top + blockHeaderSize, nil
}

// FreeTxn is the Txn-routed counterpart to Free.
func (a *Allocator) FreeTxn(txn Txn, off uint64) {
	if off == 0 {
		return
	}
	blockOff := off - blockHeaderSize
	exp := txn.LoadUint64(blockOff)
	txn.StoreUint64(blockOff+8, txn.LoadUint64(exp*8))
	txn.StoreUint64(exp*8, blockOff)
}

// Malloc returns the heap offset of a fresh block able to hold size bytes,
// or ErrOutOfMemory if none is available. Reusing a free block costs one
// store (unlinking the free-list head); carving one from the top costs two
// (the new poolTop, and the block's size-exponent header word).
func (a *Allocator) Malloc(size uint64) (uint64, error) {
	exp := highestBit(size + blockHeaderSize)
	if exp >= MaxBlockSize {
		return 0, ErrOutOfMemory
	}
	if head := a.freelistHead(exp); head != 0 {
		a.setFreelistHead(exp, blockNext(head, a.heap))
		return head + blockHeaderSize, nil
	}
	top := a.poolTop()
	blockSize := uint64(1) << exp
	if top+blockSize > uint64(len(a.heap)) {
		return 0, ErrOutOfMemory
	}
	setBlockSizeExp(top, a.heap, exp)
	a.durable.FlushRange(ptrAt(a.heap, top), 8)
	a.setPoolTop(top + blockSize)
	return top + blockHeaderSize, nil
}

// Free returns the block at payload offset off (as returned by Malloc) to
// its size class's free-list. off==0 is treated as a no-op, mirroring
// free(nullptr).
func (a *Allocator) Free(off uint64) {
	if off == 0 {
		return
	}
	blockOff := off - blockHeaderSize
	exp := blockSizeExp(blockOff, a.heap)
	setBlockNext(blockOff, a.heap, a.freelistHead(exp))
	a.durable.FlushRange(ptrAt(a.heap, blockOff+8), 8)
	a.setFreelistHead(exp, blockOff)
}

// highestBit returns the exponent of the smallest power of two >= val.
func highestBit[T constraints.Unsigned](val T) uint64 {
	var b uint64
	for (val >> (b + 1)) != 0 {
		b++
	}
	if val > T(1)<<b {
		return b + 1
	}
	return b
}

// ptrAt converts a heap offset into the unsafe.Pointer FlushRange expects,
// so callers don't repeat the &slice[off] cast; it lives next to the
// binary.LittleEndian accessors above because both assume off is in range.
func ptrAt(heap []byte, off uint64) unsafe.Pointer {
	if off >= uint64(len(heap)) {
		return nil
	}
	return unsafe.Pointer(&heap[off])
}
