package romulus

import "unsafe"

// Numeric bounds the types persist.Word can hold: fixed-width 8-byte
// values that round-trip through an in-place pointer cast, the same way
// the original's get_object/put_object templates do.
type Numeric interface {
	~int64 | ~uint64 | ~float64
}

// txContext is implemented by LogTx and LRTx: it gives Word[T] the byte
// slice it should read or write through, and a place to record writes so
// they participate in the enclosing transaction's replication log.
type txContext interface {
	base() []byte
	logWrite(off, length uint64)
}

// Word is a transactional memory location inside a Romulus region,
// addressed by a fixed byte offset. Unlike oflf/ofwf's Word[T], which
// lives on the Go heap, persist.Word's value lives in the mapped region
// itself: Romulus's replication scheme is built on copying byte ranges, so
// the ranges have to be real addresses in real persistent memory rather
// than Go pointers.
type Word[T Numeric] struct {
	off uint64
}

// NewWordAt wraps the 8 bytes at off (a heap offset returned by an
// allocator's Malloc, or a fixed layout constant) as a Word[T].
func NewWordAt[T Numeric](off uint64) *Word[T] { return &Word[T]{off: off} }

// Offset returns the byte offset this Word is bound to.
func (w *Word[T]) Offset() uint64 { return w.off }

// Load returns w's current value as seen through tx's region.
func (w *Word[T]) Load(tx txContext) T {
	return *(*T)(unsafe.Pointer(&tx.base()[w.off]))
}

// Store writes val in place and records the write in tx's transaction log.
// Callers must not call Store from a read-only transaction body.
func (w *Word[T]) Store(tx txContext, val T) {
	*(*T)(unsafe.Pointer(&tx.base()[w.off])) = val
	tx.logWrite(w.off, 8)
}
