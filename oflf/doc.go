// Package oflf implements OneFile-LF, a lock-free persistent software
// transactional memory. Transactions are single-word-at-a-time: each write
// lands in a thread-local write-set, and committing is a single CAS on a
// shared curTx word packing a monotonic sequence number with the
// committer's thread id. Once curTx advances, every thread -- including
// ones not otherwise involved -- can finish applying the new transaction's
// write-set itself (help-apply), which is what makes progress lock-free
// instead of merely obstruction-free: a thread can never be stuck behind
// another thread that stalls mid-commit.
//
// The original design represents every transactional word as a persistent
// (value, sequence) pair updated with a double-width compare-and-swap, so
// a helper can tell whether a store has already been applied by another
// helper before it gets there. Go has no portable DCAS. This port follows
// the design notes' suggested substitute: each Word[T] holds an
// atomic.Pointer to an immutable (value, sequence) record, and "applying"
// a store is a pointer CAS guarded by the same sequence check the
// original's DCAS performed inline. That trades one allocation per applied
// store for the missing hardware primitive, while preserving the
// idempotent-replay property every helper relies on.
//
// A second consequence of targeting a garbage-collected runtime: Word[T]
// values live in ordinary Go-managed memory, not inside a byte-addressable
// mapped region -- a live Go pointer stored in mmap'd bytes would be
// invisible to the garbage collector and unsafe to reconstruct across a
// process restart. The esloco-backed heap exposed by Engine's
// TxMalloc/TxFree is still real region storage, for callers working with
// raw byte payloads; TxNew/TxDelete hand out ordinary *Word[T] values
// instead.
package oflf
