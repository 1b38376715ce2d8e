// Package esloco implements EsLoco, an "Extremely Simple memory aLOCatOr":
// an intrusive power-of-two free-list allocator meant to sit directly on
// top of a byte-addressable persistent region.
//
// Blocks are always a power of two in size, the smallest that fits the
// requested payload plus a block header. freelists[i] holds the head
// offset of the free-list for block size 2^i; when no suitable block is
// free, Malloc carves a fresh one off the high-water mark (poolTop).
//
// This Go port stores everything as byte offsets into a caller-supplied
// heap slice rather than as raw pointers: an *Allocator, unlike the
// original's P<T>-templated C++ class, never smuggles a Go pointer into
// mapped memory, so the heap slice can legitimately be backed by mmap'd
// NVM and survive a process restart intact -- on reopen, freelists and
// poolTop are simply reinterpreted from the same bytes, with no pointer
// swizzling required.
//
// Malloc/Free mutate the heap directly and take effect immediately; they
// exist for callers (such as romulus, which makes every FlushRange
// participate in its own byte-range replication log) that already make
// these writes transactional some other way. MallocTxn/FreeTxn instead
// route every metadata mutation through the caller's Txn, so a hosting
// engine with its own word/write-set commit protocol (oflf, ofwf) can
// stage allocator bookkeeping into that same protocol and get rollback
// and visibility semantics for free, the same guarantee the original gets
// from instantiating EsLoco<tmtype> directly.
package esloco
