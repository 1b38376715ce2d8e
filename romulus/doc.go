// Package romulus implements the twin-region Romulus family: every
// transaction's writes land in one physical region while a byte-range log
// records exactly which ranges changed, so the second (mirror) region can
// be brought back in sync with a handful of memcpys instead of a full
// region copy. Unlike oflf/ofwf, where a Word[T] lives on the Go heap and
// only raw TxMalloc allocations use region bytes, Romulus's
// whole scheme is built on copying live byte ranges between two regions,
// so persist.Word's value has to be a real offset into real mapped memory.
//
// Two variants share the region/log/allocator skeleton in shared.go:
//
//   - LogEngine (log.go) serializes writers with a cohort lock and folds
//     every concurrently-queued writer's closure into one combined
//     transaction before replicating to the mirror (flat combining).
//   - LREngine (lr.go) never blocks readers against writers: a writer
//     mutates whichever side readers are not currently addressing, flips
//     which side is current, drains the now-stale side, then replays the
//     same writes there so both sides agree again before the next writer
//     starts.
//
// Both variants recover from a crash the same way: the persistent header's
// state word records whether a writer was MUTATING (only the region it was
// writing may have diverged; recovery overwrites it from the other region)
// or COPYING (the written region is authoritative; recovery overwrites the
// other one from it). IDLE means no recovery is needed.
package romulus
