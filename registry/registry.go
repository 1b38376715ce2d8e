package registry

import (
	"errors"
	"sync/atomic"
)

// DefaultMaxThreads is the default capacity of a Registry, matching the
// original design's REGISTRY_MAX_THREADS.
const DefaultMaxThreads = 128

// ErrRegistryFull is returned by Join when every slot is occupied by a live
// Handle. The engines never call Join themselves (they take the caller's
// tid); cmd/ptmdemo treats this error as fatal, since a caller cannot use
// an engine without a thread id.
var ErrRegistryFull = errors.New("registry: too many concurrent callers")

// Registry assigns dense identifiers in [0, N) to concurrent callers.
//
// Progress condition: Join is wait-free bounded by N (the registry size);
// Handle.Release is wait-free population oblivious.
type Registry struct {
	maxThreads int
	used       []atomic.Bool
	maxTid     atomic.Int32
}

// New constructs a Registry with room for maxThreads concurrent callers. A
// non-positive maxThreads selects DefaultMaxThreads.
func New(maxThreads int) *Registry {
	if maxThreads <= 0 {
		maxThreads = DefaultMaxThreads
	}
	r := &Registry{
		maxThreads: maxThreads,
		used:       make([]atomic.Bool, maxThreads),
	}
	r.maxTid.Store(-1)
	return r
}

// Handle is a checkout of one dense id. It must be released (typically via
// defer) once the caller is done, or the slot is leaked for the lifetime of
// the Registry.
//
// Handle stands in for the original design's thread_local scoped
// deregistration: Go has no destructors for goroutines, so release is
// explicit rather than automatic.
type Handle struct {
	r        *Registry
	tid      int
	released atomic.Bool
}

// Join acquires the lowest free slot and returns a Handle owning it.
func (r *Registry) Join() (*Handle, error) {
	for tid := 0; tid < r.maxThreads; tid++ {
		if r.used[tid].Load() {
			continue
		}
		if !r.used[tid].CompareAndSwap(false, true) {
			continue
		}
		curMax := r.maxTid.Load()
		for curMax <= int32(tid) {
			if r.maxTid.CompareAndSwap(curMax, int32(tid+1)) {
				break
			}
			curMax = r.maxTid.Load()
		}
		return &Handle{r: r, tid: tid}, nil
	}
	return nil, ErrRegistryFull
}

// TID returns the dense id owned by this handle.
func (h *Handle) TID() int { return h.tid }

// Release frees the slot owned by h. Idempotent.
func (h *Handle) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.r.used[h.tid].Store(false)
	}
}

// MaxThreads returns the registry's fixed capacity.
func (r *Registry) MaxThreads() int { return r.maxThreads }

// MaxTid returns one past the highest tid ever handed out (not tight: a tid
// below this value may since have been released). Callers scanning
// per-thread state (e.g. readind.Indicator.IsEmpty) iterate [0, MaxTid()).
func (r *Registry) MaxTid() int {
	m := r.maxTid.Load()
	if m < 0 {
		return 0
	}
	return int(m)
}
