package romulus

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/joeycumines/go-ptm/esloco"
	"github.com/joeycumines/go-ptm/internal/logging"
	"github.com/joeycumines/go-ptm/nvm"
)

// Persistent region state, stored in the header's state word. IDLE means
// main and back agree; MUTATING means the region a writer is touching may
// have diverged from its mirror; COPYING means that region is already
// authoritative and the mirror is mid-catch-up.
const (
	stateIdle uint64 = iota
	stateMutating
	stateCopying
)

// RootSlots mirrors the original's MAX_ROOT_POINTERS, same as oflf/ofwf.
const RootSlots = 100

// headerSize is magic (8) + state (8) + usedSize (8) + rootsOff (8). It is
// deliberately small: everything else durable lives inside main/back,
// where the log-and-replicate scheme keeps it consistent. The header only
// ever needs to survive via its own direct flush+fence+sync, not the
// region-mirroring protocol.
const headerSize = 8 + 8 + 8 + 8

const magicValue = uint64(0x526f6d756c75735f)

var (
	// ErrCorruptState is returned by recovery when the persistent state
	// word holds a value other than IDLE, MUTATING, or COPYING.
	ErrCorruptState = errors.New("romulus: persistent state is corrupt")
	// ErrRootIndex is returned by root-table access for an out-of-range slot.
	ErrRootIndex = errors.New("romulus: root index out of range")
	// ErrAborted signals a user-level abort from within a write
	// transaction body, shared by both engine variants.
	ErrAborted = errors.New("romulus: transaction aborted")
	// ErrReadOnly is returned by TxMalloc/TxFree when called from a
	// read-only transaction.
	ErrReadOnly = errors.New("romulus: allocation attempted inside a read-only transaction")
)

// shared is the twin-region skeleton common to both engine variants: one
// mapped file laid out as [header][main][back], each of main/back sized
// regionSize bytes, the chunked byte-range log a writer accumulates
// between beginMutation and finishMutation/abortMutation, and the
// bookkeeping needed to recover after a crash.
type shared struct {
	raw        *nvm.Raw
	durable    nvm.Durable
	regionSize int64
	log        *txLog
	logger     *logging.Logger
}

// openShared maps (or creates) the region file at path, recovers it if
// necessary, and -- on a cold start -- bootstraps a root-pointer table
// inside main via a throwaway allocator, replicating it to back before
// returning. maxLogBytes bounds the byte-range log (see txLog.add). logger
// may be nil, disabling structured logging entirely.
func openShared(path string, regionSize int64, maxLogBytes uint64, logger *logging.Logger) (s *shared, recovered bool, err error) {
	raw, existed, err := nvm.OpenRaw(path, int64(headerSize)+2*regionSize)
	if err != nil {
		return nil, false, err
	}
	s = &shared{raw: raw, durable: raw.Durable, regionSize: regionSize, log: newTxLog(maxLogBytes), logger: logger}

	if existed && binary.LittleEndian.Uint64(raw.Bytes()[0:8]) == magicValue {
		if err := s.recover(); err != nil {
			return nil, false, err
		}
		return s, true, nil
	}

	b := raw.Bytes()
	for i := range b {
		b[i] = 0
	}
	binary.LittleEndian.PutUint64(b[0:8], magicValue)
	s.storeState(stateIdle)
	s.durable.FlushRange(unsafe.Pointer(&b[0]), uintptr(len(b)))
	s.durable.Fence()
	if err := s.durable.Sync(); err != nil {
		return nil, false, err
	}

	alloc := s.newAllocator(s.main(), true)
	s.beginMutation()
	off, merr := alloc.Malloc(RootSlots * 8)
	if merr != nil {
		return nil, false, merr
	}
	zero := s.main()[off : off+RootSlots*8]
	for i := range zero {
		zero[i] = 0
	}
	s.log.add(off, RootSlots*8)
	s.setRootsOff(off)
	s.finishMutation(s.main(), s.back())

	return s, false, nil
}

// Close releases the underlying mapping.
func (s *shared) Close() error { return s.raw.Close() }

func (s *shared) main() []byte { b := s.raw.Bytes(); return b[headerSize : headerSize+s.regionSize] }
func (s *shared) back() []byte { b := s.raw.Bytes(); return b[headerSize+s.regionSize:] }

func (s *shared) statePtr() *uint64    { return (*uint64)(unsafe.Pointer(&s.raw.Bytes()[8])) }
func (s *shared) usedSizePtr() *uint64 { return (*uint64)(unsafe.Pointer(&s.raw.Bytes()[16])) }
func (s *shared) rootsOffPtr() *uint64 { return (*uint64)(unsafe.Pointer(&s.raw.Bytes()[24])) }

func (s *shared) loadState() uint64 { return atomic.LoadUint64(s.statePtr()) }
func (s *shared) storeState(v uint64) {
	atomic.StoreUint64(s.statePtr(), v)
	s.durable.FlushRange(unsafe.Pointer(s.statePtr()), 8)
}

func (s *shared) rootsOff() uint64 { return atomic.LoadUint64(s.rootsOffPtr()) }
func (s *shared) setRootsOff(v uint64) {
	atomic.StoreUint64(s.rootsOffPtr(), v)
	s.durable.FlushRange(unsafe.Pointer(s.rootsOffPtr()), 8)
	s.durable.Fence()
}

func (s *shared) rootOffset(i int) (uint64, error) {
	if i < 0 || i >= RootSlots {
		return 0, ErrRootIndex
	}
	return s.rootsOff() + uint64(i)*8, nil
}

// root reads root slot i's stored offset from region (whichever physical
// region the caller considers authoritative right now).
func (s *shared) root(region []byte, i int) (uint64, error) {
	off, err := s.rootOffset(i)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(region[off:]), nil
}

// setRoot stores val into root slot i within region, logging the write so
// it participates in the enclosing transaction's replication. Must only be
// called while a mutation is in progress.
func (s *shared) setRoot(region []byte, i int, val uint64) error {
	off, err := s.rootOffset(i)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(region[off:], val)
	s.log.add(off, 8)
	return nil
}

// newAllocator wraps region with an EsLoco allocator whose FlushRange
// calls also feed this shared's byte-range log, so the allocator's own
// freelist/poolTop bookkeeping replicates exactly like an ordinary Word
// store.
func (s *shared) newAllocator(region []byte, fresh bool) *esloco.Allocator {
	return esloco.New(region, logDurable{under: s.durable, log: s.log, base: uintptr(unsafe.Pointer(&region[0]))}, fresh)
}

// beginMutation transitions the region to MUTATING and clears the log, the
// first step of every write transaction regardless of variant.
func (s *shared) beginMutation() {
	s.log.reset()
	s.storeState(stateMutating)
	s.durable.Fence()
}

// abortMutation undoes every range logged since beginMutation by copying
// them back from src (the untouched mirror) over dst (what the aborted
// body just wrote), clears the log, and returns state to IDLE.
func (s *shared) abortMutation(src, dst []byte) {
	s.durable.Fence()
	s.replicate(src, dst)
	s.log.reset()
	s.storeState(stateIdle)
	s.durable.Fence()
}

// finishMutation transitions to COPYING, replicates every logged range
// from src to dst, clears the log, and returns state to IDLE.
func (s *shared) finishMutation(src, dst []byte) {
	s.durable.Fence()
	s.storeState(stateCopying)
	_ = s.durable.Sync()
	s.replicate(src, dst)
	s.log.reset()
	s.storeState(stateIdle)
	s.durable.Fence()
}

// replicate copies src onto dst, using the byte-range log when it is still
// enabled (the common, cheap case) or falling back to a full-region copy
// once the log has disabled itself for growing too large.
func (s *shared) replicate(src, dst []byte) {
	if s.log.disabled {
		s.copyAll(src, dst)
		return
	}
	s.applyLog(src, dst)
}

// applyLog copies every logged byte range from src to dst, flushing each
// one. Used both for forward replication (finishMutation) and rollback
// (abortMutation, with src/dst swapped).
func (s *shared) applyLog(src, dst []byte) {
	for _, e := range s.log.entries {
		end := e.offset + e.length
		if end > uint64(len(src)) {
			end = uint64(len(src))
		}
		if e.offset >= end {
			continue
		}
		copy(dst[e.offset:end], src[e.offset:end])
		s.durable.FlushRange(unsafe.Pointer(&dst[e.offset]), uintptr(end-e.offset))
	}
}

func (s *shared) copyAll(src, dst []byte) {
	n := uint64(len(src))
	if n > uint64(len(dst)) {
		n = uint64(len(dst))
	}
	copy(dst[:n], src[:n])
	s.durable.FlushRange(unsafe.Pointer(&dst[0]), uintptr(n))
}

// recover inspects the persistent state word left over from a prior run
// and, if it indicates a crash mid-transaction, restores consistency
// between main and back with a full-region copy (recovery does not trust
// the in-flight, necessarily volatile log from before the crash).
func (s *shared) recover() error {
	state := s.loadState()
	switch state {
	case stateIdle:
		return nil
	case stateCopying:
		// The region being written (main) is authoritative; finish
		// catching back up to it.
		s.logger.Warning().Uint64("state", state).Log("romulus: recovering from a crash during COPYING")
		s.copyAll(s.main(), s.back())
	case stateMutating:
		// main may have diverged but back is still the last known-good
		// state; roll main back.
		s.logger.Warning().Uint64("state", state).Log("romulus: recovering from a crash during MUTATING")
		s.copyAll(s.back(), s.main())
	default:
		return ErrCorruptState
	}
	s.durable.Fence()
	s.storeState(stateIdle)
	return nil
}

// logDurable wraps a real nvm.Durable so every FlushRange call is also
// recorded in the shared byte-range log, under the byte offset of addr
// relative to base. This lets esloco's internal freelist/poolTop writes
// participate in the same undo/redo log as ordinary Word[T] stores,
// without esloco needing any awareness of Romulus's replication scheme.
type logDurable struct {
	under nvm.Durable
	log   *txLog
	base  uintptr
}

func (d logDurable) FlushRange(addr unsafe.Pointer, n uintptr) {
	off := uintptr(addr) - d.base
	d.log.add(uint64(off), uint64(n))
	d.under.FlushRange(addr, n)
}

func (d logDurable) Fence() { d.under.Fence() }

func (d logDurable) Sync() error { return d.under.Sync() }
