package nvm

import (
	"encoding/binary"
	"errors"
	"unsafe"
)

// magicValue marks a region file as already initialized by this module, so
// OpenRegion can tell a region it initialized earlier apart from a freshly
// created (zero-filled) or otherwise uninitialized file.
const magicValue = uint64(0x4f464c46525054d0)

// RootSlots is the size of the persistent root-pointer table: engines use
// slot 0 for their primary root and the rest for auxiliary structures
// (a benchmark's second root, a recovery marker, and so on).
const RootSlots = 100

// headerSize is magic (8 bytes) + one engine-owned control word (8 bytes,
// holding e.g. oflf's curTx or romulus's state word) + the root table.
const headerSize = 8 + 8 + RootSlots*8

var (
	// ErrMapFailed is returned when the backing file can't be created,
	// opened, or mapped.
	ErrMapFailed = errors.New("nvm: failed to map persistent region")
	// ErrRegionTooSmall is returned by OpenRegion/OpenRaw when the
	// requested size can't even hold the header.
	ErrRegionTooSmall = errors.New("nvm: region smaller than header")
	// ErrRootIndex is returned by Root/SetRoot for an out-of-range slot.
	ErrRootIndex = errors.New("nvm: root index out of range")
)

// backing is the platform-specific half of a mapping: a contiguous byte
// slice plus the means to sync and release it. See backing_unix.go and
// backing_other.go.
type backing interface {
	sync() error
	close() error
}

// Region is a byte-addressable mapped region: a fixed header (magic,
// control word, root table) followed by a heap that package esloco
// manages. Every access to r.Bytes()/r.Heap() is a plain slice index;
// durability is only earned by routing stores through r.Durable.
type Region struct {
	b       []byte
	bk      backing
	Durable Durable
}

// OpenRegion opens or creates the region file at path, sized to size bytes.
// recovered reports whether an already-initialized region was found (a
// recovery scenario) as opposed to a freshly zeroed one (a cold start).
func OpenRegion(path string, size int64) (r *Region, recovered bool, err error) {
	if size < int64(headerSize) {
		return nil, false, ErrRegionTooSmall
	}
	buf, existed, bk, err := openMapped(path, size)
	if err != nil {
		return nil, false, err
	}
	r = &Region{b: buf, bk: bk, Durable: regionDurable{bk}}
	if existed && binary.LittleEndian.Uint64(r.b[0:8]) == magicValue {
		return r, true, nil
	}
	for i := range r.b {
		r.b[i] = 0
	}
	binary.LittleEndian.PutUint64(r.b[0:8], magicValue)
	r.Durable.FlushRange(unsafe.Pointer(&r.b[0]), uintptr(len(r.b)))
	r.Durable.Fence()
	if err := r.Durable.Sync(); err != nil {
		return nil, false, err
	}
	return r, false, nil
}

// Close releases the underlying mapping (and, on unix, the backing file
// descriptor). It does not remove the file.
func (r *Region) Close() error { return r.bk.close() }

// Bytes returns the whole region, header included.
func (r *Region) Bytes() []byte { return r.b }

// Heap returns the portion of the region past the header, i.e. the span
// package esloco is responsible for carving into blocks.
func (r *Region) Heap() []byte { return r.b[headerSize:] }

// HeapOffset is the byte offset of Heap()[0] within Bytes().
func (r *Region) HeapOffset() int { return headerSize }

// ControlWord returns the single engine-owned persistent word in the
// header (oflf's packed curTx, romulus's recovery state).
func (r *Region) ControlWord() uint64 { return binary.LittleEndian.Uint64(r.b[8:16]) }

// SetControlWord stores and flushes the control word. Callers needing
// ordering against other stores must still call Durable.Fence/Sync
// themselves.
func (r *Region) SetControlWord(v uint64) {
	binary.LittleEndian.PutUint64(r.b[8:16], v)
	r.Durable.FlushRange(unsafe.Pointer(&r.b[8]), 8)
}

func rootOffset(i int) (int, error) {
	if i < 0 || i >= RootSlots {
		return 0, ErrRootIndex
	}
	return 16 + i*8, nil
}

// Root returns the heap offset stored in root slot i.
func (r *Region) Root(i int) (uint64, error) {
	off, err := rootOffset(i)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(r.b[off:]), nil
}

// SetRoot stores heapOffset into root slot i and flushes it.
func (r *Region) SetRoot(i int, heapOffset uint64) error {
	off, err := rootOffset(i)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(r.b[off:], heapOffset)
	r.Durable.FlushRange(unsafe.Pointer(&r.b[off]), 8)
	return nil
}

// Raw is a bare mapped byte range with no header or root table of its own:
// romulus uses it to lay out two twin regions (main/back) plus its own
// recovery header on top, rather than nvm's single-region layout.
type Raw struct {
	b       []byte
	bk      backing
	Durable Durable
}

// OpenRaw opens or creates a raw mapping at path, sized to size bytes.
func OpenRaw(path string, size int64) (r *Raw, existed bool, err error) {
	buf, existed, bk, err := openMapped(path, size)
	if err != nil {
		return nil, false, err
	}
	return &Raw{b: buf, bk: bk, Durable: regionDurable{bk}}, existed, nil
}

// Bytes returns the whole raw mapping.
func (r *Raw) Bytes() []byte { return r.b }

// Close releases the underlying mapping.
func (r *Raw) Close() error { return r.bk.close() }
