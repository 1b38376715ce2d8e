package esloco

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-ptm/nvm"
)

func TestAllocator_mallocReturnsDistinctNonOverlappingBlocks(t *testing.T) {
	t.Parallel()

	heap := make([]byte, 1<<16)
	a := New(heap, nvm.Volatile{}, true)

	p1, err := a.Malloc(24)
	require.NoError(t, err)
	p2, err := a.Malloc(24)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
	assert.Greater(t, p1, uint64(0), "offset 0 is reserved by the header, never allocatable")
}

func TestAllocator_freeThenMallocReusesBlock(t *testing.T) {
	t.Parallel()

	heap := make([]byte, 1<<16)
	a := New(heap, nvm.Volatile{}, true)

	topBefore := a.UsedBytes()
	p1, err := a.Malloc(24)
	require.NoError(t, err)
	a.Free(p1)
	topAfterFree := a.UsedBytes()

	p2, err := a.Malloc(24)
	require.NoError(t, err)
	assert.Equal(t, p1, p2, "freed block of the same size class should be reused instead of carving new space")
	assert.Equal(t, topAfterFree, a.UsedBytes(), "reusing a free block must not advance poolTop")
	assert.Greater(t, topAfterFree, topBefore)
}

func TestAllocator_outOfMemoryWhenHeapExhausted(t *testing.T) {
	t.Parallel()

	heap := make([]byte, headerBytes+64) // room for small blocks only
	a := New(heap, nvm.Volatile{}, true)

	_, err := a.Malloc(16)
	require.NoError(t, err)
	_, err = a.Malloc(4096)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestAllocator_freeOfZeroOffsetIsNoOp(t *testing.T) {
	t.Parallel()

	heap := make([]byte, 1<<12)
	a := New(heap, nvm.Volatile{}, true)
	top := a.UsedBytes()
	a.Free(0)
	assert.Equal(t, top, a.UsedBytes())
}

func TestAllocator_reopenWithoutFreshPreservesState(t *testing.T) {
	t.Parallel()

	heap := make([]byte, 1<<16)
	a := New(heap, nvm.Volatile{}, true)
	p1, err := a.Malloc(24)
	require.NoError(t, err)

	reopened := New(heap, nvm.Volatile{}, false)
	p2, err := reopened.Malloc(24)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2, "a non-fresh reopen must continue allocating past what's already used")
}

func TestHighestBit_roundsUpToPowerOfTwo(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(4), highestBit(uint64(16)))
	assert.Equal(t, uint64(5), highestBit(uint64(17)))
	assert.Equal(t, uint64(0), highestBit(uint64(0)))
}
