package nvm

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRegion_coldStartZerosHeapAndRootTable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "region.nvm")
	r, recovered, err := OpenRegion(path, 1<<20)
	require.NoError(t, err)
	defer r.Close()

	assert.False(t, recovered)
	assert.Equal(t, magicValue, binary.LittleEndian.Uint64(r.Bytes()[0:8]))
	root, err := r.Root(0)
	require.NoError(t, err)
	assert.Zero(t, root)
	for _, b := range r.Heap()[:256] {
		assert.Zero(t, b)
	}
}

func TestOpenRegion_reopenRecoversPriorState(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "region.nvm")
	r1, recovered, err := OpenRegion(path, 1<<20)
	require.NoError(t, err)
	require.False(t, recovered)
	require.NoError(t, r1.SetRoot(3, 0xABCD))
	require.NoError(t, r1.Durable.Sync())
	require.NoError(t, r1.Close())

	r2, recovered2, err := OpenRegion(path, 1<<20)
	require.NoError(t, err)
	defer r2.Close()
	assert.True(t, recovered2)
	got, err := r2.Root(3)
	require.NoError(t, err)
	assert.EqualValues(t, 0xABCD, got)
}

func TestRegion_rootIndexOutOfRangeErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "region.nvm")
	r, _, err := OpenRegion(path, 1<<20)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Root(-1)
	assert.ErrorIs(t, err, ErrRootIndex)
	_, err = r.Root(RootSlots)
	assert.ErrorIs(t, err, ErrRootIndex)
	assert.ErrorIs(t, r.SetRoot(RootSlots, 1), ErrRootIndex)
}

func TestOpenRegion_tooSmallForHeaderErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "region.nvm")
	_, _, err := OpenRegion(path, 8)
	assert.ErrorIs(t, err, ErrRegionTooSmall)
}

func TestVolatile_isAlwaysANoOp(t *testing.T) {
	t.Parallel()

	var v Volatile
	v.FlushRange(nil, 0)
	v.Fence()
	assert.NoError(t, v.Sync())
}
