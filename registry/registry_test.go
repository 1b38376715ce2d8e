package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_joinAssignsDenseIds(t *testing.T) {
	t.Parallel()

	r := New(4)

	h0, err := r.Join()
	require.NoError(t, err)
	h1, err := r.Join()
	require.NoError(t, err)

	assert.Equal(t, 0, h0.TID())
	assert.Equal(t, 1, h1.TID())
	assert.Equal(t, 2, r.MaxTid())
}

func TestRegistry_releaseFreesSlotForReuse(t *testing.T) {
	t.Parallel()

	r := New(2)

	h0, err := r.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, h0.TID())

	h0.Release()
	h0.Release() // idempotent

	h2, err := r.Join()
	require.NoError(t, err)
	assert.Equal(t, 0, h2.TID(), "released slot 0 should be reused before growing")
}

func TestRegistry_fullReturnsError(t *testing.T) {
	t.Parallel()

	r := New(1)

	h0, err := r.Join()
	require.NoError(t, err)
	defer h0.Release()

	_, err = r.Join()
	assert.ErrorIs(t, err, ErrRegistryFull)
}

func TestRegistry_concurrentJoinsAreAllDistinct(t *testing.T) {
	t.Parallel()

	const goroutines = 64
	r := New(goroutines)

	tids := make([]int, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		i := i
		go func() {
			defer wg.Done()
			h, err := r.Join()
			require.NoError(t, err)
			tids[i] = h.TID()
		}()
	}
	wg.Wait()

	seen := make(map[int]bool, goroutines)
	for _, tid := range tids {
		assert.False(t, seen[tid], "tid %d assigned to more than one goroutine", tid)
		seen[tid] = true
		assert.GreaterOrEqual(t, tid, 0)
		assert.Less(t, tid, goroutines)
	}
}
