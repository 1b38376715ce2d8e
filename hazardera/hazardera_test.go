package hazardera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-ptm/registry"
)

func TestDomain_reclaimsOnceEraWindowPasses(t *testing.T) {
	t.Parallel()

	reg := registry.New(2)
	d := New(reg)

	owner, err := reg.Join()
	require.NoError(t, err)
	watcher, err := reg.Join()
	require.NoError(t, err)

	var finalized bool
	c := &Closure{NewEra: 5, DelEra: 7, Finalize: func() { finalized = true }}

	d.ProtectEra(watcher.TID(), 6) // inside the window: must not be reclaimed
	d.Retire(c, owner.TID())
	d.Clean(10, owner.TID())
	assert.False(t, finalized)
	assert.Equal(t, 1, d.Pending(owner.TID()))

	d.ProtectEra(watcher.TID(), 20) // now outside the window
	d.Clean(10, owner.TID())
	assert.True(t, finalized)
	assert.Equal(t, 0, d.Pending(owner.TID()))
}

func TestDomain_skipsScanBeforeDelEraReached(t *testing.T) {
	t.Parallel()

	reg := registry.New(1)
	d := New(reg)

	owner, err := reg.Join()
	require.NoError(t, err)

	var finalized bool
	c := &Closure{NewEra: 100, DelEra: 200, Finalize: func() { finalized = true }}
	d.Retire(c, owner.TID())

	d.Clean(50, owner.TID()) // curEra below DelEra: must not even consider reclaiming
	assert.False(t, finalized)
	assert.Equal(t, 1, d.Pending(owner.TID()))
}

func TestDomain_clearEraUnblocksReclamation(t *testing.T) {
	t.Parallel()

	reg := registry.New(2)
	d := New(reg)

	owner, err := reg.Join()
	require.NoError(t, err)
	watcher, err := reg.Join()
	require.NoError(t, err)

	var finalized bool
	c := &Closure{NewEra: 1, DelEra: 3, Finalize: func() { finalized = true }}
	d.ProtectEra(watcher.TID(), 2)
	d.Retire(c, owner.TID())
	d.Clean(5, owner.TID())
	assert.False(t, finalized)

	d.ClearEra(watcher.TID())
	d.Clean(5, owner.TID())
	assert.True(t, finalized)
}
