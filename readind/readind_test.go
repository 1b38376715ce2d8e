package readind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-ptm/registry"
)

func TestIndicator_emptyUntilArrival(t *testing.T) {
	t.Parallel()

	reg := registry.New(4)
	ind := New(reg)

	h0, err := reg.Join()
	require.NoError(t, err)
	h1, err := reg.Join()
	require.NoError(t, err)

	assert.True(t, ind.IsEmpty())

	ind.Arrive(h0.TID())
	assert.False(t, ind.IsEmpty())

	ind.Arrive(h1.TID())
	ind.Depart(h0.TID())
	assert.False(t, ind.IsEmpty())

	ind.Depart(h1.TID())
	assert.True(t, ind.IsEmpty())
}

func TestDualIndicator_sidesAreIndependent(t *testing.T) {
	t.Parallel()

	reg := registry.New(2)
	d := NewDual(reg)

	h, err := reg.Join()
	require.NoError(t, err)

	d.Arrive(0, h.TID())
	assert.False(t, d.IsEmpty(0))
	assert.True(t, d.IsEmpty(1))

	d.Depart(0, h.TID())
	assert.True(t, d.IsEmpty(0))
}
