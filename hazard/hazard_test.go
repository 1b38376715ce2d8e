package hazard

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-ptm/registry"
)

type node struct {
	val int
}

func TestDomain_protectedObjectSurvivesRetire(t *testing.T) {
	t.Parallel()

	reg := registry.New(2)
	d := New[node](reg, 0)

	h, err := reg.Join()
	require.NoError(t, err)
	tid := h.TID()

	var shared atomic.Pointer[node]
	n := &node{val: 42}
	shared.Store(n)

	protected := d.Protect(0, &shared, tid)
	require.Same(t, n, protected)

	d.Retire(n, tid)
	assert.True(t, len(d.retired[tid]) == 1, "retired pointer still protected must remain on the retired list")

	d.ClearOne(0, tid)
	d.Retire(&node{val: 7}, tid) // triggers a scan (threshold is 0)
	assert.Equal(t, 1, len(d.retired[tid]), "once unprotected, n should have been scanned out, leaving only the new retiree")
}

func TestDomain_headsPoolProtectsAgainstRetire(t *testing.T) {
	t.Parallel()

	reg := registry.New(2)
	d := New[node](reg, 0)

	h, err := reg.Join()
	require.NoError(t, err)
	tid := h.TID()

	n := &node{val: 1}
	d.ProtectHead(0, n)
	d.Retire(n, tid)
	assert.Equal(t, 1, len(d.retired[tid]))

	d.ProtectHead(0, nil)
	d.Retire(&node{val: 2}, tid)
	assert.Equal(t, 1, len(d.retired[tid]))
}
