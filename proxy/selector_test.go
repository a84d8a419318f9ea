package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSelector_ExcludesFailed(t *testing.T) {
	eps := mustEndpoints(t, "10.0.0.1:1", "10.0.0.2:2")
	sel := NewPoolSelector(NewPool(eps))

	sel.MarkFailed(&eps[0])
	for i := 0; i < 20; i++ {
		ep, ok := sel.Select()
		require.True(t, ok)
		assert.Equal(t, eps[1].Key(), ep.Key())
	}
	assert.Equal(t, ModePool, sel.Mode())
}

func TestPoolSelector_AllFailedResets(t *testing.T) {
	eps := mustEndpoints(t, "10.0.0.1:1", "10.0.0.2:2")
	sel := NewPoolSelector(NewPool(eps))
	sel.MarkFailed(&eps[0])
	sel.MarkFailed(&eps[1])

	ep, ok := sel.Select()
	require.True(t, ok)
	require.NotNil(t, ep)
	assert.Len(t, sel.Pool().Available(), 2)
}

func TestPoolSelector_Empty(t *testing.T) {
	ep, ok := NewPoolSelector(NewPool(nil)).Select()
	assert.False(t, ok)
	assert.Nil(t, ep)
}

func TestPoolSelector_UsesEveryEndpoint(t *testing.T) {
	eps := mustEndpoints(t, "10.0.0.1:1", "10.0.0.2:2", "10.0.0.3:3")
	sel := NewPoolSelector(NewPool(eps))

	seen := map[string]bool{}
	for i := 0; i < 300; i++ {
		ep, ok := sel.Select()
		require.True(t, ok)
		seen[ep.Key()] = true
	}
	assert.Len(t, seen, 3)
}

func TestGatewaySelector(t *testing.T) {
	gw, err := GatewayEndpoint("gw.example.com", "80", "u", "p")
	require.NoError(t, err)
	sel := NewGatewaySelector(gw)

	first, ok := sel.Select()
	require.True(t, ok)
	sel.MarkFailed(first)
	second, ok := sel.Select()
	require.True(t, ok)

	assert.Equal(t, first.Key(), second.Key())
	assert.Equal(t, ModeGateway, sel.Mode())
}

func TestDirectSelector(t *testing.T) {
	ep, ok := DirectSelector{}.Select()
	assert.True(t, ok)
	assert.Nil(t, ep)
	assert.Equal(t, ModeNone, DirectSelector{}.Mode())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"gateway": ModeGateway, "pool": ModePool, "none": ModeNone, "": ModeNone, "direct": ModeNone} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("tor")
	assert.Error(t, err)
}
