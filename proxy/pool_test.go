package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEndpoints(t *testing.T, raws ...string) []Endpoint {
	t.Helper()
	eps, errs := ParseEndpoints(raws)
	require.Empty(t, errs)
	return eps
}

func TestPool_DedupAndAvailable(t *testing.T) {
	eps := mustEndpoints(t, "10.0.0.1:1", "u:p@10.0.0.1:1", "10.0.0.2:2")
	pool := NewPool(eps)

	assert.Equal(t, 2, pool.Len())
	assert.Len(t, pool.Available(), 2)

	pool.MarkFailed(eps[2])
	avail := pool.Available()
	require.Len(t, avail, 1)
	assert.Equal(t, "10.0.0.1:1", avail[0].Address())
	assert.Equal(t, HealthFailed, pool.Status(eps[2].Key()))
}

func TestPool_HealthTransitions(t *testing.T) {
	eps := mustEndpoints(t, "10.0.0.1:1")
	pool := NewPool(eps)
	key := eps[0].Key()

	assert.Equal(t, HealthUnknown, pool.Status(key))
	pool.MarkHealthy(eps[0])
	assert.Equal(t, HealthHealthy, pool.Status(key))
	pool.MarkFailed(eps[0])
	assert.Equal(t, HealthFailed, pool.Status(key))

	// failed never returns to healthy without a reset
	pool.MarkHealthy(eps[0])
	assert.Equal(t, HealthFailed, pool.Status(key))

	pool.Reset()
	assert.Equal(t, HealthUnknown, pool.Status(key))
	assert.Equal(t, 0, pool.FailedCount())
}

func TestPool_PickResetsWhenExhausted(t *testing.T) {
	eps := mustEndpoints(t, "10.0.0.1:1", "10.0.0.2:2", "10.0.0.3:3")
	pool := NewPool(eps)
	for _, ep := range eps {
		pool.MarkFailed(ep)
	}
	require.Empty(t, pool.Available())

	ep, ok := pool.pick()
	require.True(t, ok)
	assert.NotEmpty(t, ep.Address())
	assert.Equal(t, 0, pool.FailedCount())
	assert.Len(t, pool.Available(), 3)
}

func TestPool_PickEmpty(t *testing.T) {
	_, ok := NewPool(nil).pick()
	assert.False(t, ok)
}

func TestPool_Retain(t *testing.T) {
	eps := mustEndpoints(t, "10.0.0.1:1", "10.0.0.2:2", "10.0.0.3:3")
	pool := NewPool(eps)
	pool.MarkFailed(eps[0])

	pool.Retain([]Endpoint{eps[0], eps[2]})

	got := pool.Endpoints()
	require.Len(t, got, 2)
	assert.Equal(t, eps[0].Key(), got[0].Key())
	assert.Equal(t, eps[2].Key(), got[1].Key())
	assert.Equal(t, 1, pool.FailedCount())
	assert.Equal(t, HealthUnknown, pool.Status(eps[1].Key()))
}
