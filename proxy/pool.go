package proxy

import (
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"
)

// Health is the observed status of an endpoint.
type Health int

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthFailed
)

func (h Health) String() string {
	switch h {
	case HealthUnknown:
		return "unknown"
	case HealthHealthy:
		return "healthy"
	case HealthFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Pool owns a fixed set of endpoints, their health, and the set of
// currently failed keys. Available endpoints are all endpoints minus the
// failed ones; the failed set is cleared when nothing else is left.
type Pool struct {
	mu        sync.Mutex
	endpoints []Endpoint
	health    map[string]Health
	failed    map[string]struct{}
	rng       *rand.Rand
}

// NewPool creates a pool. Duplicate keys keep the first occurrence.
func NewPool(endpoints []Endpoint) *Pool {
	p := &Pool{
		health: make(map[string]Health, len(endpoints)),
		failed: make(map[string]struct{}),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, ep := range endpoints {
		if _, dup := p.health[ep.Key()]; dup {
			continue
		}
		p.endpoints = append(p.endpoints, ep)
		p.health[ep.Key()] = HealthUnknown
	}
	return p
}

// Len returns the number of endpoints, failed ones included.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Endpoints returns a snapshot of every endpoint.
func (p *Pool) Endpoints() []Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// Available returns the endpoints not in the failed set.
func (p *Pool) Available() []Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableLocked()
}

func (p *Pool) availableLocked() []Endpoint {
	out := make([]Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if _, bad := p.failed[ep.Key()]; !bad {
			out = append(out, ep)
		}
	}
	return out
}

// Status returns the health of the endpoint with the given key.
func (p *Pool) Status(key string) Health {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health[key]
}

// MarkHealthy records a successful validation. Failed endpoints stay failed.
func (p *Pool) MarkHealthy(ep Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.health[ep.Key()]; ok && h == HealthUnknown {
		p.health[ep.Key()] = HealthHealthy
	}
}

// MarkFailed adds the endpoint to the failed set.
func (p *Pool) MarkFailed(ep Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.health[ep.Key()]; !ok {
		return
	}
	p.health[ep.Key()] = HealthFailed
	p.failed[ep.Key()] = struct{}{}
}

// FailedCount returns the size of the failed set.
func (p *Pool) FailedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.failed)
}

// Reset clears the failed set; the cleared endpoints become unknown again.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func (p *Pool) resetLocked() {
	for key := range p.failed {
		p.health[key] = HealthUnknown
	}
	p.failed = make(map[string]struct{})
}

// Retain drops every endpoint not in keep, preserving order.
func (p *Pool) Retain(keep []Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	want := make(map[string]struct{}, len(keep))
	for _, ep := range keep {
		want[ep.Key()] = struct{}{}
	}
	kept := p.endpoints[:0]
	for _, ep := range p.endpoints {
		if _, ok := want[ep.Key()]; ok {
			kept = append(kept, ep)
			continue
		}
		delete(p.health, ep.Key())
		delete(p.failed, ep.Key())
	}
	p.endpoints = kept
}

// pick chooses uniformly among available endpoints. When every endpoint has
// failed the failed set is reset and selection is attempted once more.
func (p *Pool) pick() (Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	avail := p.availableLocked()
	if len(avail) == 0 {
		if len(p.endpoints) == 0 {
			return Endpoint{}, false
		}
		zap.S().Warnw("all proxies failed, resetting failed set",
			"pool_size", len(p.endpoints))
		p.resetLocked()
		avail = p.availableLocked()
	}
	return avail[p.rng.IntN(len(avail))], true
}
