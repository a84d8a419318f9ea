package proxy

import "github.com/cockroachdb/errors"

// Mode names a proxy selection strategy.
type Mode string

const (
	ModeGateway Mode = "gateway"
	ModePool    Mode = "pool"
	ModeNone    Mode = "none"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeGateway, ModePool, ModeNone:
		return Mode(s), nil
	case "", "direct":
		return ModeNone, nil
	}
	return "", errors.Newf("unknown proxy mode %q", s)
}

// Selector chooses the egress path for one request attempt.
type Selector interface {
	// Select returns the endpoint to use. A nil endpoint with ok=true means
	// a direct connection; ok=false means no egress path exists.
	Select() (ep *Endpoint, ok bool)
	// MarkFailed excludes ep from later selections where the strategy
	// supports exclusion.
	MarkFailed(ep *Endpoint)
	Mode() Mode
}

// PoolSelector picks uniformly at random among the pool's available endpoints.
type PoolSelector struct {
	pool *Pool
}

func NewPoolSelector(pool *Pool) *PoolSelector {
	return &PoolSelector{pool: pool}
}

func (s *PoolSelector) Select() (*Endpoint, bool) {
	ep, ok := s.pool.pick()
	if !ok {
		return nil, false
	}
	return &ep, true
}

func (s *PoolSelector) MarkFailed(ep *Endpoint) {
	if ep == nil {
		return
	}
	s.pool.MarkFailed(*ep)
}

func (s *PoolSelector) Mode() Mode { return ModePool }

// Pool exposes the underlying pool.
func (s *PoolSelector) Pool() *Pool { return s.pool }

// GatewaySelector always returns the same rotating gateway. The remote
// service changes the source IP per request, so nothing is excluded locally.
type GatewaySelector struct {
	gateway Endpoint
}

func NewGatewaySelector(gateway Endpoint) *GatewaySelector {
	return &GatewaySelector{gateway: gateway}
}

func (s *GatewaySelector) Select() (*Endpoint, bool) {
	ep := s.gateway
	return &ep, true
}

func (s *GatewaySelector) MarkFailed(*Endpoint) {}

func (s *GatewaySelector) Mode() Mode { return ModeGateway }

// DirectSelector disables proxying.
type DirectSelector struct{}

func (DirectSelector) Select() (*Endpoint, bool) { return nil, true }

func (DirectSelector) MarkFailed(*Endpoint) {}

func (DirectSelector) Mode() Mode { return ModeNone }
