package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoProxiesAvailable means no usable egress path survived validation.
var ErrNoProxiesAvailable = errors.New("no proxies available")

const (
	DefaultEchoURL      = "http://httpbin.org/ip"
	DefaultConcurrency  = 5
	DefaultProbeTimeout = 15 * time.Second
)

// ValidatorConfig configures health probes.
type ValidatorConfig struct {
	EchoURL      string
	Concurrency  int
	ProbeTimeout time.Duration
	TLSBypass    bool
}

// Validator probes endpoints against an IP echo service.
type Validator struct {
	cfg ValidatorConfig
}

// echoResponse covers httpbin ("origin") and ipify-style ("ip") services.
type echoResponse struct {
	Origin string `json:"origin"`
	IP     string `json:"ip"`
}

func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.EchoURL == "" {
		cfg.EchoURL = DefaultEchoURL
	}
	return &Validator{cfg: cfg}
}

// Probe requests the echo URL through ep and returns the observed IP.
// Anything but HTTP 200 within the probe timeout is a failure.
func (v *Validator) Probe(ctx context.Context, ep Endpoint) (string, error) {
	rt, err := NewTransport(&ep, TransportOptions{DialTimeout: v.cfg.ProbeTimeout, TLSBypass: v.cfg.TLSBypass})
	if err != nil {
		return "", err
	}
	client := resty.New().
		SetTransport(rt).
		SetTimeout(v.cfg.ProbeTimeout)

	echo := &echoResponse{}
	resp, err := client.R().
		SetContext(ctx).
		SetResult(echo).
		Get(v.cfg.EchoURL)
	if err != nil {
		return "", errors.Wrapf(err, "probe through %s failed", ep.Redacted())
	}
	if resp.StatusCode() != http.StatusOK {
		return "", errors.Newf("probe through %s returned status %d", ep.Redacted(), resp.StatusCode())
	}

	ip := echo.Origin
	if ip == "" {
		ip = echo.IP
	}
	return ip, nil
}

// Validate probes every candidate with bounded concurrency and returns the
// survivors in input order. Individual failures are logged, never returned.
func (v *Validator) Validate(ctx context.Context, candidates []Endpoint) []Endpoint {
	if len(candidates) == 0 {
		return nil
	}

	zap.S().Infow("starting proxy validation",
		"count", len(candidates),
		"concurrency", v.cfg.Concurrency,
		"echo_url", v.cfg.EchoURL)

	ok := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.Concurrency)

	for i, ep := range candidates {
		g.Go(func() error {
			start := time.Now()
			ip, err := v.Probe(gctx, ep)
			if err != nil {
				zap.S().Debugw("proxy probe failed",
					"proxy", ep.Redacted(),
					"duration", time.Since(start),
					"error", err)
				return nil
			}
			zap.S().Debugw("proxy probe succeeded",
				"proxy", ep.Redacted(),
				"exit_ip", ip,
				"duration", time.Since(start))
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	survivors := make([]Endpoint, 0, len(candidates))
	for i, ep := range candidates {
		if ok[i] {
			survivors = append(survivors, ep)
		}
	}

	zap.S().Infow("proxy validation finished",
		"checked", len(candidates),
		"healthy", len(survivors))
	return survivors
}

// ValidatePool validates the pool's endpoints, records their health, and
// drops the failures. An empty result is ErrNoProxiesAvailable.
func (v *Validator) ValidatePool(ctx context.Context, pool *Pool) error {
	candidates := pool.Endpoints()
	survivors := v.Validate(ctx, candidates)

	alive := make(map[string]struct{}, len(survivors))
	for _, ep := range survivors {
		alive[ep.Key()] = struct{}{}
		pool.MarkHealthy(ep)
	}
	for _, ep := range candidates {
		if _, ok := alive[ep.Key()]; !ok {
			pool.MarkFailed(ep)
		}
	}
	pool.Retain(survivors)

	if len(survivors) == 0 {
		return errors.Wrapf(ErrNoProxiesAvailable, "0 of %d candidates passed validation", len(candidates))
	}
	return nil
}

// CheckGateway runs the single probe that establishes a gateway's health.
func (v *Validator) CheckGateway(ctx context.Context, gateway Endpoint) error {
	ip, err := v.Probe(ctx, gateway)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "gateway probe failed"), ErrNoProxiesAvailable)
	}
	zap.S().Infow("gateway probe succeeded",
		"proxy", gateway.Redacted(),
		"exit_ip", ip)
	return nil
}
