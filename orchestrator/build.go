package orchestrator

import (
	"context"
	"time"

	"github.com/cnosuke/report-scraper/config"
	"github.com/cnosuke/report-scraper/disguise"
	"github.com/cnosuke/report-scraper/fetcher"
	"github.com/cnosuke/report-scraper/proxy"
	"github.com/cnosuke/report-scraper/report"
	"github.com/cnosuke/report-scraper/store"
	"github.com/cnosuke/report-scraper/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// FetcherConfig maps the fetch settings onto fetcher.Config.
func FetcherConfig(cfg *config.Config) fetcher.Config {
	return fetcher.Config{
		BaseURL:           cfg.Target.BaseURL,
		MaxRetries:        cfg.Fetch.MaxRetries,
		PageSize:          cfg.Fetch.PageSize,
		MaxItems:          cfg.Fetch.MaxItems,
		MaxPages:          cfg.Fetch.MaxPages,
		Timeout:           seconds(cfg.Fetch.Timeout),
		JitterMin:         seconds(cfg.Fetch.JitterMin),
		JitterMax:         seconds(cfg.Fetch.JitterMax),
		BackoffMin:        seconds(cfg.Fetch.BackoffMin),
		BackoffMax:        seconds(cfg.Fetch.BackoffMax),
		RateLimitWait:     seconds(cfg.Fetch.RateLimitWait),
		RequestsPerMinute: cfg.Fetch.RequestsPerMinute,
		TLSBypass:         cfg.Proxy.TLSBypass,
	}
}

// ValidatorConfig maps the probe settings onto proxy.ValidatorConfig.
func ValidatorConfig(cfg *config.Config) proxy.ValidatorConfig {
	return proxy.ValidatorConfig{
		EchoURL:      cfg.Proxy.EchoURL,
		Concurrency:  cfg.Proxy.Concurrency,
		ProbeTimeout: seconds(cfg.Proxy.ProbeTimeout),
		TLSBypass:    cfg.Proxy.TLSBypass,
	}
}

// Criteria maps the report settings onto report.Criteria.
func Criteria(cfg *config.Config) (report.Criteria, error) {
	cutoff, err := report.ParseCutoff(cfg.Report.CutoffDate)
	if err != nil {
		return report.Criteria{}, err
	}
	return report.Criteria{
		TitleMarker: cfg.Report.TitleMarker,
		Subreddit:   cfg.Report.Subreddit,
		Cutoff:      cutoff,
		MaxPosts:    cfg.Report.MaxPosts,
	}, nil
}

// gatewayEndpoint reads the rotating gateway from either the URL or the
// split credential fields.
func gatewayEndpoint(cfg *config.Config) (proxy.Endpoint, error) {
	if cfg.Proxy.URL != "" {
		return proxy.ParseEndpoint(cfg.Proxy.URL)
	}
	p := cfg.Proxy
	if p.Host == "" || p.Port == "" || p.Username == "" || p.Password == "" {
		return proxy.Endpoint{}, errors.Mark(
			errors.New("gateway mode needs WEBSHARE_PROXY_HOST, WEBSHARE_PROXY_PORT, WEBSHARE_PROXY_USERNAME and WEBSHARE_PROXY_PASSWORD"),
			proxy.ErrNoProxiesAvailable)
	}
	return proxy.GatewayEndpoint(p.Host, p.Port, p.Username, p.Password)
}

func sourceConfig(cfg *config.Config) proxy.SourceConfig {
	return proxy.SourceConfig{
		Addresses:    cfg.Proxy.Addresses,
		ListFile:     cfg.Proxy.ListFile,
		ListURL:      cfg.Proxy.ListURL,
		ListSelector: cfg.Proxy.ListSelector,
		Timeout:      seconds(cfg.Proxy.ProbeTimeout),
	}
}

// BuildSelector constructs the selector for the configured mode. Gateway and
// pool endpoints are validated first when validation is enabled; an
// unusable configuration yields proxy.ErrNoProxiesAvailable.
func BuildSelector(ctx context.Context, cfg *config.Config, v *proxy.Validator) (proxy.Selector, error) {
	mode, err := proxy.ParseMode(cfg.Proxy.Mode)
	if err != nil {
		return nil, err
	}

	switch mode {
	case proxy.ModeGateway:
		ep, err := gatewayEndpoint(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Proxy.Validate {
			if err := v.CheckGateway(ctx, ep); err != nil {
				return nil, err
			}
		}
		zap.S().Infow("using rotating gateway", "proxy", ep.Redacted())
		return proxy.NewGatewaySelector(ep), nil

	case proxy.ModePool:
		candidates, err := proxy.LoadCandidates(ctx, sourceConfig(cfg))
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, errors.Wrap(proxy.ErrNoProxiesAvailable, "no proxy candidates configured")
		}
		pool := proxy.NewPool(candidates)
		if cfg.Proxy.Validate {
			if err := v.ValidatePool(ctx, pool); err != nil {
				return nil, err
			}
		}
		zap.S().Infow("using proxy pool", "size", pool.Len())
		return proxy.NewPoolSelector(pool), nil
	}

	zap.S().Warnw("proxying disabled, requests go out directly")
	return proxy.DirectSelector{}, nil
}

// CheckProxies validates the configured egress without fetching anything.
func CheckProxies(ctx context.Context, cfg *config.Config) (*types.ProxyCheckResponse, error) {
	mode, err := proxy.ParseMode(cfg.Proxy.Mode)
	if err != nil {
		return nil, err
	}
	v := proxy.NewValidator(ValidatorConfig(cfg))
	resp := &types.ProxyCheckResponse{Mode: string(mode), Healthy: []string{}}

	switch mode {
	case proxy.ModeGateway:
		ep, err := gatewayEndpoint(cfg)
		if err != nil {
			return nil, err
		}
		resp.Checked = 1
		if err := v.CheckGateway(ctx, ep); err != nil {
			zap.S().Warnw("gateway check failed", "error", err)
			resp.Exhausted = true
			return resp, nil
		}
		resp.Healthy = append(resp.Healthy, ep.Redacted())

	case proxy.ModePool:
		candidates, err := proxy.LoadCandidates(ctx, sourceConfig(cfg))
		if err != nil {
			return nil, err
		}
		resp.Checked = len(candidates)
		for _, ep := range v.Validate(ctx, candidates) {
			resp.Healthy = append(resp.Healthy, ep.Redacted())
		}
		resp.Exhausted = len(resp.Healthy) == 0
	}
	return resp, nil
}

// Setup wires a complete pipeline from configuration. The returned close
// function releases the store.
func Setup(ctx context.Context, cfg *config.Config) (*Orchestrator, func() error, error) {
	criteria, err := Criteria(cfg)
	if err != nil {
		return nil, nil, err
	}

	sel, err := BuildSelector(ctx, cfg, proxy.NewValidator(ValidatorConfig(cfg)))
	if err != nil {
		return nil, nil, err
	}

	f := fetcher.New(FetcherConfig(cfg), sel, disguise.NewSupplier(nil))

	var direct Lister
	if cfg.Fetch.AllowDirectFallback && sel.Mode() != proxy.ModeNone {
		direct = f.WithSelector(proxy.DirectSelector{})
	}

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	o := New(Deps{
		Username:     cfg.Target.Username,
		Lister:       f,
		Direct:       direct,
		Resolver:     report.NewResolver(f),
		Sink:         st,
		Criteria:     criteria,
		PostDelayMin: seconds(cfg.Report.PostDelayMin),
		PostDelayMax: seconds(cfg.Report.PostDelayMax),
	})
	return o, st.Close, nil
}
