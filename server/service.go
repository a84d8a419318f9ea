package server

import (
	"context"
	"sync"

	"github.com/cnosuke/report-scraper/config"
	"github.com/cnosuke/report-scraper/disguise"
	"github.com/cnosuke/report-scraper/fetcher"
	"github.com/cnosuke/report-scraper/orchestrator"
	"github.com/cnosuke/report-scraper/proxy"
	"github.com/cnosuke/report-scraper/types"
	"go.uber.org/zap"
)

// PostFetcher lists a user's submissions.
type PostFetcher interface {
	FetchPosts(ctx context.Context, username string, maxItems int) ([]types.PostSummary, error)
}

// ProxyChecker validates the configured egress.
type ProxyChecker interface {
	CheckProxies(ctx context.Context) (*types.ProxyCheckResponse, error)
}

// Scraper runs one full scrape.
type Scraper interface {
	Scrape(ctx context.Context) (*types.ScrapeSummary, error)
}

// Service - Tool backend built from configuration
type Service struct {
	cfg *config.Config

	mu      sync.Mutex
	fetcher *fetcher.Fetcher
}

func NewService(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

// listingFetcher builds the fetcher on first use. Proxy validation runs
// then, and a failure is returned without being cached.
func (s *Service) listingFetcher(ctx context.Context) (*fetcher.Fetcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetcher != nil {
		return s.fetcher, nil
	}

	sel, err := orchestrator.BuildSelector(ctx, s.cfg, proxy.NewValidator(orchestrator.ValidatorConfig(s.cfg)))
	if err != nil {
		return nil, err
	}
	s.fetcher = fetcher.New(orchestrator.FetcherConfig(s.cfg), sel, disguise.NewSupplier(nil))
	return s.fetcher, nil
}

func (s *Service) FetchPosts(ctx context.Context, username string, maxItems int) ([]types.PostSummary, error) {
	f, err := s.listingFetcher(ctx)
	if err != nil {
		return nil, err
	}

	f = f.WithMaxItems(maxItems)
	records, err := f.FetchListing(ctx, username)
	if err != nil && ctx.Err() == nil && s.directFallback(f) && orchestrator.Degradable(err) {
		zap.S().Warnw("proxied fetch failed, retrying with a direct connection",
			"username", username,
			"error", err)
		records, err = f.WithSelector(proxy.DirectSelector{}).FetchListing(ctx, username)
	}
	if err != nil {
		return nil, err
	}

	posts := make([]types.PostSummary, 0, len(records))
	for _, rec := range records {
		p, err := rec.Post()
		if err != nil {
			zap.S().Warnw("skipping undecodable record", "kind", rec.Kind, "error", err)
			continue
		}
		posts = append(posts, types.PostSummary{
			ID:        p.ID,
			Title:     p.Title,
			Subreddit: p.Subreddit,
			Date:      p.Date(),
		})
	}
	return posts, nil
}

func (s *Service) directFallback(f *fetcher.Fetcher) bool {
	return s.cfg.Fetch.AllowDirectFallback && f.Mode() != proxy.ModeNone
}

func (s *Service) CheckProxies(ctx context.Context) (*types.ProxyCheckResponse, error) {
	return orchestrator.CheckProxies(ctx, s.cfg)
}

func (s *Service) Scrape(ctx context.Context) (*types.ScrapeSummary, error) {
	o, closeStore, err := orchestrator.Setup(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := closeStore(); err != nil {
			zap.S().Warnw("failed to close store", "error", err)
		}
	}()
	return o.Run(ctx)
}
