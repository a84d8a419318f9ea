package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cnosuke/report-scraper/disguise"
	ierrors "github.com/cnosuke/report-scraper/internal/errors"
	"github.com/cnosuke/report-scraper/proxy"
	"github.com/cnosuke/report-scraper/types"
	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrFetchExhausted is returned when every attempt on one request failed.
var ErrFetchExhausted = errors.New("fetch exhausted")

type Config struct {
	BaseURL    string
	MaxRetries int // attempts per page
	PageSize   int
	MaxItems   int // 0 = no cap
	MaxPages   int // 0 = no limit
	Timeout    time.Duration

	JitterMin, JitterMax   time.Duration
	BackoffMin, BackoffMax time.Duration
	RateLimitWait          time.Duration
	RequestsPerMinute      int
	TLSBypass              bool
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://old.reddit.com",
		MaxRetries:    3,
		PageSize:      100,
		MaxPages:      1000,
		Timeout:       30 * time.Second,
		JitterMin:     3 * time.Second,
		JitterMax:     8 * time.Second,
		BackoffMin:    5 * time.Second,
		BackoffMax:    10 * time.Second,
		RateLimitWait: 60 * time.Second,
	}
}

// Supplier produces a fresh disguise per attempt.
type Supplier interface {
	Generate() disguise.Profile
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithSleeper replaces the blocking sleep used for jitter, backoff and
// rate-limit waits.
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) { f.sleeper = s }
}

// WithRand seeds the jitter and backoff draws.
func WithRand(r *rand.Rand) Option {
	return func(f *Fetcher) { f.jitter = newJitter(r) }
}

// WithBackOff replaces the per-page backoff policy.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(f *Fetcher) { f.newBackOff = newBackOff }
}

// WithLimiter gates every attempt on l.
func WithLimiter(l *rate.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// Fetcher issues requests through a proxy selector with per-attempt
// disguises, classifying each response and retrying per page.
type Fetcher struct {
	cfg        Config
	selector   proxy.Selector
	supplier   Supplier
	sleeper    Sleeper
	jitter     *jitter
	newBackOff func() backoff.BackOff
	limiter    *rate.Limiter
	clients    *clientCache
}

// New creates a Fetcher. Zero config fields take DefaultConfig values.
func New(cfg Config, selector proxy.Selector, supplier Supplier, opts ...Option) *Fetcher {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = def.RateLimitWait
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if selector == nil {
		selector = proxy.DirectSelector{}
	}

	zap.S().Infow("creating fetcher",
		"base_url", cfg.BaseURL,
		"mode", selector.Mode(),
		"max_retries", cfg.MaxRetries,
		"page_size", cfg.PageSize,
		"max_items", cfg.MaxItems,
		"timeout", cfg.Timeout)

	f := &Fetcher{
		cfg:      cfg,
		selector: selector,
		supplier: supplier,
		sleeper:  TimerSleeper{},
		jitter:   newJitter(nil),
		clients:  &clientCache{clients: make(map[string]*resty.Client)},
	}
	if cfg.RequestsPerMinute > 0 {
		f.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.supplier == nil {
		f.supplier = disguise.NewSupplier(nil)
	}
	if f.newBackOff == nil {
		f.newBackOff = func() backoff.BackOff {
			return &PageBackOff{Min: cfg.BackoffMin, Max: cfg.BackoffMax, draw: f.jitter.between}
		}
	}
	return f
}

// WithSelector returns a Fetcher sharing everything but the selector.
func (f *Fetcher) WithSelector(selector proxy.Selector) *Fetcher {
	c := *f
	c.selector = selector
	return &c
}

// WithMaxItems returns a Fetcher with a different item cap. 0 removes the cap.
func (f *Fetcher) WithMaxItems(n int) *Fetcher {
	c := *f
	c.cfg.MaxItems = n
	return &c
}

// Mode reports the proxy strategy in use.
func (f *Fetcher) Mode() proxy.Mode {
	return f.selector.Mode()
}

// session is the state of one top-level fetch call.
type session struct {
	target  string
	started bool // the first attempt of the session skips the jitter delay
	pages   int
	records []types.Record
}

type request struct {
	label string
	url   string
	query map[string]string
}

// ListingURL returns the submitted-listing endpoint of username.
func (f *Fetcher) ListingURL(username string) string {
	return fmt.Sprintf("%s/user/%s/submitted.json", f.cfg.BaseURL, url.PathEscape(username))
}

// FetchListing follows the listing cursor of username's submissions until
// the server stops returning one or the item cap is met. A page is appended
// whole or not at all; exhausting one page's attempts fails the whole call.
func (f *Fetcher) FetchListing(ctx context.Context, username string) ([]types.Record, error) {
	sess := &session{target: username}
	endpoint := f.ListingURL(username)
	after := ""

	for {
		if f.cfg.MaxPages > 0 && sess.pages >= f.cfg.MaxPages {
			zap.S().Warnw("page limit reached, stopping pagination",
				"target", username,
				"pages", sess.pages,
				"total", len(sess.records))
			return sess.records, nil
		}

		req := request{
			label: fmt.Sprintf("page %d", sess.pages+1),
			url:   endpoint,
			query: map[string]string{"limit": strconv.Itoa(f.cfg.PageSize)},
		}
		if after != "" {
			req.query["after"] = after
		}

		zap.S().Infow("fetching listing page",
			"target", username,
			"page", sess.pages+1,
			"limit", f.cfg.PageSize,
			"after", after)

		var listing types.Listing
		err := f.do(ctx, sess, req, func(body []byte) error {
			listing = types.Listing{}
			return ierrors.Wrap(json.Unmarshal(body, &listing), "failed to decode listing")
		})
		if err != nil {
			return nil, err
		}

		sess.pages++
		sess.records = append(sess.records, listing.Data.Children...)
		zap.S().Infow("fetched listing page",
			"target", username,
			"page", sess.pages,
			"count", len(listing.Data.Children),
			"total", len(sess.records))

		if f.cfg.MaxItems > 0 && len(sess.records) >= f.cfg.MaxItems {
			zap.S().Infow("item cap reached",
				"target", username,
				"max_items", f.cfg.MaxItems)
			return sess.records[:f.cfg.MaxItems], nil
		}

		next := listing.Data.After
		if next == nil || *next == "" {
			zap.S().Infow("finished fetching listing",
				"target", username,
				"pages", sess.pages,
				"total", len(sess.records))
			return sess.records, nil
		}
		if *next == after {
			zap.S().Warnw("server repeated the previous cursor, stopping pagination",
				"target", username,
				"cursor", after,
				"total", len(sess.records))
			return sess.records, nil
		}
		after = *next
	}
}

// FetchDocument performs one resilient GET of rawURL and returns the body.
func (f *Fetcher) FetchDocument(ctx context.Context, rawURL string) ([]byte, error) {
	sess := &session{target: rawURL}
	var out []byte
	err := f.do(ctx, sess, request{label: "document", url: rawURL}, func(body []byte) error {
		out = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// do runs the attempt loop of one request. accept turns a 200 body into the
// caller's result; its error counts as a failed attempt.
func (f *Fetcher) do(ctx context.Context, sess *session, req request, accept func([]byte) error) error {
	bo := f.newBackOff()
	bo.Reset()

	var last attemptResult
	for attempt := 0; attempt < f.cfg.MaxRetries; attempt++ {
		if sess.started {
			delay := f.jitter.between(f.cfg.JitterMin, f.cfg.JitterMax)
			zap.S().Debugw("waiting before request",
				"target", sess.target,
				"request", req.label,
				"wait", delay)
			if err := f.sleeper.Sleep(ctx, delay); err != nil {
				return err
			}
		}
		sess.started = true

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return ierrors.Wrap(err, "rate limiter wait failed")
			}
		}

		ep, ok := f.selector.Select()
		if !ok {
			return errors.Wrapf(proxy.ErrNoProxiesAvailable, "%s: proxy pool is empty", req.label)
		}
		profile := f.supplier.Generate()

		zap.S().Infow("attempting request",
			"target", sess.target,
			"request", req.label,
			"attempt", attempt+1,
			"max_attempts", f.cfg.MaxRetries,
			"proxy", proxyLabel(ep),
			"browser", profile.Family())

		res := f.attempt(ctx, ep, profile, req)
		if res.outcome == Success {
			err := accept(res.body)
			if err == nil {
				return nil
			}
			res = attemptResult{outcome: OtherRequestError, status: res.status, err: err}
		}
		last = res

		if err := ctx.Err(); err != nil {
			return err
		}

		f.selector.MarkFailed(ep)
		wait := bo.NextBackOff()

		switch res.outcome {
		case RateLimited:
			zap.S().Warnw("rate limited",
				"target", sess.target,
				"request", req.label,
				"attempt", attempt+1,
				"proxy", proxyLabel(ep),
				"wait", res.retryAfter)
			if attempt == f.cfg.MaxRetries-1 {
				continue
			}
			if err := f.sleeper.Sleep(ctx, res.retryAfter); err != nil {
				return err
			}
			continue
		case Forbidden:
			zap.S().Warnw("access forbidden, retrying with a new proxy and disguise",
				"target", sess.target,
				"request", req.label,
				"attempt", attempt+1,
				"proxy", proxyLabel(ep))
		default:
			zap.S().Warnw("request failed",
				"target", sess.target,
				"request", req.label,
				"attempt", attempt+1,
				"proxy", proxyLabel(ep),
				"outcome", res.outcome,
				"status", res.status,
				"error", res.err)
		}

		if attempt < f.cfg.MaxRetries-1 && wait != backoff.Stop {
			zap.S().Infow("backing off before retry",
				"target", sess.target,
				"request", req.label,
				"attempt", attempt+1,
				"wait", wait)
			if err := f.sleeper.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	zap.S().Errorw("all attempts failed",
		"target", sess.target,
		"request", req.label,
		"attempts", f.cfg.MaxRetries,
		"last_outcome", last.outcome,
		"error", last.err)
	return errors.Mark(
		errors.Newf("%s of %s failed after %d attempts (last outcome %s): %v",
			req.label, sess.target, f.cfg.MaxRetries, last.outcome, last.err),
		ErrFetchExhausted)
}

// attempt performs a single request and classifies the result.
func (f *Fetcher) attempt(ctx context.Context, ep *proxy.Endpoint, profile disguise.Profile, req request) attemptResult {
	client, err := f.clients.get(ep, f.cfg)
	if err != nil {
		return attemptResult{outcome: ProxyFailure, err: err}
	}

	r := client.R().
		SetContext(ctx).
		SetHeaders(profile.Headers()).
		SetDoNotParseResponse(true)
	if len(req.query) > 0 {
		r.SetQueryParams(req.query)
	}

	resp, err := r.Get(req.url)
	if err != nil {
		return attemptResult{outcome: classify(err), err: ierrors.Wrap(err, "failed to execute request")}
	}
	raw := resp.RawBody()
	defer raw.Close()

	status := resp.StatusCode()
	switch {
	case status == http.StatusTooManyRequests:
		return attemptResult{
			outcome:    RateLimited,
			status:     status,
			retryAfter: retryAfter(resp.Header().Get("Retry-After"), f.cfg.RateLimitWait),
			err:        errors.Newf("status %d", status),
		}
	case status == http.StatusForbidden:
		return attemptResult{outcome: Forbidden, status: status, err: errors.Newf("status %d", status)}
	case status != http.StatusOK:
		return attemptResult{outcome: OtherRequestError, status: status, err: errors.Newf("unexpected status %d", status)}
	}

	body, err := readBody(resp.Header().Get("Content-Encoding"), raw)
	if err != nil {
		return attemptResult{outcome: OtherRequestError, status: status, err: err}
	}

	zap.S().Debugw("response received",
		"url", req.url,
		"status", status,
		"bytes", len(body),
		"content_type", resp.Header().Get("Content-Type"))

	return attemptResult{outcome: Success, status: status, body: body}
}

// retryAfter parses a delay-seconds Retry-After value, falling back to def.
func retryAfter(v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return def
		}
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}

func proxyLabel(ep *proxy.Endpoint) string {
	if ep == nil {
		return "direct"
	}
	return ep.Redacted()
}

// clientCache keeps one resty client per egress path so connections are
// reused across attempts through the same proxy.
type clientCache struct {
	mu      sync.Mutex
	clients map[string]*resty.Client
}

func (c *clientCache) get(ep *proxy.Endpoint, cfg Config) (*resty.Client, error) {
	key := "direct"
	if ep != nil {
		key = ep.URL().String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[key]; ok {
		return client, nil
	}

	rt, err := proxy.NewTransport(ep, proxy.TransportOptions{DialTimeout: cfg.Timeout, TLSBypass: cfg.TLSBypass})
	if err != nil {
		return nil, err
	}
	client := resty.New().
		SetTransport(rt).
		SetTimeout(cfg.Timeout).
		SetLogger(zap.S())
	c.clients[key] = client
	return client, nil
}
