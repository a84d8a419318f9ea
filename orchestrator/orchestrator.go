// Package orchestrator runs one scrape: fetch the listing, select the weekly
// reports, and store the ones not seen before.
package orchestrator

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cnosuke/report-scraper/fetcher"
	"github.com/cnosuke/report-scraper/proxy"
	"github.com/cnosuke/report-scraper/report"
	"github.com/cnosuke/report-scraper/store"
	"github.com/cnosuke/report-scraper/types"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Lister pulls a user's submissions.
type Lister interface {
	FetchListing(ctx context.Context, username string) ([]types.Record, error)
}

// BodyResolver turns a post into parseable text.
type BodyResolver interface {
	Body(ctx context.Context, post *types.Post) (string, error)
}

// Deps - Collaborators and settings of an Orchestrator
type Deps struct {
	Username string
	Lister   Lister
	// Direct is the unproxied lister tried once when Lister fails. Nil
	// disables degradation.
	Direct   Lister
	Resolver BodyResolver
	Sink     store.Sink
	Criteria report.Criteria

	PostDelayMin, PostDelayMax time.Duration

	Sleeper fetcher.Sleeper
	Rand    *rand.Rand
}

// Orchestrator - One configured scrape pipeline
type Orchestrator struct {
	d Deps
}

func New(d Deps) *Orchestrator {
	if d.Sleeper == nil {
		d.Sleeper = fetcher.TimerSleeper{}
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if d.Resolver == nil {
		d.Resolver = report.NewResolver(nil)
	}
	return &Orchestrator{d: d}
}

// Run performs one scrape. Storage errors abort the run; a post whose body
// cannot be resolved or parsed is counted as failed and skipped.
func (o *Orchestrator) Run(ctx context.Context) (*types.ScrapeSummary, error) {
	summary := &types.ScrapeSummary{RunID: uuid.NewString()}
	log := zap.S().With("run_id", summary.RunID)

	log.Infow("starting scrape", "username", o.d.Username)

	records, err := o.fetch(ctx, summary)
	if err != nil {
		return summary, err
	}
	summary.Fetched = len(records)

	posts := report.Filter(records, o.d.Criteria)
	summary.Matched = len(posts)
	log.Infow("found matching posts", "fetched", summary.Fetched, "matched", summary.Matched)

	processed := 0
	for _, post := range posts {
		date := post.Date()

		exists, err := o.d.Sink.Exists(ctx, date)
		if err != nil {
			return summary, err
		}
		if exists {
			log.Infow("report already stored, skipping", "date", date, "post_id", post.ID)
			summary.Skipped++
			continue
		}

		if processed > 0 {
			if err := o.pause(ctx); err != nil {
				return summary, err
			}
		}
		processed++

		body, err := o.d.Resolver.Body(ctx, post)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			log.Warnw("failed to resolve post body", "date", date, "post_id", post.ID, "error", err)
			summary.Failed++
			continue
		}

		parsed := report.Parse(body)
		if parsed.Empty() {
			log.Warnw("post contains no report sections", "date", date, "post_id", post.ID)
			summary.Failed++
			continue
		}

		if err := o.d.Sink.Insert(ctx, date, parsed); err != nil {
			return summary, err
		}
		summary.Inserted++
		log.Infow("stored report", "date", date, "post_id", post.ID)
	}

	log.Infow("scrape completed",
		"fetched", summary.Fetched,
		"matched", summary.Matched,
		"skipped", summary.Skipped,
		"inserted", summary.Inserted,
		"failed", summary.Failed,
		"direct", summary.Direct)
	return summary, nil
}

// fetch pulls the listing, degrading to a direct connection once when the
// proxied session cannot complete.
func (o *Orchestrator) fetch(ctx context.Context, summary *types.ScrapeSummary) ([]types.Record, error) {
	records, err := o.d.Lister.FetchListing(ctx, o.d.Username)
	if err == nil {
		return records, nil
	}
	if ctx.Err() != nil || o.d.Direct == nil || !Degradable(err) {
		return nil, errors.Wrap(err, "failed to fetch listing")
	}

	zap.S().Warnw("proxied fetch failed, retrying with a direct connection",
		"run_id", summary.RunID,
		"error", err)
	summary.Direct = true
	records, err = o.d.Direct.FetchListing(ctx, o.d.Username)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch listing directly")
	}
	return records, nil
}

// Degradable reports whether a failed proxied fetch may be retried directly.
func Degradable(err error) bool {
	return errors.Is(err, fetcher.ErrFetchExhausted) || errors.Is(err, proxy.ErrNoProxiesAvailable)
}

func (o *Orchestrator) pause(ctx context.Context) error {
	lo, hi := o.d.PostDelayMin, o.d.PostDelayMax
	d := lo
	if hi > lo {
		d = lo + time.Duration(o.d.Rand.Float64()*float64(hi-lo))
	}
	zap.S().Debugw("waiting before next post", "wait", d)
	return o.d.Sleeper.Sleep(ctx, d)
}
