package fetcher

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Sleeper blocks for d or until ctx is done. Tests replace it to record
// waits instead of sleeping.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter draws uniform durations. It is shared by concurrent sessions.
type jitter struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newJitter(r *rand.Rand) *jitter {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &jitter{r: r}
}

func (j *jitter) float() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.r.Float64()
}

// between returns a duration uniformly drawn from [lo, hi].
func (j *jitter) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(j.float()*float64(hi-lo))
}

// PageBackOff is the wait between failed attempts on one page: a uniform
// draw from [Min, Max] multiplied by the number of attempts made so far.
// NextBackOff must be called once per failed attempt, including attempts
// whose delay is discarded, so the multiplier tracks the attempt number.
type PageBackOff struct {
	Min, Max time.Duration

	draw    func(lo, hi time.Duration) time.Duration
	attempt int
}

var _ backoff.BackOff = (*PageBackOff)(nil)

func (b *PageBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.draw(b.Min, b.Max) * time.Duration(b.attempt)
}

func (b *PageBackOff) Reset() {
	b.attempt = 0
}
