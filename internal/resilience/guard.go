package resilience

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Guard combines a rate limiter, a breaker and retries around one
// dependency. A nil Limiter or Breaker is skipped.
type Guard struct {
	Limiter *rate.Limiter
	Breaker *Breaker
	Backoff Backoff
}

// NewGuard builds a Guard allowing perSec calls per second.
func NewGuard(name string, perSec float64, attempts int) *Guard {
	g := &Guard{
		Breaker: NewBreaker(BreakerConfig{Name: name}),
		Backoff: DefaultBackoff(),
	}
	if perSec > 0 {
		g.Limiter = rate.NewLimiter(rate.Limit(perSec), max(1, int(perSec)))
	}
	if attempts > 0 {
		g.Backoff.Attempts = attempts
	}
	return g
}

// Call runs fn under g. Each attempt waits for the limiter and is recorded
// by the breaker; only retryable errors count as breaker failures. An open
// breaker fails the call without retrying.
func Call[T any](ctx context.Context, g *Guard, op string, fn func(context.Context) (T, error)) (T, error) {
	b := g.Backoff
	userRetryable := b.withDefaults().Retryable
	b.Retryable = func(err error) bool {
		return !eris.Is(err, ErrOpen) && userRetryable(err)
	}

	return Retry(ctx, b, op, func(ctx context.Context) (T, error) {
		var zero T
		if g.Limiter != nil {
			if err := g.Limiter.Wait(ctx); err != nil {
				return zero, eris.Wrap(err, "resilience: rate limit wait")
			}
		}
		if g.Breaker != nil {
			if err := g.Breaker.Allow(); err != nil {
				return zero, err
			}
		}
		v, err := fn(ctx)
		if g.Breaker != nil {
			if err != nil && !userRetryable(err) {
				g.Breaker.Record(nil)
			} else {
				g.Breaker.Record(err)
			}
		}
		return v, err
	})
}
