package migrate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/jihub/internal/telemetry"
)

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RateLimiter counts mutations and pauses for the cooldown after every
// full batch. The count only ever grows.
type RateLimiter struct {
	batchSize int
	cooldown  time.Duration
	sleep     Sleeper

	count     int
	cooldowns int

	mutations metric.Int64Counter
	pauses    metric.Int64Counter
}

// NewRateLimiter builds a limiter. A nil sleep uses a context-aware timer.
func NewRateLimiter(batchSize int, cooldown time.Duration, sleep Sleeper) *RateLimiter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if sleep == nil {
		sleep = sleepContext
	}
	r := &RateLimiter{batchSize: batchSize, cooldown: cooldown, sleep: sleep}

	m := telemetry.Meter("")
	r.mutations, _ = m.Int64Counter("jihub.destination.mutations",
		metric.WithDescription("GitHub write calls sent"),
		metric.WithUnit("{call}"),
	)
	r.pauses, _ = m.Int64Counter("jihub.destination.cooldowns",
		metric.WithDescription("Cooldown pauses taken between write batches"),
		metric.WithUnit("{pause}"),
	)
	return r
}

// Wait must be called before every mutation. It sleeps when the count is a
// positive multiple of the batch size, then counts the mutation.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.count > 0 && r.count%r.batchSize == 0 {
		if err := r.sleep(ctx, r.cooldown); err != nil {
			return err
		}
		r.cooldowns++
		if r.pauses != nil {
			r.pauses.Add(ctx, 1)
		}
	}
	r.count++
	if r.mutations != nil {
		r.mutations.Add(ctx, 1)
	}
	return nil
}

// Count returns the number of mutations counted so far.
func (r *RateLimiter) Count() int { return r.count }

// Cooldowns returns the number of pauses taken.
func (r *RateLimiter) Cooldowns() int { return r.cooldowns }
