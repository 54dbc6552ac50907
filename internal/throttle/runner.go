// Package throttle paces provider calls: a rate ceiling between item starts
// and a bound on items in flight.
package throttle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Runner starts work items in index order and at most concurrency at a time.
// With concurrency 1 the run is strictly sequential and the interval is a
// pause after each item completes. With more slots the interval is a rate
// ceiling on item starts.
type Runner struct {
	limiter     *rate.Limiter
	interval    time.Duration
	concurrency int
}

func NewRunner(interval time.Duration, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		lim = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Runner{limiter: lim, interval: interval, concurrency: concurrency}
}

func (r *Runner) Interval() time.Duration { return r.interval }

func (r *Runner) Concurrency() int { return r.concurrency }

// Run calls work(ctx, i) for every i in [0, n). work owns its failures; one
// item can never stop the others. Run returns an error only when ctx ends
// before every item was started; the unstarted items are not called.
func (r *Runner) Run(ctx context.Context, n int, work func(ctx context.Context, i int)) error {
	if r.concurrency == 1 {
		return r.runSequential(ctx, n, work)
	}

	slots := semaphore.NewWeighted(int64(r.concurrency))
	var g errgroup.Group

	for i := 0; i < n; i++ {
		if err := slots.Acquire(ctx, 1); err != nil {
			_ = g.Wait()
			return fmt.Errorf("throttle: stopped after %d of %d items: %w", i, n, err)
		}
		if err := r.limiter.Wait(ctx); err != nil {
			slots.Release(1)
			_ = g.Wait()
			return fmt.Errorf("throttle: stopped after %d of %d items: %w", i, n, err)
		}
		i := i
		g.Go(func() error {
			defer slots.Release(1)
			work(ctx, i)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) runSequential(ctx context.Context, n int, work func(ctx context.Context, i int)) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("throttle: stopped after %d of %d items: %w", i, n, err)
		}
		work(ctx, i)
		if i == n-1 || r.interval <= 0 {
			continue
		}
		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("throttle: stopped after %d of %d items: %w", i+1, n, ctx.Err())
		case <-timer.C:
		}
	}
	return nil
}
