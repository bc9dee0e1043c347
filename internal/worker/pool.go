package worker

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Pool runs tasks with bounded concurrency, pacing every task start through
// a limiter that may be shared between pools.
type Pool struct {
	workers int
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewPool(workers int, limiter *rate.Limiter, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		limiter: limiter,
		log:     logger,
	}
}

// Workers returns the concurrency bound.
func (p *Pool) Workers() int {
	return p.workers
}

// Run calls fn once for every index in [0, n). Tasks cannot fail the pool;
// fn records its own outcome. Run stops starting new tasks once ctx is done
// and returns the context error in that case, after in-flight tasks finish.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	for i := 0; i < n; i++ {

		// ----------------------------
		// Rate Limit
		// ----------------------------
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				p.log.Warn("rate limiter stopped by context",
					zap.Int("started", i),
					zap.Int("total", n),
					zap.Error(err),
				)
				g.Wait()
				return err
			}
		} else if err := ctx.Err(); err != nil {
			g.Wait()
			return err
		}

		idx := i
		g.Go(func() error {
			fn(ctx, idx)
			return nil
		})
	}

	return g.Wait()
}
