package propagation

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultMinParallel is the level size below which goroutine fan-out costs
// more than it saves.
const DefaultMinParallel = 32

// WorkerPool runs the bodies of one depth level concurrently. Bodies of the
// same level only read their parent's already-updated transform, so they are
// independent; levels themselves are run strictly in order by the caller.
type WorkerPool struct {
	workers     int
	minParallel int
	logger      *slog.Logger
}

// NewWorkerPool creates a pool bounded by the given number of workers.
func NewWorkerPool(workers, minParallel int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if minParallel < 1 {
		minParallel = DefaultMinParallel
	}
	return &WorkerPool{
		workers:     workers,
		minParallel: minParallel,
		logger:      logger,
	}
}

// Workers returns the concurrency bound.
func (wp *WorkerPool) Workers() int { return wp.workers }

// RunLevel calls fn for every body index in level and returns once all calls
// have finished. A failing body is logged and counted and does not stop its
// siblings. The only error returned is the context's.
func (wp *WorkerPool) RunLevel(ctx context.Context, level []int, fn func(i int) error) (int, error) {
	if len(level) == 0 {
		return 0, ctx.Err()
	}

	if wp.workers == 1 || len(level) < wp.minParallel {
		failed := 0
		for _, i := range level {
			if err := ctx.Err(); err != nil {
				return failed, err
			}
			if err := fn(i); err != nil {
				failed++
				wp.logger.Warn("body update failed", "index", i, "error", err)
			}
		}
		return failed, nil
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(wp.workers)
	for _, i := range level {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(i); err != nil {
				failed.Add(1)
				wp.logger.Warn("body update failed", "index", i, "error", err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return int(failed.Load()), err
}
