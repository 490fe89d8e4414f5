package tool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// FanOut runs fn for i in [0, n) on at most workers goroutines and returns the
// results indexed by i, whatever order the tasks finish in. The first error
// cancels the remaining tasks and is returned; no partial results are kept.
func FanOut[T any](ctx context.Context, workers, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]T, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, i)
			if err != nil {
				return err
			}
			// each task owns exactly one slot
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
