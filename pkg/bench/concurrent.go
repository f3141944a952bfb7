package bench

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Concurrent returns a benchmark function that fans fn out to n workers and
// joins them before returning, so one call measures n simulated concurrent
// callers. The first worker error cancels the others and is returned.
func Concurrent(n int, fn func(ctx context.Context, worker int) error) func(context.Context) error {
	if n < 1 {
		n = 1
	}
	return func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < n; w++ {
			g.Go(func() error { return fn(gctx, w) })
		}
		return g.Wait()
	}
}
