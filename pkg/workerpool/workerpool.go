// Package workerpool provides a bounded, order-preserving parallel map,
// used to spread the RSA-heavy graph-encryption step (signing every node
// and edge, plus every decoy, under the outsourced party's key) across
// available CPUs the way the reference implementation spreads it across a
// process pool sized to the host's core count.
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every item concurrently, bounded to workers goroutines
// in flight at once (0 or negative means runtime.NumCPU()), and returns
// results in the same order as items. The first error from any fn call
// cancels ctx for the remaining in-flight calls and is returned; once the
// scheduling loop observes the cancellation it starts no further calls.
func Map[T any, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)

	for i, item := range items {
		i, item := i, item

		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			return nil, g.Wait()
		}

		g.Go(func() error {
			defer func() { <-sem }()
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
