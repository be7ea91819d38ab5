package classifier

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RunBounded calls fn for every item with at most width calls in flight.
// A failing item never cancels its siblings. onDone is called once per finished
// item, serialized, with the running completion count.
// Scheduling stops once ctx is done and the context error is returned.
func RunBounded[T any](
	ctx context.Context,
	width int,
	items []T,
	fn func(ctx context.Context, item T) error,
	onDone func(done int, item T, err error),
) error {
	if width < 1 {
		width = 1
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		done int
	)
	g.SetLimit(width)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := fn(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			done++
			if onDone != nil {
				onDone(done, item, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}
