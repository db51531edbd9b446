package comm

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RankFunc is the body of one rank
type RankFunc func(ctx context.Context, c Comm) error

// Run starts n ranks on a fresh world and waits for all of them. The first
// rank to fail cancels the context of the others, so ranks blocked in a
// receive return instead of hanging.
func Run(ctx context.Context, n int, fn RankFunc) error {
	return RunWorld(ctx, NewWorld(n), fn)
}

func RunWorld(ctx context.Context, w *World, fn RankFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < w.Size(); rank++ {
		c := w.Comm(rank)
		g.Go(func() error {
			return fn(gctx, c)
		})
	}
	return g.Wait()
}
