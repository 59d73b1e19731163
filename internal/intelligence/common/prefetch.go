package common

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/kgeval/pkg/errors"
)

// Batch is one contiguous slice [Offset, Offset+len(Items)) of the input.
type Batch[T any] struct {
	Index  int
	Offset int
	Items  []T
}

// BuildFunc materialises the items of [lo, hi).
type BuildFunc[T any] func(ctx context.Context, lo, hi int) ([]T, error)

// ConsumeFunc handles one built batch.
type ConsumeFunc[T any] func(ctx context.Context, b Batch[T]) error

// RunPrefetched splits [0, total) into batches of batchSize and runs build on
// a single background worker while consume handles the previous batch.
// Batches reach consume in order.  At most one built batch waits in the queue.
// The first error from either side cancels the other and is returned.
func RunPrefetched[T any](ctx context.Context, total, batchSize int, build BuildFunc[T], consume ConsumeFunc[T]) error {
	if batchSize <= 0 {
		return errors.InvalidParam("batch size must be positive")
	}
	if total <= 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan Batch[T], 1)

	g.Go(func() error {
		defer close(queue)
		for idx, lo := 0, 0; lo < total; idx, lo = idx+1, lo+batchSize {
			if err := gctx.Err(); err != nil {
				return err
			}
			hi := lo + batchSize
			if hi > total {
				hi = total
			}
			items, err := build(gctx, lo, hi)
			if err != nil {
				return err
			}
			select {
			case queue <- Batch[T]{Index: idx, Offset: lo, Items: items}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for b := range queue {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := consume(gctx, b); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

