package delivery

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// lookup is the outcome of one call in a best-effort batch.
type lookup[T any] struct {
	value T
	err   error
}

func (l lookup[T]) ok() bool { return l.err == nil }

// collect calls fn for every input, at most limit at a time, and returns one
// lookup per input in input order. A failed call never stops the others.
func collect[In, Out any](ctx context.Context, limit int, inputs []In, fn func(context.Context, In) (Out, error)) []lookup[Out] {
	results := make([]lookup[Out], len(inputs))

	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for i, in := range inputs {
		g.Go(func() error {
			value, err := fn(ctx, in)
			results[i] = lookup[Out]{value: value, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// gather calls fn for every input, at most limit at a time. The first error
// cancels the remaining calls and is returned once all of them have exited.
func gather[In, Out any](ctx context.Context, limit int, inputs []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	results := make([]Out, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, in := range inputs {
		g.Go(func() error {
			value, err := fn(gctx, in)
			if err != nil {
				return err
			}
			results[i] = value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
