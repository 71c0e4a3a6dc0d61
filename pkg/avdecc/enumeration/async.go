package enumeration

import (
	"context"
)

// await bridges one callback-style AVDECC call into a blocking call for use
// inside an errgroup stage: issue starts the operation and must invoke the
// supplied function exactly once; await blocks until that happens or ctx is
// cancelled.
func await[T any](ctx context.Context, issue func(func(T, error)) error) (T, error) {
	var zero T
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	if err := issue(func(v T, err error) {
		ch <- result{v, err}
	}); err != nil {
		return zero, err
	}
	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
