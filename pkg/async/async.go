// Package async runs a function in its own goroutine and hands back a
// Future for its result. Panics inside the function complete the Future
// with ErrPanic instead of crashing the process.
package async

import (
	"context"
	"fmt"
	"time"
)

// Future is the eventual result of a function started with Go.
type Future[U any] struct {
	result U
	err    error
	done   chan struct{}
}

// Go starts fn in a new goroutine. A context cancelled before fn starts
// completes the Future with the context error without calling fn.
func Go[U any](ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer func() {
			if rec := recover(); rec != nil {
				var zero U
				f.result, f.err = zero, fmt.Errorf("%w: %v", ErrPanic, rec)
			}
		}()

		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.result, f.err = fn(ctx)
	}()

	return f
}

// Await blocks until the function returns.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitContext blocks until the function returns or ctx is done.
func (f *Future[U]) AwaitContext(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero U
		return zero, ctx.Err()
	}
}

// AwaitWithTimeout is AwaitContext with a relative deadline.
func (f *Future[U]) AwaitWithTimeout(timeout time.Duration) (U, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-f.done:
		return f.result, f.err
	case <-t.C:
		var zero U
		return zero, ErrTimeout
	}
}

// Done is closed once the function has returned.
func (f *Future[U]) Done() <-chan struct{} {
	return f.done
}

// WaitAll waits for every future and returns their results in order along
// with the first error encountered.
func WaitAll[U any](futures ...*Future[U]) ([]U, error) {
	results := make([]U, len(futures))
	var firstErr error
	for i, f := range futures {
		res, err := f.Await()
		results[i] = res
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}
