package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Future holds the eventual result of a function started with Go.
type Future[U any] struct {
	value U
	err   error
	done  chan struct{}
}

// Go starts fn in a new goroutine. A context that is already done skips fn
// and settles the future with the context error. Panics in fn settle the
// future with an error matching ErrPanic.
func Go[U any](ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = call(ctx, fn)
	}()
	return f
}

func call[U any](ctx context.Context, fn func(context.Context) (U, error)) (v U, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero U
			v, err = zero, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	if err := ctx.Err(); err != nil {
		return v, err
	}
	return fn(ctx)
}

// Done is closed once the result is available.
func (f *Future[U]) Done() <-chan struct{} { return f.done }

// Wait blocks until the future settles or ctx is done. Abandoning the wait
// does not stop the running function.
func (f *Future[U]) Wait(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero U
		return zero, fmt.Errorf("%w: %w", ErrAbandoned, ctx.Err())
	}
}

// Result is the settled outcome of one future.
type Result[U any] struct {
	Value U
	Err   error
}

// Settle waits for every future and returns the outcomes in argument order.
func Settle[U any](futures ...*Future[U]) []Result[U] {
	out := make([]Result[U], len(futures))
	for i, f := range futures {
		<-f.done
		out[i] = Result[U]{Value: f.value, Err: f.err}
	}
	return out
}

// Map calls fn for every item with at most limit calls in flight and
// returns the outcomes in item order. A limit below one runs all items at
// once. Items not yet started when ctx ends report the context error.
func Map[T, U any](ctx context.Context, items []T, limit int, fn func(context.Context, T) (U, error)) []Result[U] {
	out := make([]Result[U], len(items))
	if limit < 1 || limit > len(items) {
		limit = len(items)
	}

	sem := make(chan struct{}, max(limit, 1))
	var wg sync.WaitGroup
	for i, item := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			out[i].Err = ctx.Err()
			continue
		}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			v, err := call(ctx, func(ctx context.Context) (U, error) { return fn(ctx, item) })
			out[i] = Result[U]{Value: v, Err: err}
		}()
	}
	wg.Wait()
	return out
}
