// Package invoke dispatches hooks, test bodies and benchmark functions that
// may be declared either synchronously or asynchronously.
//
// The kind of a callable is decided once, when it is wrapped by Of or
// Niladic. Invoke then runs it and reports an Outcome; callers never inspect
// function signatures themselves.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// Kind says how a callable completes.
type Kind int

const (
	// Sync callables finish when they return.
	Sync Kind = iota
	// Async callables return a channel that delivers their result later.
	Async
)

func (k Kind) String() string {
	if k == Async {
		return "async"
	}
	return "sync"
}

// ErrUnsupported is returned when a function has a signature Of or Niladic cannot dispatch.
var ErrUnsupported = errors.New("unsupported callable signature")

// Callable is a wrapped function taking an argument of type A.
type Callable[A any] struct {
	kind  Kind
	sync  func(context.Context, A) error
	async func(context.Context, A) <-chan error
}

// Outcome is the result of one invocation.
type Outcome struct {
	Err       error
	Panicked  bool
	Recovered any
	Stack     []byte
	Duration  time.Duration
}

// OK reports whether the callable returned without error or panic.
func (o Outcome) OK() bool {
	return o.Err == nil && !o.Panicked
}

// Of wraps fn, which must be one of:
//
//	func(A)
//	func(A) error
//	func(context.Context, A) error
//	func(context.Context, A) <-chan error   (async)
//
// or one of the forms accepted by Niladic, in which case the argument is
// ignored. A nil fn yields a zero Callable whose Invoke is a no-op.
func Of[A any](fn any) (Callable[A], error) {
	switch f := fn.(type) {
	case nil:
		return Callable[A]{}, nil
	case Callable[A]:
		return f, nil
	case func(A):
		return Callable[A]{kind: Sync, sync: func(_ context.Context, a A) error { f(a); return nil }}, nil
	case func(A) error:
		return Callable[A]{kind: Sync, sync: func(_ context.Context, a A) error { return f(a) }}, nil
	case func(context.Context, A) error:
		return Callable[A]{kind: Sync, sync: f}, nil
	case func(context.Context, A) <-chan error:
		return Callable[A]{kind: Async, async: f}, nil
	case func():
		return Callable[A]{kind: Sync, sync: func(context.Context, A) error { f(); return nil }}, nil
	case func() error:
		return Callable[A]{kind: Sync, sync: func(context.Context, A) error { return f() }}, nil
	case func(context.Context) error:
		return Callable[A]{kind: Sync, sync: func(ctx context.Context, _ A) error { return f(ctx) }}, nil
	case func(context.Context) <-chan error:
		return Callable[A]{kind: Async, async: func(ctx context.Context, _ A) <-chan error { return f(ctx) }}, nil
	default:
		return Callable[A]{}, fmt.Errorf("%w: %T", ErrUnsupported, fn)
	}
}

// Niladic wraps a function that takes no test argument:
//
//	func()
//	func() error
//	func(context.Context) error
//	func(context.Context) <-chan error   (async)
func Niladic(fn any) (Callable[struct{}], error) {
	switch fn.(type) {
	case nil, func(), func() error, func(context.Context) error, func(context.Context) <-chan error:
		return Of[struct{}](fn)
	default:
		return Callable[struct{}]{}, fmt.Errorf("%w: %T", ErrUnsupported, fn)
	}
}

// Kind reports whether c is sync or async.
func (c Callable[A]) Kind() Kind { return c.kind }

// IsZero reports whether c wraps no function.
func (c Callable[A]) IsZero() bool { return c.sync == nil && c.async == nil }

// Invoke runs c with a and waits for it to finish.
//
// Panics raised on the calling goroutine are recovered into the Outcome.
// For async callables the returned channel is awaited until it delivers a
// value, is closed (success), or ctx is done (Err is the context error and
// the pending work is abandoned).
func (c Callable[A]) Invoke(ctx context.Context, a A) (out Outcome) {
	if c.IsZero() {
		return Outcome{}
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Panicked = true
			out.Recovered = r
			out.Stack = debug.Stack()
		}
		out.Duration = time.Since(start)
	}()

	if c.kind == Sync {
		out.Err = c.sync(ctx, a)
		return out
	}

	ch := c.async(ctx, a)
	if ch == nil {
		return out
	}
	select {
	case err := <-ch:
		var pe *PanicError
		if errors.As(err, &pe) {
			out.Panicked, out.Recovered, out.Stack = true, pe.Value, pe.Stack
			return out
		}
		out.Err = err
	case <-ctx.Done():
		out.Err = ctx.Err()
	}
	return out
}

// PanicError carries a panic recovered on another goroutine. Invoke turns
// it back into a panicked Outcome, so an async body that calls FailNow or
// Skip behaves like a sync one.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Go runs fn on a new goroutine and returns a channel that receives its error.
// It is a convenience for writing async hooks:
//
//	func(ctx context.Context, t *runner.T) <-chan error {
//		return invoke.Go(func() error { return client.Ping(ctx) })
//	}
//
// A panic in fn is delivered as a *PanicError.
func Go(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- &PanicError{Value: r, Stack: debug.Stack()}
			}
			close(ch)
		}()
		ch <- fn()
	}()
	return ch
}
