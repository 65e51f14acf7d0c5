package relay

import (
	"context"
	"runtime/debug"
	"sync"
)

// Future is a one-shot result that a handler hands to the pipeline through
// Context.Future. The pipeline suspends until the future settles.
type Future struct {
	done   chan struct{}
	once   sync.Once
	value  any
	err    error
	cancel context.CancelFunc
}

// NewFuture returns an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Completed returns a future already settled with v.
func Completed(v any) *Future {
	f := NewFuture()
	f.Complete(v)
	return f
}

// Async runs fn on a new goroutine and returns a future settled with its
// result. The context passed to fn is cancelled when the future is
// cancelled, for example when the request times out. A panic in fn fails
// the future with a *PanicError.
func Async(ctx context.Context, fn func(ctx context.Context) (any, error)) *Future {
	ctx, cancel := context.WithCancel(ctx)
	f := NewFuture()
	f.cancel = cancel

	go func() {
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				f.Fail(&PanicError{Value: rec, Stack: debug.Stack()})
			}
		}()
		v, err := fn(ctx)
		if err != nil {
			f.Fail(err)
			return
		}
		f.Complete(v)
	}()

	return f
}

// Complete settles the future with a value. It reports whether this call
// settled it.
func (f *Future) Complete(v any) bool {
	return f.settle(v, nil)
}

// Fail settles the future with an error.
func (f *Future) Fail(err error) bool {
	return f.settle(nil, err)
}

// Cancel settles the future with context.Canceled and cancels the context
// of an Async future.
func (f *Future) Cancel() bool {
	ok := f.settle(nil, context.Canceled)
	if f.cancel != nil {
		f.cancel()
	}
	return ok
}

func (f *Future) settle(v any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err = v, err
		settled = true
		close(f.done)
	})
	return settled
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the future settles and returns its outcome.
func (f *Future) Result() (any, error) {
	<-f.done
	return f.value, f.err
}
