// Package future implements a single assignment result that can be waited on.
package future

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCanceled completes futures whose request was abandoned
var ErrCanceled = errors.New("canceled")

// ErrTimeout is returned by WaitFor when the future is not ready in time
var ErrTimeout = errors.New("timeout")

// Future holds a value of T or an error once completed. Only the first
// completion counts, later ones are ignored.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a completed future
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Set(v)
	return f
}

// Failed returns a future completed with err
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Fail(err)
	return f
}

// Set completes with v, returns false if already completed
func (f *Future[T]) Set(v T) bool {
	return f.complete(v, nil)
}

// Fail completes with err
func (f *Future[T]) Fail(err error) bool {
	var zero T
	return f.complete(zero, err)
}

// Cancel completes with ErrCanceled
func (f *Future[T]) Cancel() bool {
	return f.Fail(ErrCanceled)
}

func (f *Future[T]) complete(v T, err error) bool {
	ok := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
		ok = true
	})
	return ok
}

// Done is closed on completion
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready polls for completion
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until completion or ctx ends
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WaitFor blocks at most d
func (f *Future[T]) WaitFor(d time.Duration) (T, error) {
	if f.Ready() {
		return f.value, f.err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.value, f.err
	case <-timer.C:
		var zero T
		return zero, ErrTimeout
	}
}

// Result returns the outcome of a ready future without blocking
func (f *Future[T]) Result() (T, error, bool) {
	if !f.Ready() {
		var zero T
		return zero, nil, false
	}
	return f.value, f.err, true
}

// IsCanceled reports whether err marks a cancellation
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
