package async

import (
	"context"
	"errors"
	"sync"
)

// ErrNilRejection replaces a nil error passed to Reject.
var ErrNilRejection = errors.New("async: rejected with nil error")

// Promise is a single-resolution future. The first Resolve or Reject wins;
// later settlements are ignored.
type Promise[T any] struct {
	exec Executor

	mu       sync.Mutex
	settled  bool
	value    T
	err      error
	done     chan struct{}
	handlers []func()
}

// NewPromise creates a pending promise whose handlers run on exec.
// A nil exec means Inline.
func NewPromise[T any](exec Executor) *Promise[T] {
	if exec == nil {
		exec = Inline
	}
	return &Promise[T]{
		exec: exec,
		done: make(chan struct{}),
	}
}

// Resolved returns a promise already fulfilled with v.
func Resolved[T any](v T) *Promise[T] {
	p := NewPromise[T](nil)
	p.Resolve(v)
	return p
}

// Rejected returns a promise already rejected with err.
func Rejected[T any](err error) *Promise[T] {
	p := NewPromise[T](nil)
	p.Reject(err)
	return p
}

// Resolve fulfills the promise. It reports whether this call settled it.
func (p *Promise[T]) Resolve(v T) bool {
	return p.settle(v, nil)
}

// Reject rejects the promise. It reports whether this call settled it.
func (p *Promise[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	return p.settle(zero, err)
}

func (p *Promise[T]) settle(v T, err error) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	p.value = v
	p.err = err
	handlers := p.handlers
	p.handlers = nil
	close(p.done)
	p.mu.Unlock()

	for _, h := range handlers {
		p.exec.Post(h)
	}
	return true
}

// Then registers handlers for fulfillment and rejection. Either may be nil.
// Handlers registered after settlement are posted immediately.
func (p *Promise[T]) Then(onValue func(T), onError func(error)) {
	h := func() {
		if p.err != nil {
			if onError != nil {
				onError(p.err)
			}
			return
		}
		if onValue != nil {
			onValue(p.value)
		}
	}

	p.mu.Lock()
	if !p.settled {
		p.handlers = append(p.handlers, h)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.exec.Post(h)
}

// Await blocks until the promise settles or ctx is done.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the promise settles.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Settled reports whether the promise has settled.
func (p *Promise[T]) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

// Result returns the outcome without blocking. ok is false while pending.
func (p *Promise[T]) Result() (value T, err error, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.settled {
		var zero T
		return zero, nil, false
	}
	return p.value, p.err, true
}

// Map derives a promise by transforming the fulfilled value. Rejections
// pass through unchanged.
func Map[T, U any](p *Promise[T], fn func(T) (U, error)) *Promise[U] {
	q := NewPromise[U](p.exec)
	p.Then(func(v T) {
		u, err := fn(v)
		if err != nil {
			q.Reject(err)
			return
		}
		q.Resolve(u)
	}, func(err error) {
		q.Reject(err)
	})
	return q
}
