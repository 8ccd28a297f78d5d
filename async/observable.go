package async

import (
	"context"
	"fmt"
	"sync"
)

// Observer receives stream events. Any field may be nil.
type Observer[T any] struct {
	Next     func(T)
	Error    func(error)
	Complete func()
}

// Producer starts one underlying source for a subscriber and returns the
// teardown that stops it (nil if nothing to stop).
type Producer[T any] func(sub *Subscriber[T]) (teardown func())

// Observable is a cold push-based stream: every Subscribe runs the producer
// again, so each subscription owns its own source. There is no sharing
// between subscribers.
type Observable[T any] struct {
	exec    Executor
	produce Producer[T]
}

// NewObservable creates an observable delivering on exec (nil means Inline).
func NewObservable[T any](exec Executor, produce Producer[T]) *Observable[T] {
	if exec == nil {
		exec = Inline
	}
	return &Observable[T]{exec: exec, produce: produce}
}

// Failed returns an observable whose subscriptions error immediately.
func Failed[T any](exec Executor, err error) *Observable[T] {
	return NewObservable(exec, func(sub *Subscriber[T]) func() {
		sub.Error(err)
		return nil
	})
}

// subscriptionState is shared by the producer-facing Subscriber and the
// consumer-facing Subscription.
type subscriptionState struct {
	mu sync.Mutex

	// terminated stops the producer side: no new events are accepted.
	terminated bool
	// stopped gates delivery: queued events are discarded once set.
	stopped bool

	teardown        func()
	ready           bool
	finalizePending bool
	finalized       bool
}

func (s *subscriptionState) terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return false
	}
	s.terminated = true
	return true
}

func (s *subscriptionState) isTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// stop closes the delivery gate. It reports whether this call closed it.
func (s *subscriptionState) stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.stopped = true
	return true
}

func (s *subscriptionState) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// setTeardown records the producer's teardown. If the stream already
// finished while the producer was still running, teardown runs now.
func (s *subscriptionState) setTeardown(td func()) {
	s.mu.Lock()
	s.teardown = td
	s.ready = true
	pending := s.finalizePending
	s.mu.Unlock()
	if pending {
		s.finalize()
	}
}

// finalize runs the teardown at most once.
func (s *subscriptionState) finalize() {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	if !s.ready {
		s.finalizePending = true
		s.mu.Unlock()
		return
	}
	s.finalized = true
	td := s.teardown
	s.mu.Unlock()
	if td != nil {
		td()
	}
}

// Subscriber is the producer's handle on one subscription.
type Subscriber[T any] struct {
	exec Executor
	obs  Observer[T]
	st   *subscriptionState
}

// Next emits v. It returns false if the stream is already terminated or
// unsubscribed, in which case v is dropped.
func (s *Subscriber[T]) Next(v T) bool {
	if s.st.isTerminated() {
		return false
	}
	s.exec.Post(func() {
		if s.st.isStopped() {
			return
		}
		if s.obs.Next != nil {
			s.obs.Next(v)
		}
	})
	return true
}

// Error terminates the stream with err and runs the teardown.
func (s *Subscriber[T]) Error(err error) {
	if !s.st.terminate() {
		return
	}
	s.exec.Post(func() {
		if !s.st.stop() {
			return
		}
		if s.obs.Error != nil {
			s.obs.Error(err)
		}
	})
	s.st.finalize()
}

// Complete terminates the stream normally and runs the teardown.
func (s *Subscriber[T]) Complete() {
	if !s.st.terminate() {
		return
	}
	s.exec.Post(func() {
		if !s.st.stop() {
			return
		}
		if s.obs.Complete != nil {
			s.obs.Complete()
		}
	})
	s.st.finalize()
}

// Closed reports whether the stream no longer accepts events.
func (s *Subscriber[T]) Closed() bool {
	return s.st.isTerminated()
}

// Subscription is the consumer's handle on one subscription.
type Subscription struct {
	exec Executor
	st   *subscriptionState
}

// Unsubscribe stops delivery and runs the teardown once. No value reaches
// the observer after it returns: on a Loop, a delivery already running on
// the loop goroutine is waited for. Calling it again is a no-op.
func (s *Subscription) Unsubscribe() {
	s.st.terminate()
	if s.st.stop() {
		if f, ok := s.exec.(flusher); ok {
			f.Flush()
		}
	}
	s.st.finalize()
}

// Closed reports whether the consumer will see no further events.
func (s *Subscription) Closed() bool {
	return s.st.isStopped()
}

// Subscribe runs the producer for a new subscription.
func (o *Observable[T]) Subscribe(obs Observer[T]) *Subscription {
	st := &subscriptionState{}
	sub := &Subscriber[T]{exec: o.exec, obs: obs, st: st}

	var teardown func()
	func() {
		defer func() {
			if r := recover(); r != nil {
				sub.Error(fmt.Errorf("async: producer panicked: %v", r))
			}
		}()
		teardown = o.produce(sub)
	}()
	st.setTeardown(teardown)

	return &Subscription{exec: o.exec, st: st}
}

// Chan subscribes and exposes the stream as channels. The values channel is
// closed when the stream ends; the error channel then yields the terminal
// error, if any, and is closed. Cancelling ctx unsubscribes.
func (o *Observable[T]) Chan(ctx context.Context, buffer int) (<-chan T, <-chan error) {
	values := make(chan T, buffer)
	errc := make(chan error, 1)
	finished := make(chan struct{})

	var mu sync.Mutex
	closed := false
	finish := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		closed = true
		if err != nil {
			errc <- err
		}
		close(errc)
		close(values)
		close(finished)
	}

	sub := o.Subscribe(Observer[T]{
		Next: func(v T) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			select {
			case values <- v:
			case <-ctx.Done():
			}
		},
		Error:    finish,
		Complete: func() { finish(nil) },
	})

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			finish(ctx.Err())
		case <-finished:
		}
	}()

	return values, errc
}

// MapObservable derives a stream by transforming each value. A transform
// error terminates the derived stream and unsubscribes from the source.
func MapObservable[T, U any](o *Observable[T], fn func(T) (U, error)) *Observable[U] {
	return NewObservable(o.exec, func(out *Subscriber[U]) func() {
		src := o.Subscribe(Observer[T]{
			Next: func(v T) {
				u, err := fn(v)
				if err != nil {
					out.Error(err)
					return
				}
				out.Next(u)
			},
			Error:    out.Error,
			Complete: out.Complete,
		})
		return src.Unsubscribe
	})
}
