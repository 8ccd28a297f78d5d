package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPromise_FirstSettlementWins(t *testing.T) {
	p := NewPromise[string](nil)
	if !p.Resolve("first") {
		t.Fatal("First Resolve should settle")
	}
	if p.Resolve("second") {
		t.Error("Second Resolve should be ignored")
	}
	if p.Reject(errors.New("late")) {
		t.Error("Reject after Resolve should be ignored")
	}

	v, err := p.Await(context.Background())
	if err != nil || v != "first" {
		t.Errorf("Expected (first, nil), got (%q, %v)", v, err)
	}
}

func TestPromise_RejectNil(t *testing.T) {
	p := Rejected[int](nil)
	_, err := p.Await(context.Background())
	if !errors.Is(err, ErrNilRejection) {
		t.Errorf("Expected ErrNilRejection, got %v", err)
	}
}

func TestPromise_ThenBeforeAndAfterSettle(t *testing.T) {
	p := NewPromise[int](nil)
	var calls []int
	p.Then(func(v int) { calls = append(calls, v) }, nil)
	p.Resolve(7)
	p.Then(func(v int) { calls = append(calls, v*10) }, nil)

	if len(calls) != 2 || calls[0] != 7 || calls[1] != 70 {
		t.Errorf("Expected [7 70], got %v", calls)
	}
}

func TestPromise_ThenOnlyOneArmRuns(t *testing.T) {
	p := NewPromise[int](nil)
	var values, errs int
	p.Then(func(int) { values++ }, func(error) { errs++ })
	p.Reject(errors.New("boom"))
	p.Resolve(1)

	if values != 0 || errs != 1 {
		t.Errorf("Expected exactly one rejection, got values=%d errs=%d", values, errs)
	}
}

func TestPromise_AwaitContext(t *testing.T) {
	p := NewPromise[int](nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestPromise_Result(t *testing.T) {
	p := NewPromise[int](nil)
	if _, _, ok := p.Result(); ok {
		t.Error("Pending promise should report !ok")
	}
	p.Resolve(3)
	v, err, ok := p.Result()
	if !ok || err != nil || v != 3 {
		t.Errorf("Expected (3, nil, true), got (%d, %v, %v)", v, err, ok)
	}
	if !p.Settled() {
		t.Error("Expected settled")
	}
}

func TestMap(t *testing.T) {
	p := NewPromise[int](nil)
	q := Map(p, func(v int) (string, error) {
		if v < 0 {
			return "", errors.New("negative")
		}
		return "ok", nil
	})
	p.Resolve(1)
	if v, err := q.Await(context.Background()); err != nil || v != "ok" {
		t.Errorf("Expected ok, got %q %v", v, err)
	}

	p2 := NewPromise[int](nil)
	q2 := Map(p2, func(v int) (string, error) { return "", errors.New("negative") })
	p2.Resolve(-1)
	if _, err := q2.Await(context.Background()); err == nil {
		t.Error("Expected transform error")
	}

	sentinel := errors.New("upstream")
	q3 := Map(Rejected[int](sentinel), func(v int) (int, error) { return v, nil })
	if _, err := q3.Await(context.Background()); !errors.Is(err, sentinel) {
		t.Errorf("Expected upstream rejection to pass through, got %v", err)
	}
}

// manualSource lets a test push events into a subscription.
type manualSource struct {
	subs      []*Subscriber[int]
	starts    int
	teardowns int
}

func (m *manualSource) observable(exec Executor) *Observable[int] {
	return NewObservable(exec, func(sub *Subscriber[int]) func() {
		m.starts++
		m.subs = append(m.subs, sub)
		return func() { m.teardowns++ }
	})
}

func TestObservable_EachSubscriptionStartsSource(t *testing.T) {
	src := &manualSource{}
	obs := src.observable(nil)

	var a, b []int
	subA := obs.Subscribe(Observer[int]{Next: func(v int) { a = append(a, v) }})
	subB := obs.Subscribe(Observer[int]{Next: func(v int) { b = append(b, v) }})

	if src.starts != 2 {
		t.Fatalf("Expected 2 source starts, got %d", src.starts)
	}
	src.subs[0].Next(1)
	src.subs[1].Next(2)
	src.subs[0].Next(3)

	if len(a) != 2 || a[0] != 1 || a[1] != 3 {
		t.Errorf("Subscriber A expected [1 3], got %v", a)
	}
	if len(b) != 1 || b[0] != 2 {
		t.Errorf("Subscriber B expected [2], got %v", b)
	}
	subA.Unsubscribe()
	subB.Unsubscribe()
}

func TestObservable_UnsubscribeIdempotent(t *testing.T) {
	src := &manualSource{}
	sub := src.observable(nil).Subscribe(Observer[int]{})
	sub.Unsubscribe()
	sub.Unsubscribe()

	if src.teardowns != 1 {
		t.Errorf("Expected teardown exactly once, got %d", src.teardowns)
	}
	if !sub.Closed() {
		t.Error("Subscription should be closed")
	}
}

func TestObservable_NoEmissionAfterUnsubscribe(t *testing.T) {
	src := &manualSource{}
	var got []int
	sub := src.observable(nil).Subscribe(Observer[int]{Next: func(v int) { got = append(got, v) }})
	sub.Unsubscribe()

	if src.subs[0].Next(1) {
		t.Error("Next after unsubscribe should report false")
	}
	if len(got) != 0 {
		t.Errorf("Expected no emissions, got %v", got)
	}
}

func TestObservable_ErrorTerminates(t *testing.T) {
	src := &manualSource{}
	var got []int
	var gotErr error
	src.observable(nil).Subscribe(Observer[int]{
		Next:  func(v int) { got = append(got, v) },
		Error: func(err error) { gotErr = err },
	})

	boom := errors.New("boom")
	src.subs[0].Next(1)
	src.subs[0].Error(boom)
	src.subs[0].Next(2)
	src.subs[0].Error(errors.New("second"))

	if len(got) != 1 || got[0] != 1 {
		t.Errorf("Expected [1], got %v", got)
	}
	if gotErr != boom {
		t.Errorf("Expected first error, got %v", gotErr)
	}
	if src.teardowns != 1 {
		t.Errorf("Expected teardown after error, got %d", src.teardowns)
	}
}

func TestObservable_ErrorDuringProduceRunsTeardownAfterwards(t *testing.T) {
	teardowns := 0
	obs := NewObservable(nil, func(sub *Subscriber[int]) func() {
		sub.Error(errors.New("sync failure"))
		return func() { teardowns++ }
	})
	var gotErr error
	sub := obs.Subscribe(Observer[int]{Error: func(err error) { gotErr = err }})
	if gotErr == nil {
		t.Fatal("Expected synchronous error")
	}
	if teardowns != 1 {
		t.Errorf("Expected teardown once, got %d", teardowns)
	}
	sub.Unsubscribe()
	if teardowns != 1 {
		t.Errorf("Unsubscribe after error must not re-run teardown, got %d", teardowns)
	}
}

func TestObservable_ProducerPanic(t *testing.T) {
	obs := NewObservable(nil, func(sub *Subscriber[int]) func() {
		panic("native exploded")
	})
	var gotErr error
	obs.Subscribe(Observer[int]{Error: func(err error) { gotErr = err }})
	if gotErr == nil {
		t.Fatal("Expected producer panic to surface as stream error")
	}
}

func TestObservable_Complete(t *testing.T) {
	src := &manualSource{}
	completed := 0
	src.observable(nil).Subscribe(Observer[int]{Complete: func() { completed++ }})
	src.subs[0].Complete()
	src.subs[0].Complete()
	if completed != 1 {
		t.Errorf("Expected one completion, got %d", completed)
	}
	if !src.subs[0].Closed() {
		t.Error("Subscriber should be closed after completion")
	}
}

// queueExecutor holds posted work until flushed, to model in-flight emissions.
type queueExecutor struct {
	mu    sync.Mutex
	queue []func()
}

func (q *queueExecutor) Post(fn func()) {
	q.mu.Lock()
	q.queue = append(q.queue, fn)
	q.mu.Unlock()
}

func (q *queueExecutor) flush() {
	q.mu.Lock()
	queue := q.queue
	q.queue = nil
	q.mu.Unlock()
	for _, fn := range queue {
		fn()
	}
}

func TestObservable_InFlightEmissionsDiscardedAfterUnsubscribe(t *testing.T) {
	exec := &queueExecutor{}
	src := &manualSource{}
	var got []int
	sub := src.observable(exec).Subscribe(Observer[int]{Next: func(v int) { got = append(got, v) }})

	src.subs[0].Next(1)
	src.subs[0].Next(2)
	sub.Unsubscribe()
	exec.flush()

	if len(got) != 0 {
		t.Errorf("Queued emissions should be discarded, got %v", got)
	}
}

func TestObservable_UnsubscribeOffLoopWaitsForDelivery(t *testing.T) {
	loop := NewLoop()
	defer loop.Stop()

	src := &manualSource{}
	entered := make(chan struct{})
	release := make(chan struct{})
	var unsubscribed atomic.Bool
	var late atomic.Int32
	sub := src.observable(loop).Subscribe(Observer[int]{Next: func(v int) {
		if v == 1 {
			close(entered)
			<-release
		}
		if unsubscribed.Load() {
			late.Add(1)
		}
	}})

	src.subs[0].Next(1)
	<-entered

	done := make(chan struct{})
	go func() {
		sub.Unsubscribe()
		unsubscribed.Store(true)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Unsubscribe returned while a delivery was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe did not return after the delivery finished")
	}
	src.subs[0].Next(2)
	if err := loop.Do(func() {}); err != nil {
		t.Fatal(err)
	}
	if n := late.Load(); n != 0 {
		t.Errorf("Observer saw %d values after Unsubscribe returned", n)
	}
}

func TestObservable_UnsubscribeFromLoopDelivery(t *testing.T) {
	loop := NewLoop()
	defer loop.Stop()

	src := &manualSource{}
	var sub *Subscription
	got := make(chan int, 4)
	ready := make(chan struct{})
	sub = src.observable(loop).Subscribe(Observer[int]{Next: func(v int) {
		<-ready
		got <- v
		sub.Unsubscribe()
	}})
	close(ready)

	src.subs[0].Next(1)
	src.subs[0].Next(2)
	if err := loop.Do(func() {}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || <-got != 1 {
		t.Errorf("Expected only the first value before unsubscribing on the loop")
	}
	if !sub.Closed() {
		t.Error("Subscription should be closed")
	}
}

func TestObservable_QueuedValuesBeforeErrorStillDelivered(t *testing.T) {
	exec := &queueExecutor{}
	src := &manualSource{}
	var got []int
	var gotErr error
	src.observable(exec).Subscribe(Observer[int]{
		Next:  func(v int) { got = append(got, v) },
		Error: func(err error) { gotErr = err },
	})

	src.subs[0].Next(1)
	src.subs[0].Error(errors.New("late"))
	exec.flush()

	if len(got) != 1 || gotErr == nil {
		t.Errorf("Expected [1] then error, got %v, %v", got, gotErr)
	}
}

func TestMapObservable(t *testing.T) {
	src := &manualSource{}
	mapped := MapObservable(src.observable(nil), func(v int) (string, error) {
		if v < 0 {
			return "", errors.New("negative")
		}
		return string(rune('a' + v)), nil
	})

	var got []string
	var gotErr error
	mapped.Subscribe(Observer[string]{
		Next:  func(s string) { got = append(got, s) },
		Error: func(err error) { gotErr = err },
	})
	src.subs[0].Next(0)
	src.subs[0].Next(2)
	src.subs[0].Next(-1)

	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("Expected [a c], got %v", got)
	}
	if gotErr == nil {
		t.Error("Expected transform error")
	}
	if src.teardowns != 1 {
		t.Errorf("Transform error should unsubscribe source, teardowns=%d", src.teardowns)
	}
}

func TestObservable_Chan(t *testing.T) {
	src := &manualSource{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	values, errc := src.observable(nil).Chan(ctx, 4)
	src.subs[0].Next(1)
	src.subs[0].Next(2)
	src.subs[0].Complete()

	var got []int
	for v := range values {
		got = append(got, v)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 values, got %v", got)
	}
	if err := <-errc; err != nil {
		t.Errorf("Expected clean completion, got %v", err)
	}
}

func TestObservable_ChanCancel(t *testing.T) {
	src := &manualSource{}
	ctx, cancel := context.WithCancel(context.Background())

	values, errc := src.observable(nil).Chan(ctx, 1)
	cancel()

	for range values {
	}
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if src.teardowns != 1 {
		t.Errorf("Cancel should tear the source down once, got %d", src.teardowns)
	}
}

func TestLoop_RunsInOrderOnOneGoroutine(t *testing.T) {
	l := NewLoop()
	defer l.Stop()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	if err := l.Do(func() {}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("Expected 100 tasks, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("Out of order at %d: %d", i, v)
		}
	}
}

func TestLoop_PanicRecovered(t *testing.T) {
	l := NewLoop()
	defer l.Stop()

	if err := l.Do(func() { panic("boom") }); err == nil {
		t.Error("Expected panic to be returned as error")
	}
	if err := l.Do(func() {}); err != nil {
		t.Errorf("Loop should survive a panic, got %v", err)
	}
}

func TestLoop_PostFromLoopDoesNotDeadlock(t *testing.T) {
	l := NewLoop()
	defer l.Stop()

	done := make(chan struct{})
	l.Post(func() {
		l.Post(func() { close(done) })
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Nested Post did not run")
	}
}

func TestLoop_StopIdempotent(t *testing.T) {
	l := NewLoop()
	l.Stop()
	l.Stop()
	if err := l.Do(func() {}); err == nil {
		t.Error("Do after Stop should fail")
	}
}

func TestPromise_HandlersOnLoop(t *testing.T) {
	l := NewLoop()
	defer l.Stop()

	p := NewPromise[int](l)
	got := make(chan int, 1)
	p.Then(func(v int) { got <- v }, nil)
	go p.Resolve(42)

	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Handler did not run on loop")
	}
}
