// Package async converts callback-style native results into promises and
// push-based streams, delivered through an Executor.
package async

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("nativebridge.async")

// Executor runs consumer-facing callbacks. Implementations must run posted
// functions in FIFO order.
type Executor interface {
	Post(fn func())
}

// Inline runs every posted function immediately on the calling goroutine.
var Inline Executor = inlineExecutor{}

type inlineExecutor struct{}

func (inlineExecutor) Post(fn func()) { fn() }

// Loop serializes all posted work through a single goroutine, giving
// consumers one logical thread no matter which goroutine the native side
// calls back from. Posting never blocks; the queue is unbounded.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// gid is the loop goroutine's id, used to detect calls made from
	// inside a posted function.
	gid atomic.Int64
}

// NewLoop creates a Loop and starts the processing goroutine.
func NewLoop() *Loop {
	l := &Loop{
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.loop()
	return l
}

// loop processes posted work sequentially on a dedicated goroutine.
func (l *Loop) loop() {
	defer close(l.stopped)
	l.gid.Store(goroutineID())
	for {
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			if err := l.execute(fn); err != nil {
				log.Errorf("loop task panicked: %s", err)
			}
		}
		select {
		case <-l.wake:
		case <-l.quit:
			return
		}
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

// execute runs a function, recovering from panics.
func (l *Loop) execute(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}

// Post enqueues fn. Work posted after Stop is dropped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.quit:
		return
	default:
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop goroutine and blocks until it completes.
// A panic inside fn is returned as an error. Do must not be called from
// the loop goroutine itself.
func (l *Loop) Do(fn func()) error {
	done := make(chan error, 1)
	l.Post(func() {
		done <- l.execute(fn)
	})
	select {
	case err := <-done:
		return err
	case <-l.stopped:
		return fmt.Errorf("async: loop stopped")
	}
}

// Flush waits until every function posted before the call has run. Called
// from the loop goroutine it returns at once, since the caller is then the
// function being run.
func (l *Loop) Flush() {
	if l.gid.Load() == goroutineID() {
		return
	}
	_ = l.Do(func() {})
}

// flusher is implemented by executors that can wait for posted work.
type flusher interface {
	Flush()
}

// goroutineID parses the current goroutine's id from its stack header
// ("goroutine 123 [running]:").
func goroutineID() int64 {
	var buf [64]byte
	b := bytes.TrimPrefix(buf[:runtime.Stack(buf[:], false)], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// Stop shuts down the loop goroutine and waits for it to exit. Work still
// queued may be dropped. Stop is idempotent.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.quit) })
	<-l.stopped
}
