package plugin

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chazu/nativebridge/async"
	"github.com/chazu/nativebridge/bridge"
)

// Method is a wrapped native method. It is safe to call concurrently; each
// call (or each subscription) issues exactly one native invocation.
type Method struct {
	class *Class
	name  string
	desc  Descriptor
}

// Name returns the native method name.
func (m *Method) Name() string { return m.name }

// Class returns the owning class.
func (m *Method) Class() *Class { return m.class }

// Descriptor returns the dispatch descriptor.
func (m *Method) Descriptor() Descriptor { return m.desc }

// Call dispatches a promise-mode method. Every failure, including a missing
// bridge, arrives as a rejection; Call itself never panics on native errors.
func (m *Method) Call(args ...any) *async.Promise[any] {
	p := async.NewPromise[any](m.class.exec)
	if m.desc.Mode != ModePromise {
		p.Reject(m.modeError("Call", ModeObservable))
		return p
	}

	inv, err := m.begin(args)
	if err != nil {
		p.Reject(err)
		return p
	}

	result, err := inv.invoke(
		func(v any) {
			if p.Resolve(v) {
				inv.finish(nil)
			}
		},
		func(payload any) {
			ne := m.nativeError(payload, false)
			if p.Reject(ne) {
				inv.finish(ne)
			}
		},
	)
	if err != nil {
		if p.Reject(err) {
			inv.finish(err)
		}
		inv.returned(nil)
		return p
	}
	inv.returned(result)
	return p
}

// Observe returns a stream for an observable-mode method. Nothing is sent to
// the native side until Subscribe; every subscription makes its own native
// call and unsubscribing invokes the descriptor's cancel function once.
func (m *Method) Observe(args ...any) *async.Observable[any] {
	if m.desc.Mode != ModeObservable {
		return async.Failed[any](m.class.exec, m.modeError("Observe", ModePromise))
	}
	args = slices.Clone(args)

	return async.NewObservable(m.class.exec, func(sub *async.Subscriber[any]) func() {
		inv, err := m.begin(args)
		if err != nil {
			sub.Error(err)
			return nil
		}

		result, err := inv.invoke(
			func(v any) { sub.Next(v) },
			func(payload any) {
				ne := m.nativeError(payload, false)
				inv.fail(ne)
				sub.Error(ne)
			},
		)
		if err != nil {
			inv.fail(err)
			inv.finish(err)
			inv.returned(nil)
			sub.Error(err)
			return nil
		}
		inv.returned(result)

		return func() {
			inv.cancel(result)
			inv.finish(inv.failure())
		}
	})
}

func (m *Method) modeError(used string, mode ResultMode) error {
	return &DescriptorError{
		Class:  m.class.cfg.Name,
		Method: m.name,
		Reason: fmt.Sprintf("%s used on a %s method", used, mode),
	}
}

func (m *Method) nativeError(payload any, thrown bool) error {
	return &NativeError{Class: m.class.cfg.Name, Method: m.name, Payload: payload, Thrown: thrown}
}

// begin resolves the bridge and prepares one invocation.
func (m *Method) begin(args []any) (*invocation, error) {
	if err := m.class.platformError(); err != nil {
		return nil, err
	}
	obj, err := m.class.resolve(m.name)
	if err != nil {
		return nil, err
	}

	native, err := m.transform(slices.Clone(args))
	if err != nil {
		return nil, err
	}

	inv := &invocation{
		id:      uuid.NewString(),
		method:  m,
		obj:     obj,
		args:    native,
		started: time.Now(),
	}
	_, inv.span = m.class.tracer.Start(context.Background(), m.class.cfg.Name+"."+m.name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("nativebridge.invocation", inv.id),
			attribute.String("nativebridge.ref", m.class.cfg.Ref),
			attribute.String("nativebridge.method", m.name),
			attribute.String("nativebridge.mode", m.desc.Mode.String()),
		))
	log.Debugf("dispatch %s: %s.%s (%s, %s)", inv.id, m.class.cfg.Ref, m.name, m.desc.Mode, m.desc.Style)
	return inv, nil
}

// transform applies the descriptor's Transform. A panic in it becomes an
// error so that Call still rejects instead of unwinding the caller.
func (m *Method) transform(args []any) (native []any, err error) {
	if m.desc.Transform == nil {
		return args, nil
	}
	defer func() {
		if r := recover(); r != nil {
			native = nil
			err = fmt.Errorf("plugin: %s.%s: transform arguments: %v", m.class.cfg.Name, m.name, r)
		}
	}()
	native, err = m.desc.Transform(args)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s.%s: transform arguments: %w", m.class.cfg.Name, m.name, err)
	}
	return native, nil
}

// invocation is one in-flight native call.
type invocation struct {
	id      string
	method  *Method
	obj     bridge.Object
	args    []any
	started time.Time
	span    trace.Span

	mu        sync.Mutex
	err       error
	done      bool
	hasResult bool
	result    any
	released  bool
	cancelled bool
}

// invoke places the callbacks and calls the native method. Errors and
// panics from the native side come back as *NativeError.
func (inv *invocation) invoke(onSuccess, onError func(any)) (result any, err error) {
	native := placeCallbacks(inv.method.desc, slices.Clone(inv.args), onSuccess, onError)

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = inv.method.nativeError(r, true)
		}
	}()

	result, err = inv.obj.Invoke(inv.method.name, native)
	if err != nil {
		return nil, inv.method.nativeError(err, true)
	}
	return result, nil
}

// placeCallbacks builds the native argument list.
func placeCallbacks(d Descriptor, args []any, onSuccess, onError func(any)) []any {
	switch d.Style {
	case StyleSingle:
		return append(args, bridge.Callback(onSuccess))
	case StyleNode:
		return append(args, bridge.NodeCallback(func(err any, payload any) {
			if err != nil {
				onError(err)
				return
			}
			onSuccess(payload)
		}))
	}

	success := bridge.Callback(onSuccess)
	failure := bridge.Callback(onError)
	switch {
	case d.Positions != nil:
		args = insertAt(args, d.Positions.Success, success)
		return insertAt(args, d.Positions.Error, failure)
	case d.Order == OrderReverse:
		return append(args, failure, success)
	default:
		return append(args, success, failure)
	}
}

// insertAt inserts v at index i, appending when i is past the end.
func insertAt(args []any, i int, v any) []any {
	if i >= len(args) {
		return append(args, v)
	}
	return slices.Insert(args, i, v)
}

func (inv *invocation) fail(err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.err == nil {
		inv.err = err
	}
}

func (inv *invocation) failure() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.err
}

// finish ends the invocation: the promise settled or the stream is over.
func (inv *invocation) finish(err error) {
	inv.mu.Lock()
	if inv.done {
		inv.mu.Unlock()
		return
	}
	inv.done = true
	inv.mu.Unlock()

	if err != nil {
		inv.span.RecordError(err)
		inv.span.SetStatus(codes.Error, err.Error())
	}
	inv.span.End()
	log.Debugf("finished %s after %s", inv.id, time.Since(inv.started))
	inv.maybeRelease()
}

// returned records the native call's synchronous result.
func (inv *invocation) returned(result any) {
	inv.mu.Lock()
	inv.hasResult = true
	inv.result = result
	inv.mu.Unlock()
	inv.maybeRelease()
}

// maybeRelease hands the result back to the bridge once the call is both
// finished and returned.
func (inv *invocation) maybeRelease() {
	inv.mu.Lock()
	if !inv.done || !inv.hasResult || inv.released {
		inv.mu.Unlock()
		return
	}
	inv.released = true
	result := inv.result
	inv.mu.Unlock()

	r, ok := inv.obj.(bridge.Releaser)
	if !ok {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Warningf("release for %s panicked: %v", inv.id, p)
		}
	}()
	r.Release(result)
}

// cancel asks the native side to stop. Best effort: failures are logged.
func (inv *invocation) cancel(result any) {
	fn := inv.method.desc.CancelFunction
	if fn == "" {
		return
	}
	inv.mu.Lock()
	if inv.cancelled {
		inv.mu.Unlock()
		return
	}
	inv.cancelled = true
	inv.mu.Unlock()

	args := []any{result}
	if inv.method.desc.CancelWithArgs {
		args = slices.Clone(inv.args)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Warningf("%s.%s: cancel function %s panicked: %v", inv.method.class.cfg.Name, inv.method.name, fn, p)
		}
	}()
	res, err := inv.obj.Invoke(fn, args)
	if err != nil {
		log.Warningf("%s.%s: cancel function %s failed: %s", inv.method.class.cfg.Name, inv.method.name, fn, err)
		return
	}
	if r, ok := inv.obj.(bridge.Releaser); ok {
		r.Release(res)
	}
}
