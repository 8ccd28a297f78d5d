// Package bridge describes the native side of nativebridge: named objects
// exposing callable methods, and the resolvers that find them by dotted path.
package bridge

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrMethodNotFound is returned when an object has no method by the given name.
var ErrMethodNotFound = errors.New("bridge: method not found")

// Callback is a native-facing function the bridge calls with one payload.
type Callback func(payload any)

// NodeCallback is an error-first callback. A nil err means success.
type NodeCallback func(err any, payload any)

// Object is a native bridge object. Callbacks are passed positionally inside
// args and may be called any number of times, from any goroutine, during or
// after Invoke. The return value is the method's synchronous result (for
// example a watch id) and is handed back to cancel functions.
type Object interface {
	Invoke(method string, args []any) (any, error)
}

// Releaser is implemented by objects holding per-call resources. The
// adapter calls Release with the synchronous result once a call is finished.
type Releaser interface {
	Release(result any)
}

// MethodFunc is the signature for native method implementations
type MethodFunc func(args []any) (any, error)

// MethodEntry describes a single method
type MethodEntry struct {
	Name    string
	Impl    MethodFunc
	NumArgs int // minimum number of args, callbacks included
}

// MethodTable is an Object backed by a map of Go functions.
type MethodTable struct {
	mu      sync.RWMutex
	methods map[string]*MethodEntry
}

// NewMethodTable creates an empty method table
func NewMethodTable() *MethodTable {
	return &MethodTable{
		methods: make(map[string]*MethodEntry),
	}
}

// Add registers a method, replacing any method with the same name.
func (mt *MethodTable) Add(name string, impl MethodFunc, numArgs int) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.methods[name] = &MethodEntry{
		Name:    name,
		Impl:    impl,
		NumArgs: numArgs,
	}
}

// Lookup finds a method
func (mt *MethodTable) Lookup(name string) *MethodEntry {
	if mt == nil {
		return nil
	}
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.methods[name]
}

// Names returns the sorted method names.
func (mt *MethodTable) Names() []string {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	names := make([]string, 0, len(mt.methods))
	for name := range mt.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke implements Object.
func (mt *MethodTable) Invoke(method string, args []any) (any, error) {
	entry := mt.Lookup(method)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}
	if len(args) < entry.NumArgs {
		return nil, fmt.Errorf("bridge: %s expects at least %d arguments, got %d", method, entry.NumArgs, len(args))
	}
	return entry.Impl(args)
}

// CallbackAt returns args[i] as a Callback, or a no-op if it is not one.
// Native implementations use it to pick their success/error callbacks.
func CallbackAt(args []any, i int) Callback {
	if i >= 0 && i < len(args) {
		if cb, ok := args[i].(Callback); ok && cb != nil {
			return cb
		}
	}
	return func(any) {}
}

// NodeCallbackAt is CallbackAt for error-first callbacks.
func NodeCallbackAt(args []any, i int) NodeCallback {
	if i >= 0 && i < len(args) {
		if cb, ok := args[i].(NodeCallback); ok && cb != nil {
			return cb
		}
	}
	return func(any, any) {}
}

// Methods lists method names for objects that can enumerate them.
func Methods(obj Object) []string {
	if l, ok := obj.(interface{ Names() []string }); ok {
		return l.Names()
	}
	return nil
}
