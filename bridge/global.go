package bridge

import (
	"errors"
	"sync"
)

// ErrNoHost is returned by Safe when no host has registered a resolver.
var ErrNoHost = errors.New("bridge: no native host registered")

// ============================================================================
// Process-wide host registration
// ============================================================================

var (
	globalHost Resolver
	globalMu   sync.RWMutex
)

// Register installs the process-wide resolver. The native host calls this
// once at startup; a later call replaces the previous host.
func Register(r Resolver) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalHost = r
}

// Unregister removes the process-wide resolver.
func Unregister() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalHost = nil
}

// Safe returns the registered resolver or ErrNoHost.
func Safe() (Resolver, error) {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalHost == nil {
		return nil, ErrNoHost
	}
	return globalHost, nil
}

// Default returns a Resolver that forwards to whatever host is registered
// at call time. With no host it resolves nothing and reports unavailable.
func Default() Resolver {
	return globalResolver{}
}

type globalResolver struct{}

func (globalResolver) Resolve(ref Ref) (Object, bool) {
	r, err := Safe()
	if err != nil {
		return nil, false
	}
	return r.Resolve(ref)
}

func (globalResolver) Available() bool {
	r, err := Safe()
	if err != nil {
		return false
	}
	if a, ok := r.(Availabler); ok {
		return a.Available()
	}
	return true
}

func (globalResolver) Platform() string {
	r, err := Safe()
	if err != nil {
		return ""
	}
	if p, ok := r.(Platformer); ok {
		return p.Platform()
	}
	return ""
}
