package remote

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// handle is a host-side reference to a native return value.
type handle struct {
	id       string
	value    any
	ref      string
	owner    string
	created  time.Time
	lastUsed time.Time
}

// HandleStore maps opaque string IDs to the values native calls returned,
// so clients can pass them back (e.g. a watch id to clearWatch). Each
// handle belongs to the invocation stream that created it.
type HandleStore struct {
	mu      sync.RWMutex
	handles map[string]*handle
	active  map[string]bool
	nextID  atomic.Uint64
}

// NewHandleStore creates a new handle store.
func NewHandleStore() *HandleStore {
	return &HandleStore{
		handles: make(map[string]*handle),
		active:  make(map[string]bool),
	}
}

// Begin marks owner as live; its handles are exempt from sweeping until
// ReleaseOwner.
func (s *HandleStore) Begin(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[owner] = true
}

// Create registers a value and returns an opaque handle ID.
func (s *HandleStore) Create(value any, ref, owner string) string {
	id := fmt.Sprintf("h-%d", s.nextID.Add(1))

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.handles[id] = &handle{
		id:       id,
		value:    value,
		ref:      ref,
		owner:    owner,
		created:  now,
		lastUsed: now,
	}
	return id
}

// Lookup retrieves the value for a handle. Returns the value and true,
// or nil and false if the handle doesn't exist.
func (s *HandleStore) Lookup(id string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return nil, false
	}
	h.lastUsed = time.Now()
	return h.value, true
}

// Release removes a handle.
func (s *HandleStore) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, id)
}

// ReleaseOwner releases all handles created by owner and forgets it.
func (s *HandleStore) ReleaseOwner(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, owner)
	removed := 0
	for id, h := range s.handles {
		if h.owner == owner {
			delete(s.handles, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live handles.
func (s *HandleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Sweep removes handles that haven't been accessed within the TTL and whose
// owner is no longer live.
func (s *HandleStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, h := range s.handles {
		if s.active[h.owner] {
			continue
		}
		if h.lastUsed.Before(cutoff) {
			delete(s.handles, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *HandleStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(ttl); n > 0 {
					log.Debugf("swept %d idle handles", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
