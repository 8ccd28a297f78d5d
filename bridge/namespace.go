package bridge

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Resolver finds the native object for a ref. Resolution happens at call
// time; a false result means the object is not (or no longer) available.
type Resolver interface {
	Resolve(ref Ref) (Object, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ref Ref) (Object, bool)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ref Ref) (Object, bool) { return f(ref) }

// Platformer is implemented by resolvers that know which platform the host
// runs on ("android", "ios", ...).
type Platformer interface {
	Platform() string
}

// Availabler is implemented by resolvers that can be present but have no
// host behind them (an unregistered global, an unreachable remote host).
type Availabler interface {
	Available() bool
}

type node struct {
	obj      Object
	children map[string]*node
}

// Namespace is an in-process Resolver: a tree of objects keyed by dotted path.
// Objects may be nested, so "navigator" and "navigator.compass" can coexist.
type Namespace struct {
	mu       sync.RWMutex
	root     *node
	platform string
}

// NewNamespace creates an empty namespace reporting the given platform.
func NewNamespace(platform string) *Namespace {
	return &Namespace{
		root:     &node{children: make(map[string]*node)},
		platform: platform,
	}
}

// Platform implements Platformer.
func (ns *Namespace) Platform() string { return ns.platform }

// Register binds obj at ref.
func (ns *Namespace) Register(ref Ref, obj Object) error {
	if err := ref.validate(); err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("bridge: nil object for %s", ref)
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	n := ns.root
	for _, seg := range ref.Segments() {
		child, ok := n.children[seg]
		if !ok {
			child = &node{children: make(map[string]*node)}
			n.children[seg] = child
		}
		n = child
	}
	n.obj = obj
	return nil
}

// MustRegister is Register for static host setup.
func (ns *Namespace) MustRegister(ref Ref, obj Object) {
	if err := ns.Register(ref, obj); err != nil {
		panic(err)
	}
}

// Unregister removes the object at ref. Nested objects stay registered.
func (ns *Namespace) Unregister(ref Ref) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if n := ns.lookup(ref); n != nil {
		n.obj = nil
	}
}

// Resolve implements Resolver.
func (ns *Namespace) Resolve(ref Ref) (Object, bool) {
	if !ref.Valid() {
		return nil, false
	}
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	n := ns.lookup(ref)
	if n == nil || n.obj == nil {
		return nil, false
	}
	return n.obj, true
}

func (ns *Namespace) lookup(ref Ref) *node {
	n := ns.root
	for _, seg := range ref.Segments() {
		n = n.children[seg]
		if n == nil {
			return nil
		}
	}
	return n
}

// Refs returns every registered ref in sorted order.
func (ns *Namespace) Refs() []Ref {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	var refs []Ref
	var walk func(prefix []string, n *node)
	walk = func(prefix []string, n *node) {
		if n.obj != nil {
			refs = append(refs, Ref(strings.Join(prefix, ".")))
		}
		for seg, child := range n.children {
			walk(append(append([]string(nil), prefix...), seg), child)
		}
	}
	walk(nil, ns.root)
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}
