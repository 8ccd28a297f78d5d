// Package plugin turns declarative wrapper definitions into callable methods.
//
// A wrapper is a Class (bridge reference plus metadata) and a set of Methods
// built from Descriptors. Calling a Method resolves the native bridge object
// at that moment, invokes the named native method with callbacks placed as
// the descriptor says, and hands the caller a promise or a stream.
package plugin

import (
	"slices"

	"github.com/tliron/commonlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/chazu/nativebridge/async"
	"github.com/chazu/nativebridge/bridge"
)

const tracerName = "github.com/chazu/nativebridge/plugin"

var log = commonlog.GetLogger("nativebridge.plugin")

// Config is the class-level configuration attached by Annotate.
type Config struct {
	// Name is the wrapper's display name, e.g. "DeviceOrientation".
	Name string
	// Ref is the dotted path of the bridge object, e.g. "navigator.compass".
	Ref string
	// Repo is the native plugin's repository URL. Documentation only.
	Repo string
	// Platforms restricts the host platforms the plugin supports. Empty
	// means any.
	Platforms []string
}

// Option configures a Class.
type Option func(*Class)

// WithResolver sets the resolver used to find the bridge object. The
// default forwards to the process-wide host (bridge.Default).
func WithResolver(r bridge.Resolver) Option {
	return func(c *Class) { c.resolver = r }
}

// WithExecutor sets the executor consumer callbacks run on. The default is
// async.Inline.
func WithExecutor(e async.Executor) Option {
	return func(c *Class) { c.exec = e }
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Class) { c.tracer = t }
}

// Class is an annotated wrapper class. It holds only static configuration;
// nothing native is touched until a method is called.
type Class struct {
	cfg      Config
	resolver bridge.Resolver
	exec     async.Executor
	tracer   trace.Tracer
}

// Annotate attaches cfg to a new wrapper class. It never fails: an empty or
// malformed ref simply never resolves, which surfaces at call time.
func Annotate(cfg Config, opts ...Option) *Class {
	cfg.Platforms = slices.Clone(cfg.Platforms)
	if cfg.Name == "" {
		cfg.Name = cfg.Ref
	}
	c := &Class{
		cfg:      cfg,
		resolver: bridge.Default(),
		exec:     async.Inline,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.exec == nil {
		c.exec = async.Inline
	}
	return c
}

// Config returns a copy of the class configuration.
func (c *Class) Config() Config {
	cfg := c.cfg
	cfg.Platforms = slices.Clone(c.cfg.Platforms)
	return cfg
}

// Name returns the class name.
func (c *Class) Name() string { return c.cfg.Name }

// Ref returns the bridge reference.
func (c *Class) Ref() bridge.Ref { return bridge.Ref(c.cfg.Ref) }

// Installed reports whether the bridge object currently resolves.
func (c *Class) Installed() bool {
	if c.resolver == nil {
		return false
	}
	_, ok := c.resolver.Resolve(c.Ref())
	return ok
}

// Wrap builds the dispatcher for the native method name. Malformed
// descriptors are rejected here rather than at call time.
func (c *Class) Wrap(name string, d Descriptor) (*Method, error) {
	if name == "" {
		return nil, &DescriptorError{Class: c.cfg.Name, Method: name, Reason: "empty method name"}
	}
	if reason := d.validate(); reason != "" {
		return nil, &DescriptorError{Class: c.cfg.Name, Method: name, Reason: reason}
	}
	return &Method{class: c, name: name, desc: d}, nil
}

// MustWrap is Wrap for package-level wrapper definitions; it panics on a
// malformed descriptor.
func (c *Class) MustWrap(name string, d Descriptor) *Method {
	m, err := c.Wrap(name, d)
	if err != nil {
		panic(err)
	}
	return m
}

// platformError checks the class's platform restriction against the host.
func (c *Class) platformError() error {
	if len(c.cfg.Platforms) == 0 {
		return nil
	}
	p, ok := c.resolver.(bridge.Platformer)
	if !ok {
		return nil
	}
	platform := p.Platform()
	if platform == "" || slices.Contains(c.cfg.Platforms, platform) {
		return nil
	}
	return &PlatformError{Class: c.cfg.Name, Platform: platform, Supported: slices.Clone(c.cfg.Platforms)}
}

// resolve finds the bridge object or explains why it is missing.
func (c *Class) resolve(method string) (bridge.Object, error) {
	unavailable := func(reason string) error {
		return &UnavailableError{Class: c.cfg.Name, Ref: c.cfg.Ref, Method: method, Reason: reason}
	}
	if c.resolver == nil {
		return nil, unavailable(ReasonHostNotAvailable)
	}
	if a, ok := c.resolver.(bridge.Availabler); ok && !a.Available() {
		log.Warningf("Native: tried calling %s.%s, but no native host is available", c.cfg.Name, method)
		return nil, unavailable(ReasonHostNotAvailable)
	}
	obj, ok := c.resolver.Resolve(c.Ref())
	if !ok {
		if c.cfg.Repo != "" {
			log.Warningf("Native: tried calling %s.%s, but the %s plugin is not installed. Install it from %s", c.cfg.Name, method, c.cfg.Ref, c.cfg.Repo)
		} else {
			log.Warningf("Native: tried calling %s.%s, but the %s plugin is not installed", c.cfg.Name, method, c.cfg.Ref)
		}
		return nil, unavailable(ReasonPluginNotInstalled)
	}
	return obj, nil
}
