package manifest

import (
	"fmt"
	"sort"

	"github.com/chazu/nativebridge/plugin"
)

// Set is the wrapper classes built from a manifest.
type Set struct {
	classes map[string]*plugin.Class
	methods map[string]*plugin.Method
}

// Build annotates a class per plugin entry and wraps its methods. opts are
// applied to every class. Malformed method entries fail the whole build.
func (m *Manifest) Build(opts ...plugin.Option) (*Set, error) {
	s := &Set{
		classes: make(map[string]*plugin.Class),
		methods: make(map[string]*plugin.Method),
	}
	for _, p := range m.Plugins {
		cls := plugin.Annotate(plugin.Config{
			Name:      p.Name,
			Ref:       p.Ref,
			Repo:      p.Repo,
			Platforms: p.Platforms,
		}, opts...)
		if _, dup := s.classes[cls.Name()]; dup {
			return nil, fmt.Errorf("duplicate plugin %q", cls.Name())
		}
		s.classes[cls.Name()] = cls

		for _, pm := range p.Methods {
			d, err := pm.Descriptor()
			if err != nil {
				return nil, fmt.Errorf("plugin %s: method %s: %w", cls.Name(), pm.Name, err)
			}
			wrapped, err := cls.Wrap(pm.Name, d)
			if err != nil {
				return nil, err
			}
			key := cls.Name() + "." + pm.Name
			if _, dup := s.methods[key]; dup {
				return nil, fmt.Errorf("duplicate method %q", key)
			}
			s.methods[key] = wrapped
		}
	}
	return s, nil
}

// Descriptor converts the entry into a dispatch descriptor.
func (pm Method) Descriptor() (plugin.Descriptor, error) {
	var d plugin.Descriptor
	var err error
	if d.Style, err = plugin.ParseCallbackStyle(pm.Style); err != nil {
		return d, err
	}
	if d.Order, err = plugin.ParseCallbackOrder(pm.Order); err != nil {
		return d, err
	}
	if d.Mode, err = plugin.ParseResultMode(pm.Mode); err != nil {
		return d, err
	}
	d.CancelFunction = pm.Cancel
	d.CancelWithArgs = pm.CancelWithArgs

	switch {
	case pm.SuccessIndex != nil && pm.ErrorIndex != nil:
		d.Positions = &plugin.Positions{Success: *pm.SuccessIndex, Error: *pm.ErrorIndex}
	case pm.SuccessIndex != nil || pm.ErrorIndex != nil:
		return d, fmt.Errorf("success-index and error-index must be set together")
	}
	return d, nil
}

// Class returns the named class, or nil.
func (s *Set) Class(name string) *plugin.Class {
	return s.classes[name]
}

// Method looks up "Class.method".
func (s *Set) Method(qualified string) (*plugin.Method, bool) {
	m, ok := s.methods[qualified]
	return m, ok
}

// Classes returns the sorted class names.
func (s *Set) Classes() []string {
	names := make([]string, 0, len(s.classes))
	for name := range s.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Methods returns the sorted "Class.method" names.
func (s *Set) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
