package remote

import (
	"fmt"
	"strings"
)

// Policy controls which bridge refs a Server exposes. A ref matches an entry
// when it equals it or lies under it ("navigator" covers
// "navigator.compass"). A nil Allowed means "allow all".
type Policy struct {
	Allowed map[string]bool // nil = allow all
	Denied  map[string]bool
}

// NewPermissivePolicy creates a policy that allows all refs.
func NewPermissivePolicy() *Policy {
	return &Policy{}
}

// NewRestrictedPolicy creates a policy that only allows the specified refs
// and everything beneath them.
func NewRestrictedPolicy(allowed []string) *Policy {
	m := make(map[string]bool, len(allowed))
	for _, r := range allowed {
		m[r] = true
	}
	return &Policy{Allowed: m}
}

// Check returns an error if ref may not be resolved or invoked.
func (p *Policy) Check(ref string) error {
	if p == nil {
		return nil
	}
	if matches(p.Denied, ref) {
		return fmt.Errorf("remote: ref %q is explicitly denied", ref)
	}
	if p.Allowed != nil && !matches(p.Allowed, ref) {
		return fmt.Errorf("remote: ref %q is not allowed", ref)
	}
	return nil
}

// Deny adds a ref to the deny list.
func (p *Policy) Deny(ref string) {
	if p.Denied == nil {
		p.Denied = make(map[string]bool)
	}
	p.Denied[ref] = true
}

// matches reports whether ref or one of its dotted prefixes is in set.
func matches(set map[string]bool, ref string) bool {
	if len(set) == 0 {
		return false
	}
	for {
		if set[ref] {
			return true
		}
		i := strings.LastIndexByte(ref, '.')
		if i < 0 {
			return false
		}
		ref = ref[:i]
	}
}
