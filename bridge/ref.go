package bridge

import (
	"fmt"
	"strings"
)

// Ref is a dotted path naming a native object, e.g. "navigator.compass".
type Ref string

// Segments splits the ref on dots. It does not validate.
func (r Ref) Segments() []string {
	if r == "" {
		return nil
	}
	return strings.Split(string(r), ".")
}

// String returns the path.
func (r Ref) String() string { return string(r) }

// Valid reports whether every segment is a non-empty identifier.
func (r Ref) Valid() bool {
	return r.validate() == nil
}

func (r Ref) validate() error {
	segs := r.Segments()
	if len(segs) == 0 {
		return fmt.Errorf("bridge: empty ref")
	}
	for _, seg := range segs {
		if !isIdent(seg) {
			return fmt.Errorf("bridge: invalid ref %q: bad segment %q", string(r), seg)
		}
	}
	return nil
}

// ParseRef validates s and returns it as a Ref.
func ParseRef(s string) (Ref, error) {
	r := Ref(s)
	if err := r.validate(); err != nil {
		return "", err
	}
	return r, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || c == '$':
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
