package plugin

import (
	"fmt"
	"strings"
)

// CallbackStyle selects how native callbacks map onto resolve/reject.
type CallbackStyle int

const (
	// StylePair passes a success and an error callback.
	StylePair CallbackStyle = iota
	// StyleSingle passes one success callback; failures only surface as
	// synchronous native errors.
	StyleSingle
	// StyleNode passes one error-first callback.
	StyleNode
)

var styleNames = map[CallbackStyle]string{
	StylePair:   "pair",
	StyleSingle: "single",
	StyleNode:   "node",
}

func (s CallbackStyle) String() string {
	if n, ok := styleNames[s]; ok {
		return n
	}
	return fmt.Sprintf("CallbackStyle(%d)", int(s))
}

// UnmarshalText parses "pair", "single" or "node".
func (s *CallbackStyle) UnmarshalText(text []byte) error {
	v, err := ParseCallbackStyle(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseCallbackStyle parses a style name. The empty string means StylePair.
func ParseCallbackStyle(name string) (CallbackStyle, error) {
	switch strings.ToLower(name) {
	case "", "pair", "success-error-pair":
		return StylePair, nil
	case "single", "single-callback":
		return StyleSingle, nil
	case "node", "node-style":
		return StyleNode, nil
	}
	return 0, fmt.Errorf("plugin: unknown callback style %q", name)
}

// CallbackOrder selects where the success callback goes relative to the
// error callback.
type CallbackOrder int

const (
	// OrderForward appends [success, error].
	OrderForward CallbackOrder = iota
	// OrderReverse appends [error, success].
	OrderReverse
)

func (o CallbackOrder) String() string {
	switch o {
	case OrderForward:
		return "forward"
	case OrderReverse:
		return "reverse"
	}
	return fmt.Sprintf("CallbackOrder(%d)", int(o))
}

// UnmarshalText parses "forward" or "reverse".
func (o *CallbackOrder) UnmarshalText(text []byte) error {
	v, err := ParseCallbackOrder(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseCallbackOrder parses an order name. The empty string means OrderForward.
func ParseCallbackOrder(name string) (CallbackOrder, error) {
	switch strings.ToLower(name) {
	case "", "forward":
		return OrderForward, nil
	case "reverse":
		return OrderReverse, nil
	}
	return 0, fmt.Errorf("plugin: unknown callback order %q", name)
}

// ResultMode selects single-shot or repeating semantics.
type ResultMode int

const (
	// ModePromise settles once.
	ModePromise ResultMode = iota
	// ModeObservable emits on every success callback.
	ModeObservable
)

func (m ResultMode) String() string {
	switch m {
	case ModePromise:
		return "promise"
	case ModeObservable:
		return "observable"
	}
	return fmt.Sprintf("ResultMode(%d)", int(m))
}

// UnmarshalText parses "promise" or "observable".
func (m *ResultMode) UnmarshalText(text []byte) error {
	v, err := ParseResultMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseResultMode parses a mode name. The empty string means ModePromise.
func ParseResultMode(name string) (ResultMode, error) {
	switch strings.ToLower(name) {
	case "", "promise":
		return ModePromise, nil
	case "observable":
		return ModeObservable, nil
	}
	return 0, fmt.Errorf("plugin: unknown result mode %q", name)
}

// Positions places the success and error callbacks at explicit indexes of
// the native argument list. Success is inserted first, then error.
type Positions struct {
	Success int
	Error   int
}

// Descriptor configures how one wrapped method is dispatched. The zero
// value is a forward-ordered success/error pair settling a promise.
type Descriptor struct {
	Style CallbackStyle
	Order CallbackOrder
	Mode  ResultMode

	// CancelFunction is the native method called on unsubscribe.
	CancelFunction string
	// CancelWithArgs calls CancelFunction with the original arguments
	// instead of the native call's return value.
	CancelWithArgs bool

	Positions *Positions

	// Transform reshapes the caller's arguments into the native positional
	// arguments, before callbacks are placed.
	Transform func(args []any) ([]any, error)
}

// validate returns a non-empty reason if the descriptor is malformed.
func (d Descriptor) validate() string {
	if _, ok := styleNames[d.Style]; !ok {
		return fmt.Sprintf("unknown callback style %d", int(d.Style))
	}
	if d.Order != OrderForward && d.Order != OrderReverse {
		return fmt.Sprintf("unknown callback order %d", int(d.Order))
	}
	if d.Mode != ModePromise && d.Mode != ModeObservable {
		return fmt.Sprintf("unknown result mode %d", int(d.Mode))
	}
	if d.Style != StylePair && d.Order == OrderReverse {
		return fmt.Sprintf("callback order reverse needs two callbacks, style is %s", d.Style)
	}
	if d.Positions != nil {
		if d.Style != StylePair {
			return fmt.Sprintf("callback positions need two callbacks, style is %s", d.Style)
		}
		if d.Order == OrderReverse {
			return "callback positions and reverse order are mutually exclusive"
		}
		if d.Positions.Success < 0 || d.Positions.Error < 0 {
			return "callback positions must not be negative"
		}
	}
	if d.CancelFunction != "" && d.Mode != ModeObservable {
		return "cancel function is only meaningful for observable results"
	}
	if d.CancelWithArgs && d.CancelFunction == "" {
		return "cancel-with-args set without a cancel function"
	}
	return ""
}
