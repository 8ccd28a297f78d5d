package bridge

import (
	"errors"
	"reflect"
	"testing"
)

func echoTable() *MethodTable {
	mt := NewMethodTable()
	mt.Add("echo", func(args []any) (any, error) {
		CallbackAt(args, 1)(args[0])
		return "echo-handle", nil
	}, 2)
	return mt
}

func TestMethodTable_Invoke(t *testing.T) {
	mt := echoTable()

	var got any
	result, err := mt.Invoke("echo", []any{"hi", Callback(func(p any) { got = p })})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result != "echo-handle" {
		t.Errorf("Expected echo-handle, got %v", result)
	}
	if got != "hi" {
		t.Errorf("Expected callback payload hi, got %v", got)
	}
}

func TestMethodTable_UnknownMethod(t *testing.T) {
	mt := echoTable()
	_, err := mt.Invoke("nope", nil)
	if !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("Expected ErrMethodNotFound, got %v", err)
	}
}

func TestMethodTable_TooFewArgs(t *testing.T) {
	mt := echoTable()
	if _, err := mt.Invoke("echo", []any{"only"}); err == nil {
		t.Fatal("Expected arity error")
	}
}

func TestCallbackAt_NotACallback(t *testing.T) {
	// Must not panic.
	CallbackAt([]any{42}, 0)("x")
	CallbackAt(nil, 3)("x")
	NodeCallbackAt([]any{"s"}, 0)(nil, "x")
}

func TestParseRef(t *testing.T) {
	valid := []string{"sms", "navigator.compass", "cordova.plugins.$x", "_a.b2"}
	for _, s := range valid {
		if _, err := ParseRef(s); err != nil {
			t.Errorf("ParseRef(%q) unexpected error: %v", s, err)
		}
	}
	invalid := []string{"", ".", "a..b", "navigator.", "1abc", "a.b-c"}
	for _, s := range invalid {
		if _, err := ParseRef(s); err == nil {
			t.Errorf("ParseRef(%q) expected error", s)
		}
	}
}

func TestNamespace_ResolveNested(t *testing.T) {
	ns := NewNamespace("android")
	nav := NewMethodTable()
	compass := NewMethodTable()
	ns.MustRegister("navigator", nav)
	ns.MustRegister("navigator.compass", compass)

	obj, ok := ns.Resolve("navigator.compass")
	if !ok || obj != compass {
		t.Fatalf("Expected compass object, got %v %v", obj, ok)
	}
	obj, ok = ns.Resolve("navigator")
	if !ok || obj != nav {
		t.Fatalf("Expected navigator object, got %v %v", obj, ok)
	}
	if _, ok := ns.Resolve("navigator.geolocation"); ok {
		t.Error("Unregistered ref should not resolve")
	}
	if _, ok := ns.Resolve("not a ref"); ok {
		t.Error("Invalid ref should not resolve")
	}
	if ns.Platform() != "android" {
		t.Errorf("Expected platform android, got %q", ns.Platform())
	}
}

func TestNamespace_IntermediateNodeDoesNotResolve(t *testing.T) {
	ns := NewNamespace("")
	ns.MustRegister("cordova.plugins.sms", NewMethodTable())
	if _, ok := ns.Resolve("cordova.plugins"); ok {
		t.Error("Path prefix without an object should not resolve")
	}
}

func TestNamespace_Unregister(t *testing.T) {
	ns := NewNamespace("")
	ns.MustRegister("a", NewMethodTable())
	ns.MustRegister("a.b", NewMethodTable())
	ns.Unregister("a")

	if _, ok := ns.Resolve("a"); ok {
		t.Error("a should be gone")
	}
	if _, ok := ns.Resolve("a.b"); !ok {
		t.Error("a.b should survive unregistering a")
	}
}

func TestNamespace_Refs(t *testing.T) {
	ns := NewNamespace("")
	ns.MustRegister("sms", NewMethodTable())
	ns.MustRegister("navigator.compass", NewMethodTable())
	ns.MustRegister("appAvailability", NewMethodTable())

	want := []Ref{"appAvailability", "navigator.compass", "sms"}
	if got := ns.Refs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNamespace_RegisterRejectsBadInput(t *testing.T) {
	ns := NewNamespace("")
	if err := ns.Register("bad..ref", NewMethodTable()); err == nil {
		t.Error("Expected error for invalid ref")
	}
	if err := ns.Register("ok", nil); err == nil {
		t.Error("Expected error for nil object")
	}
}

func TestGlobal_NoHost(t *testing.T) {
	Unregister()
	defer Unregister()

	if _, err := Safe(); !errors.Is(err, ErrNoHost) {
		t.Fatalf("Expected ErrNoHost, got %v", err)
	}
	r := Default()
	if _, ok := r.Resolve("sms"); ok {
		t.Error("Nothing should resolve without a host")
	}
	if r.(Availabler).Available() {
		t.Error("Default resolver should be unavailable without a host")
	}
}

func TestGlobal_RegisteredHost(t *testing.T) {
	ns := NewNamespace("ios")
	sms := NewMethodTable()
	ns.MustRegister("sms", sms)

	Register(ns)
	defer Unregister()

	r := Default()
	obj, ok := r.Resolve("sms")
	if !ok || obj != sms {
		t.Fatalf("Expected sms object via global host")
	}
	if !r.(Availabler).Available() {
		t.Error("Default resolver should be available")
	}
	if p := r.(Platformer).Platform(); p != "ios" {
		t.Errorf("Expected platform ios, got %q", p)
	}
}

func TestMethods(t *testing.T) {
	mt := NewMethodTable()
	mt.Add("b", nil, 0)
	mt.Add("a", nil, 0)
	if got := Methods(mt); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Expected [a b], got %v", got)
	}
	if got := Methods(ResolverObject{}); got != nil {
		t.Errorf("Expected nil for non-enumerable object, got %v", got)
	}
}

// ResolverObject is an Object that cannot list its methods.
type ResolverObject struct{}

func (ResolverObject) Invoke(string, []any) (any, error) { return nil, nil }
