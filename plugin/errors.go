package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrBridgeUnavailable means the bridge object could not be resolved.
	ErrBridgeUnavailable = errors.New("bridge unavailable")
	// ErrNativeInvocation means the native side reported or raised an error.
	ErrNativeInvocation = errors.New("native invocation failed")
	// ErrMisconfigured means a method descriptor is malformed.
	ErrMisconfigured = errors.New("misconfigured descriptor")
	// ErrPlatformUnsupported means the host platform is outside the
	// plugin's declared platforms.
	ErrPlatformUnsupported = errors.New("platform not supported")
)

// Reasons reported by UnavailableError.
const (
	ReasonHostNotAvailable   = "host_not_available"
	ReasonPluginNotInstalled = "plugin_not_installed"
)

// UnavailableError identifies the bridge that could not be resolved.
type UnavailableError struct {
	Class  string
	Ref    string
	Method string
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s.%s: %s (%s): %s", e.Class, e.Method, ErrBridgeUnavailable, e.Ref, e.Reason)
}

// Is reports ErrBridgeUnavailable.
func (e *UnavailableError) Is(target error) bool { return target == ErrBridgeUnavailable }

// NativeError carries the payload of a native error callback, or the value a
// native call raised. The payload is not transformed.
type NativeError struct {
	Class   string
	Method  string
	Payload any
	// Thrown is true when the native call itself failed synchronously.
	Thrown bool
}

func (e *NativeError) Error() string {
	how := "error callback"
	if e.Thrown {
		how = "raised"
	}
	return fmt.Sprintf("%s.%s: %s (%s): %v", e.Class, e.Method, ErrNativeInvocation, how, e.Payload)
}

// Is reports ErrNativeInvocation.
func (e *NativeError) Is(target error) bool { return target == ErrNativeInvocation }

// Unwrap exposes the payload when it is itself an error.
func (e *NativeError) Unwrap() error {
	if err, ok := e.Payload.(error); ok {
		return err
	}
	return nil
}

// Payload extracts the native payload from an error returned by a wrapped
// method. ok is false when err is not a native error.
func Payload(err error) (payload any, ok bool) {
	var ne *NativeError
	if errors.As(err, &ne) {
		return ne.Payload, true
	}
	return nil, false
}

// DescriptorError explains why a descriptor was rejected.
type DescriptorError struct {
	Class  string
	Method string
	Reason string
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("%s.%s: %s: %s", e.Class, e.Method, ErrMisconfigured, e.Reason)
}

// Is reports ErrMisconfigured.
func (e *DescriptorError) Is(target error) bool { return target == ErrMisconfigured }

// PlatformError reports a call made on a platform the plugin does not support.
type PlatformError struct {
	Class     string
	Platform  string
	Supported []string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s: %q (supported: %v)", e.Class, ErrPlatformUnsupported, e.Platform, e.Supported)
}

// Is reports ErrPlatformUnsupported.
func (e *PlatformError) Is(target error) bool { return target == ErrPlatformUnsupported }
