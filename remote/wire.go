// Package remote runs bridge objects in another process.
//
// A Server exposes a bridge.Resolver as the connect service
// nativebridge.v1.HostService. A Client implements bridge.Resolver on top of
// it, so wrapped methods dispatch to a native host over HTTP exactly as they
// would to an in-process one. Messages are CBOR encoded.
package remote

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("nativebridge.remote")

// Procedure paths of nativebridge.v1.HostService.
const (
	ServiceName      = "nativebridge.v1.HostService"
	ResolveProcedure = "/" + ServiceName + "/Resolve"
	InvokeProcedure  = "/" + ServiceName + "/Invoke"
	codecName        = "cbor"
)

// ArgKind says how an invocation argument is materialised on the host.
type ArgKind string

const (
	// ArgValue is a plain value.
	ArgValue ArgKind = "value"
	// ArgCallback becomes a bridge.Callback that reports back on Slot.
	ArgCallback ArgKind = "callback"
	// ArgNodeCallback becomes a bridge.NodeCallback that reports back on Slot.
	ArgNodeCallback ArgKind = "node-callback"
	// ArgHandle is replaced by the value a previous invocation returned.
	ArgHandle ArgKind = "handle"
)

// Arg is one positional argument of an invocation.
type Arg struct {
	Kind   ArgKind `cbor:"kind"`
	Value  any     `cbor:"value"`
	Slot   int     `cbor:"slot,omitempty"`
	Handle string  `cbor:"handle,omitempty"`
}

// ResolveRequest asks whether a ref is registered. An empty ref only
// reports the host platform.
type ResolveRequest struct {
	Ref string `cbor:"ref"`
}

// ResolveResponse answers a ResolveRequest.
type ResolveResponse struct {
	Found    bool     `cbor:"found"`
	Platform string   `cbor:"platform,omitempty"`
	Methods  []string `cbor:"methods,omitempty"`
}

// InvokeRequest calls one native method.
type InvokeRequest struct {
	Ref    string `cbor:"ref"`
	Method string `cbor:"method"`
	Args   []Arg  `cbor:"args"`
}

// EventKind discriminates invocation stream events.
type EventKind string

const (
	// EventCallback reports a native callback firing.
	EventCallback EventKind = "callback"
	// EventReturn reports the native call returning; Handle names its result.
	EventReturn EventKind = "return"
	// EventError reports the native call failing synchronously. It is the
	// last event of the stream.
	EventError EventKind = "error"
)

// Event is one message of an invocation stream, in native order.
type Event struct {
	Kind    EventKind `cbor:"kind"`
	Slot    int       `cbor:"slot,omitempty"`
	Values  []any     `cbor:"values"`
	Handle  string    `cbor:"handle,omitempty"`
	Message string    `cbor:"message,omitempty"`
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("remote: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("remote: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// codec is the connect codec carrying the messages above.
type codec struct{}

func (codec) Name() string { return codecName }

func (codec) Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

func (codec) Unmarshal(data []byte, v any) error {
	if err := cborDecMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("remote: unmarshal %T: %w", v, err)
	}
	return nil
}
