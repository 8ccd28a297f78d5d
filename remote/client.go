package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/nativebridge/bridge"
)

// ErrStreamEnded means the host closed an invocation before it returned.
var ErrStreamEnded = errors.New("remote: invocation stream ended before return")

// InvokeError is a native call that failed on the host.
type InvokeError struct {
	Ref     string
	Method  string
	Message string
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("remote: %s.%s: %s", e.Ref, e.Method, e.Message)
}

// Handle stands for a value a native call returned on the host. Passing it
// as an argument of a later call hands the host's value back. The handle
// stays valid until it is closed; closing also ends its invocation stream.
type Handle struct {
	ID string

	once   sync.Once
	cancel context.CancelFunc
}

// Close releases the handle on the host. It is idempotent.
func (h *Handle) Close() {
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
}

func (h *Handle) String() string { return h.ID }

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithResolveTimeout bounds each Resolve round trip.
func WithResolveTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithConnectOptions passes extra options to the underlying connect clients.
func WithConnectOptions(opts ...connect.ClientOption) ClientOption {
	return func(c *Client) { c.connectOpts = append(c.connectOpts, opts...) }
}

// Client is a bridge.Resolver backed by a remote host. Register it with
// bridge.Register to make wrapped methods dispatch over the network.
type Client struct {
	resolveRPC  *connect.Client[ResolveRequest, ResolveResponse]
	invokeRPC   *connect.Client[InvokeRequest, Event]
	timeout     time.Duration
	connectOpts []connect.ClientOption

	mu       sync.Mutex
	objects  map[bridge.Ref]*Object
	platform string
	reached  bool
}

// NewClient creates a client for the host at baseURL
// (e.g. "http://127.0.0.1:7420").
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		timeout: 5 * time.Second,
		objects: make(map[bridge.Ref]*Object),
	}
	for _, opt := range opts {
		opt(c)
	}
	baseURL = strings.TrimRight(baseURL, "/")
	copts := append([]connect.ClientOption{connect.WithCodec(codec{})}, c.connectOpts...)
	c.resolveRPC = connect.NewClient[ResolveRequest, ResolveResponse](httpClient, baseURL+ResolveProcedure, copts...)
	c.invokeRPC = connect.NewClient[InvokeRequest, Event](httpClient, baseURL+InvokeProcedure, copts...)
	return c
}

func (c *Client) lookup(ref string) (*ResolveResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	resp, err := c.resolveRPC.CallUnary(ctx, connect.NewRequest(&ResolveRequest{Ref: ref}))
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.platform = resp.Msg.Platform
	c.reached = true
	c.mu.Unlock()
	return resp.Msg, nil
}

// Resolve implements bridge.Resolver. Found refs are cached; misses are
// asked again next time.
func (c *Client) Resolve(ref bridge.Ref) (bridge.Object, bool) {
	c.mu.Lock()
	obj, ok := c.objects[ref]
	c.mu.Unlock()
	if ok {
		return obj, true
	}

	resp, err := c.lookup(string(ref))
	if err != nil {
		log.Warningf("resolve %s: %s", ref, err)
		return nil, false
	}
	if !resp.Found {
		return nil, false
	}

	obj = &Object{client: c, ref: string(ref), methods: resp.Methods}
	c.mu.Lock()
	if cached, ok := c.objects[ref]; ok {
		obj = cached
	} else {
		c.objects[ref] = obj
	}
	c.mu.Unlock()
	return obj, true
}

// Available reports whether the host answered at least once.
func (c *Client) Available() bool {
	c.mu.Lock()
	reached := c.reached
	c.mu.Unlock()
	if reached {
		return true
	}
	if _, err := c.lookup(""); err != nil {
		log.Debugf("host unreachable: %s", err)
		return false
	}
	return true
}

// Platform returns the host platform, or "" if the host was never reached.
func (c *Client) Platform() string {
	if !c.Available() {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.platform
}

// Object is a remote bridge object.
type Object struct {
	client  *Client
	ref     string
	methods []string
}

// Names returns the methods the host reported for the object.
func (o *Object) Names() []string {
	return append([]string(nil), o.methods...)
}

// Invoke implements bridge.Object. It blocks until the host reports the
// native call returned; callbacks fired before that run before Invoke
// returns, later ones on a background goroutine. A successful call returns
// a *Handle that must be released with Release or Close.
func (o *Object) Invoke(method string, args []any) (any, error) {
	wire, slots := encodeArgs(args)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := o.client.invokeRPC.CallServerStream(ctx, connect.NewRequest(&InvokeRequest{
		Ref:    o.ref,
		Method: method,
		Args:   wire,
	}))
	if err != nil {
		cancel()
		return nil, err
	}

	for stream.Receive() {
		ev := stream.Msg()
		switch ev.Kind {
		case EventCallback:
			slots.fire(ev)
		case EventError:
			cancel()
			stream.Close()
			return nil, &InvokeError{Ref: o.ref, Method: method, Message: ev.Message}
		case EventReturn:
			h := &Handle{ID: ev.Handle, cancel: cancel}
			go o.pump(stream, slots, h)
			return h, nil
		}
	}

	err = stream.Err()
	cancel()
	stream.Close()
	if err == nil {
		err = ErrStreamEnded
	}
	return nil, err
}

// pump delivers callbacks until the stream ends.
func (o *Object) pump(stream *connect.ServerStreamForClient[Event], slots callbackSlots, h *Handle) {
	defer stream.Close()
	defer h.Close()
	for stream.Receive() {
		if ev := stream.Msg(); ev.Kind == EventCallback {
			slots.fire(ev)
		}
	}
	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) && connect.CodeOf(err) != connect.CodeCanceled {
		log.Warningf("invoke %s: stream %s: %s", o.ref, h.ID, err)
	}
}

// Release implements bridge.Releaser.
func (o *Object) Release(result any) {
	if h, ok := result.(*Handle); ok {
		h.Close()
	}
}

// callbackSlots maps wire slots to local callbacks.
type callbackSlots map[int]any

func (s callbackSlots) fire(ev *Event) {
	value := func(i int) any {
		if i < len(ev.Values) {
			return ev.Values[i]
		}
		return nil
	}
	switch cb := s[ev.Slot].(type) {
	case bridge.Callback:
		cb(value(0))
	case bridge.NodeCallback:
		cb(value(0), value(1))
	default:
		log.Warningf("callback event for unknown slot %d", ev.Slot)
	}
}

// encodeArgs converts native arguments for the wire. Callbacks become slots
// numbered by their argument index.
func encodeArgs(args []any) ([]Arg, callbackSlots) {
	wire := make([]Arg, len(args))
	slots := make(callbackSlots)
	for i, a := range args {
		switch v := a.(type) {
		case bridge.Callback:
			wire[i] = Arg{Kind: ArgCallback, Slot: i}
			slots[i] = v
		case bridge.NodeCallback:
			wire[i] = Arg{Kind: ArgNodeCallback, Slot: i}
			slots[i] = v
		case *Handle:
			wire[i] = Arg{Kind: ArgHandle, Handle: v.ID}
		default:
			wire[i] = Arg{Kind: ArgValue, Value: a}
		}
	}
	return wire, slots
}
