package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/chazu/nativebridge/async"
	"github.com/chazu/nativebridge/bridge"
)

// Server exposes a bridge.Resolver over connect.
type Server struct {
	resolver bridge.Resolver
	policy   *Policy
	handles  *HandleStore
	mux      *http.ServeMux

	// closing ends open invocation streams; http.Server.Shutdown does not
	// cancel running handlers.
	closing     chan struct{}
	closeOnce   sync.Once
	stopSweeper func()
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	policy        *Policy
	sweepInterval time.Duration
	handleTTL     time.Duration
}

// WithPolicy sets the ref policy. If not set, a permissive policy (allow
// all) is used.
func WithPolicy(policy *Policy) ServerOption {
	return func(c *serverConfig) { c.policy = policy }
}

// WithHandleTTL sets how long an orphaned handle survives and how often the
// store is swept.
func WithHandleTTL(ttl, interval time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.handleTTL = ttl
		c.sweepInterval = interval
	}
}

// NewServer creates a Server resolving refs through r.
func NewServer(r bridge.Resolver, opts ...ServerOption) *Server {
	cfg := &serverConfig{
		policy:        NewPermissivePolicy(),
		sweepInterval: 5 * time.Minute,
		handleTTL:     30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		resolver: r,
		policy:   cfg.policy,
		handles:  NewHandleStore(),
		mux:      http.NewServeMux(),
		closing:  make(chan struct{}),
	}

	codecOpt := connect.WithCodec(codec{})
	s.mux.Handle(ResolveProcedure, connect.NewUnaryHandler(ResolveProcedure, s.resolve, codecOpt))
	s.mux.Handle(InvokeProcedure, connect.NewServerStreamHandler(InvokeProcedure, s.invoke, codecOpt))

	s.stopSweeper = s.handles.StartSweeper(cfg.sweepInterval, cfg.handleTTL)
	return s
}

// Handler returns the HTTP handler serving the host service.
func (s *Server) Handler() http.Handler { return s.mux }

// Handles returns the server's handle store.
func (s *Server) Handles() *HandleStore { return s.handles }

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s.mux}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()

	log.Noticef("native host listening on %s", l.Addr())
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.closeStreams()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop ends open invocation streams and stops the handle sweeper.
func (s *Server) Stop() {
	s.closeStreams()
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
}

func (s *Server) closeStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) platform() string {
	if p, ok := s.resolver.(bridge.Platformer); ok {
		return p.Platform()
	}
	return ""
}

// resolve implements HostService.Resolve. Refs hidden by the policy are
// reported as not found.
func (s *Server) resolve(
	ctx context.Context,
	req *connect.Request[ResolveRequest],
) (*connect.Response[ResolveResponse], error) {
	resp := &ResolveResponse{Platform: s.platform()}
	ref := req.Msg.Ref
	if ref == "" {
		return connect.NewResponse(resp), nil
	}
	if err := s.policy.Check(ref); err != nil {
		log.Infof("resolve %s: %s", ref, err)
		return connect.NewResponse(resp), nil
	}
	if obj, ok := s.resolver.Resolve(bridge.Ref(ref)); ok {
		resp.Found = true
		resp.Methods = bridge.Methods(obj)
	}
	return connect.NewResponse(resp), nil
}

// invoke implements HostService.Invoke. The stream carries every callback
// the native method fires, interleaved with its return, until the client
// goes away or the server stops.
func (s *Server) invoke(
	ctx context.Context,
	req *connect.Request[InvokeRequest],
	stream *connect.ServerStream[Event],
) error {
	msg := req.Msg
	if msg.Method == "" {
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("method is required"))
	}
	if err := s.policy.Check(msg.Ref); err != nil {
		return connect.NewError(connect.CodePermissionDenied, err)
	}
	obj, ok := s.resolver.Resolve(bridge.Ref(msg.Ref))
	if !ok {
		return connect.NewError(connect.CodeNotFound, fmt.Errorf("remote: %s is not registered", msg.Ref))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Native callbacks may fire from any goroutine; one loop is the only
	// sender so events keep native order.
	out := async.NewLoop()
	defer out.Stop()
	send := func(ev Event) {
		out.Post(func() {
			if ctx.Err() != nil {
				return
			}
			if err := stream.Send(&ev); err != nil {
				log.Warningf("invoke %s.%s: send %s event: %s", msg.Ref, msg.Method, ev.Kind, err)
				cancel()
			}
		})
	}

	owner := uuid.NewString()
	s.handles.Begin(owner)
	defer s.handles.ReleaseOwner(owner)

	args, err := s.decodeArgs(msg.Args, send)
	if err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}

	log.Debugf("invoke %s %s.%s with %d args", owner, msg.Ref, msg.Method, len(args))
	result, err := callNative(obj, msg.Method, args)
	if err != nil {
		send(Event{Kind: EventError, Message: err.Error()})
		if err := out.Do(func() {}); err != nil {
			return connect.NewError(connect.CodeInternal, err)
		}
		return nil
	}
	send(Event{Kind: EventReturn, Handle: s.handles.Create(result, msg.Ref, owner)})

	select {
	case <-ctx.Done():
	case <-s.closing:
		log.Debugf("invoke %s: host shutting down", owner)
	}
	return nil
}

// callNative invokes the method, converting a panic into an error.
func callNative(obj bridge.Object, method string, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%v", r)
		}
	}()
	return obj.Invoke(method, args)
}

// decodeArgs turns wire arguments into native ones. Callback slots report
// through send.
func (s *Server) decodeArgs(wire []Arg, send func(Event)) ([]any, error) {
	args := make([]any, len(wire))
	for i, a := range wire {
		switch a.Kind {
		case ArgValue, "":
			args[i] = a.Value
		case ArgCallback:
			slot := a.Slot
			args[i] = bridge.Callback(func(payload any) {
				send(Event{Kind: EventCallback, Slot: slot, Values: []any{wireValue(payload)}})
			})
		case ArgNodeCallback:
			slot := a.Slot
			args[i] = bridge.NodeCallback(func(err any, payload any) {
				send(Event{Kind: EventCallback, Slot: slot, Values: []any{wireValue(err), wireValue(payload)}})
			})
		case ArgHandle:
			v, ok := s.handles.Lookup(a.Handle)
			if !ok {
				return nil, fmt.Errorf("remote: unknown handle %q", a.Handle)
			}
			args[i] = v
		default:
			return nil, fmt.Errorf("remote: argument %d has unknown kind %q", i, a.Kind)
		}
	}
	return args, nil
}

// wireValue makes a payload encodable. Errors travel as their message.
func wireValue(v any) any {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}
