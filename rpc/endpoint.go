// Package rpc implements the transport-agnostic core of arc-rpc: correlation
// of asynchronous calls over a message channel, dispatch of inbound calls
// against a locally exposed object, bridging of function-valued arguments as
// callbacks, a lazily built mirror of the remote object, and optional
// continuous synchronization of the exposed object's property tree.
//
// An Endpoint is one side of a connection. It owns exactly one
// channel.MessageChannel and optionally exposes a local object (the "child")
// whose members the peer can invoke:
//
//	local ──Call(path, args)──→ channel ──→ remote dispatch → child member
//	      ←─── CallResponse ───         ←──
//
// Calls are asynchronous and may be outstanding concurrently; each is tracked
// by its own response id. The suspension point is "awaiting a CallResponse",
// during which all other inbound traffic keeps flowing.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/notgne2/arc-rpc/channel"
	"github.com/notgne2/arc-rpc/codec"
	"github.com/notgne2/arc-rpc/interceptor"
	"github.com/notgne2/arc-rpc/message"
)

// ErrDisconnected is delivered to every call still awaiting its response when
// the underlying channel disconnects.
var ErrDisconnected = errors.New("rpc: channel disconnected")

// RemoteError is a failure reported by the peer in an error CallResponse:
// either the call path did not resolve to an invocable member, or the resolved
// member failed. Type and Stack are best-effort detail from the remote side.
type RemoteError struct {
	Message string
	Type    string
	Stack   string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// callResult is what a pending call wakes up to: the matched response, or a
// local failure such as disconnect.
type callResult struct {
	resp *message.CallResponse
	err  error
}

// userListener is one OnEvent registration.
type userListener struct {
	id int
	h  func(args []any)
}

// Endpoint composes the call dispatcher, callback bridge, mirror, and state
// synchronizer around one message channel. Create one per connection with
// NewEndpoint; it is torn down when the channel closes.
type Endpoint struct {
	id     string
	ch     channel.MessageChannel
	cdc    codec.Codec
	child  any
	logger zerolog.Logger

	// handler is the interceptor chain wrapped around dispatch, built once at
	// construction (not per-request).
	handler interceptor.HandlerFunc

	// pending maps response id → chan callResult. Each outstanding call waits
	// on its own buffered channel; the delivery goroutine routes the matching
	// response by id (no cross-ordering between distinct calls).
	pending sync.Map

	bridge *callbackBridge

	// mirror is the current root view of the remote exposed object. Replaced
	// wholesale on every snapshot or property update; consumers must re-fetch
	// via Mirror() rather than caching stale roots.
	mirror atomic.Pointer[Mirror]

	// Exposer-side synchronizer state (syncTree is the last pushed data tree).
	syncOn   bool
	syncMu   sync.Mutex
	syncTree map[string]any

	// User event registrations, keyed by application event id.
	userMu     sync.Mutex
	userNextID int
	userEvents map[string][]userListener

	interceptors []interceptor.Interceptor
}

// Option configures an Endpoint at construction time.
type Option func(*Endpoint)

// WithChild exposes obj to the peer. Exported methods, exported func-valued
// struct fields, and func values inside string-keyed maps become remotely
// invocable; everything else is data. The endpoint does not take ownership —
// the hosting application may keep mutating obj.
func WithChild(obj any) Option {
	return func(e *Endpoint) { e.child = obj }
}

// WithSync activates the state synchronizer: a full snapshot of the child's
// data tree is pushed at construction, and subsequent Set calls push
// incremental property updates. The peer must already be attached to its end
// of the channel or the initial snapshot is lost (use PushSnapshot to
// re-announce).
func WithSync() Option {
	return func(e *Endpoint) { e.syncOn = true }
}

// WithCodec selects the payload serialization format. Both endpoints of a
// connection must agree. Default is JSON.
func WithCodec(c codec.Codec) Option {
	return func(e *Endpoint) { e.cdc = c }
}

// WithLogger attaches a logger. Default is a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Endpoint) { e.logger = l }
}

// WithInterceptors wraps the inbound call dispatcher with the given
// interceptors, outermost first.
func WithInterceptors(ics ...interceptor.Interceptor) Option {
	return func(e *Endpoint) { e.interceptors = append(e.interceptors, ics...) }
}

// NewEndpoint attaches a new endpoint to ch. The endpoint subscribes to all
// protocol events immediately; create it before the peer starts sending.
func NewEndpoint(ch channel.MessageChannel, opts ...Option) *Endpoint {
	e := &Endpoint{
		id:         uuid.NewString(),
		ch:         ch,
		cdc:        codec.GetCodec(codec.CodecTypeJSON),
		logger:     zerolog.Nop(),
		userEvents: make(map[string][]userListener),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.bridge = newCallbackBridge(e)
	e.handler = interceptor.Chain(e.interceptors...)(e.dispatch)
	e.mirror.Store(newMirror(e, nil, nil))

	ch.On(message.EventCallRequest, e.handleCallRequest)
	ch.On(message.EventCallResponse, e.handleCallResponse)
	ch.On(message.EventCallbackInvoke, e.handleCallbackInvoke)
	ch.On(message.EventSnapshot, e.handleSnapshot)
	ch.On(message.EventProperty, e.handleProperty)
	ch.On(message.EventUser, e.handleUserEvent)
	ch.OnDisconnect(e.onDisconnect)

	if e.syncOn && e.child != nil {
		if err := e.PushSnapshot(); err != nil {
			e.logger.Debug().Err(err).Msg("initial snapshot push failed")
		}
	}
	return e
}

// ID returns the endpoint's process-unique identifier.
func (e *Endpoint) ID() string {
	return e.id
}

// Call invokes the member at path on the peer's exposed object and waits for
// the single matching CallResponse. Function-valued arguments are shipped as
// callback references. Their registrations outlive the call: the peer may
// retain a received stub and invoke it at any later point, until the channel
// disconnects.
//
// There is no built-in timeout: an unanswered call waits until ctx is
// cancelled or the channel disconnects. Cancelling ctx releases the pending
// entry and the call's callback registrations (the request itself cannot be
// withdrawn once sent).
func (e *Endpoint) Call(ctx context.Context, path []string, args ...any) (any, error) {
	if len(path) == 0 {
		return nil, errors.New("rpc: empty call path")
	}

	wireArgs, cbIDs := e.encodeArgs(args)

	req := message.CallRequest{
		Path:       path,
		ParentPath: path[:len(path)-1],
		ResponseID: uuid.NewString(),
		Args:       wireArgs,
	}
	payload, err := e.cdc.Marshal(&req)
	if err != nil {
		e.bridge.release(cbIDs)
		return nil, fmt.Errorf("rpc: encoding call request: %w", err)
	}

	// Register the pending entry BEFORE sending (avoid racing the response).
	res := make(chan callResult, 1)
	e.pending.Store(req.ResponseID, res)

	if err := e.ch.Send(message.EventCallRequest, payload); err != nil {
		e.pending.Delete(req.ResponseID)
		e.bridge.release(cbIDs)
		return nil, fmt.Errorf("rpc: sending call request: %w", err)
	}

	select {
	case r := <-res:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp.IsError {
			return nil, remoteError(r.resp.Error)
		}
		return e.decodeResult(r.resp.Result), nil
	case <-ctx.Done():
		e.pending.Delete(req.ResponseID)
		e.bridge.release(cbIDs)
		return nil, ctx.Err()
	}
}

// Mirror returns the current root view of the remote exposed object. The root
// is replaced on every snapshot or property update — re-fetch it after
// observing an update instead of holding on to an old one.
func (e *Endpoint) Mirror() *Mirror {
	return e.mirror.Load()
}

// Emit broadcasts a user-defined named event to the peer. No response is
// expected.
func (e *Endpoint) Emit(eventID string, args ...any) error {
	if args == nil {
		args = []any{}
	}
	payload, err := e.cdc.Marshal(&message.UserEvent{EventID: eventID, Args: args})
	if err != nil {
		return fmt.Errorf("rpc: encoding user event: %w", err)
	}
	return e.ch.Send(message.EventUser, payload)
}

// OnEvent registers h for user events emitted by the peer under eventID.
// Handlers run on the channel's delivery goroutine: they must not block, and
// in particular must not issue a synchronous Call.
func (e *Endpoint) OnEvent(eventID string, h func(args []any)) (cancel func()) {
	e.userMu.Lock()
	defer e.userMu.Unlock()
	e.userNextID++
	id := e.userNextID
	e.userEvents[eventID] = append(e.userEvents[eventID], userListener{id: id, h: h})
	return func() {
		e.userMu.Lock()
		defer e.userMu.Unlock()
		entries := e.userEvents[eventID]
		for i, entry := range entries {
			if entry.id == id {
				e.userEvents[eventID] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Close releases the channel. Pending calls fail with ErrDisconnected.
func (e *Endpoint) Close() error {
	return e.ch.Close()
}

// handleCallResponse routes an inbound response to the pending call with the
// matching response id. Responses without a pending entry (already cancelled,
// or malformed) are dropped silently.
func (e *Endpoint) handleCallResponse(payload []byte) {
	var resp message.CallResponse
	if err := e.cdc.Unmarshal(payload, &resp); err != nil {
		e.logger.Debug().Err(err).Msg("malformed call response")
		return
	}
	if ch, ok := e.pending.LoadAndDelete(resp.ResponseID); ok {
		ch.(chan callResult) <- callResult{resp: &resp}
	}
}

// handleUserEvent fans one user event out to its registered handlers, in
// registration order.
func (e *Endpoint) handleUserEvent(payload []byte) {
	var evt message.UserEvent
	if err := e.cdc.Unmarshal(payload, &evt); err != nil {
		e.logger.Debug().Err(err).Msg("malformed user event")
		return
	}
	e.userMu.Lock()
	entries := make([]userListener, len(e.userEvents[evt.EventID]))
	copy(entries, e.userEvents[evt.EventID])
	e.userMu.Unlock()

	for _, entry := range entries {
		entry.h(evt.Args)
	}
}

// onDisconnect fails every pending call so no caller blocks forever on a
// connection that is gone, and drops all callback registrations — no further
// invocations can arrive for them.
func (e *Endpoint) onDisconnect() {
	e.pending.Range(func(key, _ any) bool {
		if ch, ok := e.pending.LoadAndDelete(key); ok {
			ch.(chan callResult) <- callResult{err: ErrDisconnected}
		}
		return true
	})
	e.bridge.releaseAll()
}

func remoteError(we *message.WireError) *RemoteError {
	if we == nil {
		return &RemoteError{Message: "unknown remote error"}
	}
	return &RemoteError{Message: we.Message, Type: we.Type, Stack: we.Stack}
}
