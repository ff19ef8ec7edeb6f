package rpc

import (
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/notgne2/arc-rpc/message"
)

// callbackBridge maps callback identifiers to live local functions. One side:
// outbound function arguments are registered here under fresh ids and the peer
// ships invocations back against them. Other side: inbound CallbackInvoke
// messages look the id up and fire the original function.
//
// Registrations are endpoint-scoped: the peer may retain a received stub and
// invoke it long after the introducing call completed (subscription patterns
// depend on this). A registration is released when the channel disconnects, or
// early when the introducing call is cancelled before its response arrives.
type callbackBridge struct {
	ep  *Endpoint
	mu  sync.Mutex
	fns map[string]*callbackEntry
}

// callbackEntry serializes invocations of one registered function. Inbound
// invokes append to the backlog on the delivery goroutine, preserving arrival
// order; a single drain goroutine per entry runs them one at a time.
type callbackEntry struct {
	fn reflect.Value

	mu      sync.Mutex
	backlog [][]message.Argument
	running bool
}

func newCallbackBridge(ep *Endpoint) *callbackBridge {
	return &callbackBridge{ep: ep, fns: make(map[string]*callbackEntry)}
}

// register stores fn under a fresh identifier and returns it.
func (b *callbackBridge) register(fn reflect.Value) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.fns[id] = &callbackEntry{fn: fn}
	b.mu.Unlock()
	return id
}

// release drops the given registrations. Unknown ids are ignored.
func (b *callbackBridge) release(ids []string) {
	if len(ids) == 0 {
		return
	}
	b.mu.Lock()
	for _, id := range ids {
		delete(b.fns, id)
	}
	b.mu.Unlock()
}

// releaseAll drops every registration. Called on disconnect.
func (b *callbackBridge) releaseAll() {
	b.mu.Lock()
	b.fns = make(map[string]*callbackEntry)
	b.mu.Unlock()
}

func (b *callbackBridge) lookup(id string) (*callbackEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.fns[id]
	return entry, ok
}

// size reports the number of live registrations.
func (b *callbackBridge) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fns)
}

// handleCallbackInvoke queues one invocation of a registered local function.
// Queueing happens on the delivery goroutine so invocations of the same
// callback keep their arrival order; the drain goroutine runs them without
// blocking delivery. Unknown ids are dropped silently — the registration may
// have been released by cancellation or disconnect.
func (e *Endpoint) handleCallbackInvoke(payload []byte) {
	var inv message.CallbackInvoke
	if err := e.cdc.Unmarshal(payload, &inv); err != nil {
		e.logger.Debug().Err(err).Msg("malformed callback invoke")
		return
	}
	entry, ok := e.bridge.lookup(inv.CallbackID)
	if !ok {
		e.logger.Debug().Str("callbackId", inv.CallbackID).Msg("unknown callback id")
		return
	}

	entry.mu.Lock()
	entry.backlog = append(entry.backlog, inv.Args)
	start := !entry.running
	if start {
		entry.running = true
	}
	entry.mu.Unlock()

	if start {
		go e.drainCallbacks(inv.CallbackID, entry)
	}
}

// drainCallbacks runs one entry's queued invocations in order until the
// backlog is empty. Distinct callbacks still run concurrently with each other.
func (e *Endpoint) drainCallbacks(id string, entry *callbackEntry) {
	for {
		entry.mu.Lock()
		if len(entry.backlog) == 0 {
			entry.running = false
			entry.mu.Unlock()
			return
		}
		args := entry.backlog[0]
		entry.backlog = entry.backlog[1:]
		entry.mu.Unlock()

		e.invokeCallback(id, entry.fn, args)
	}
}

// invokeCallback fires one queued invocation. Callbacks are fire-and-forget: a
// panic or argument mismatch is logged and the queue moves on, and return
// values are discarded.
func (e *Endpoint) invokeCallback(id string, fn reflect.Value, args []message.Argument) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug().Interface("panic", r).Str("callbackId", id).Msg("callback panicked")
		}
	}()
	in, err := e.decodeArgs(fn.Type(), args)
	if err != nil {
		e.logger.Debug().Err(err).Str("callbackId", id).Msg("callback argument mismatch")
		return
	}
	fn.Call(in)
}
