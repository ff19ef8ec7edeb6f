package channel

import "sync"

// listenerEntry pairs a handler with its one-shot flag. Entries keep their
// registration order so multi-listener dispatch is deterministic.
type listenerEntry struct {
	id   int
	h    Handler
	once bool
}

// Emitter implements the listener bookkeeping shared by every channel
// implementation: multi-listener and one-shot event subscriptions plus the
// at-most-once disconnect fan-out. Transports embed it and call Dispatch from
// their single delivery goroutine and FireDisconnect when the connection dies.
type Emitter struct {
	mu           sync.Mutex
	nextID       int
	listeners    map[string][]listenerEntry
	disconnect   []func()
	disconnected bool
}

// On registers h for every delivery of event. The returned function cancels
// the registration; calling it more than once is harmless.
func (e *Emitter) On(event string, h Handler) (cancel func()) {
	return e.subscribe(event, h, false)
}

// Once registers h for only the next delivery of event.
func (e *Emitter) Once(event string, h Handler) (cancel func()) {
	return e.subscribe(event, h, true)
}

func (e *Emitter) subscribe(event string, h Handler, once bool) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]listenerEntry)
	}
	e.nextID++
	id := e.nextID
	e.listeners[event] = append(e.listeners[event], listenerEntry{id: id, h: h, once: once})
	return func() { e.remove(event, id) }
}

func (e *Emitter) remove(event string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.listeners[event]
	for i, entry := range entries {
		if entry.id == id {
			e.listeners[event] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// OnDisconnect registers f to run when FireDisconnect is called. Registration
// after the disconnect already fired is a no-op — the notification is
// at-most-once per connection.
func (e *Emitter) OnDisconnect(f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disconnected {
		return
	}
	e.disconnect = append(e.disconnect, f)
}

// Dispatch delivers payload to every handler registered for event, in
// registration order. One-shot handlers are removed before they run, so a
// handler re-registering itself from inside Dispatch is safe.
func (e *Emitter) Dispatch(event string, payload []byte) {
	e.mu.Lock()
	entries := e.listeners[event]
	// Snapshot the handler list and strip one-shot entries under the lock;
	// handlers themselves run outside it so they can re-subscribe.
	toRun := make([]Handler, 0, len(entries))
	kept := entries[:0:0]
	for _, entry := range entries {
		toRun = append(toRun, entry.h)
		if !entry.once {
			kept = append(kept, entry)
		}
	}
	if e.listeners != nil {
		e.listeners[event] = kept
	}
	e.mu.Unlock()

	for _, h := range toRun {
		h(payload)
	}
}

// FireDisconnect runs all disconnect handlers exactly once. Later calls are
// no-ops.
func (e *Emitter) FireDisconnect() {
	e.mu.Lock()
	if e.disconnected {
		e.mu.Unlock()
		return
	}
	e.disconnected = true
	handlers := e.disconnect
	e.disconnect = nil
	e.mu.Unlock()

	for _, f := range handlers {
		f()
	}
}

// Disconnected reports whether FireDisconnect has run.
func (e *Emitter) Disconnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disconnected
}
