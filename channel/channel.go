// Package channel defines the Message Channel contract that every transport
// binding satisfies, plus the shared listener bookkeeping and an in-memory
// implementation for tests.
//
// A Message Channel delivers named events carrying opaque payloads, in order,
// reliably, in both directions, and fires a disconnect notification at most
// once per connection. The RPC layer is built entirely against this contract —
// it never sees sockets, encryption, or framing.
package channel

import "errors"

// ErrClosed is returned by Send after the channel has disconnected.
var ErrClosed = errors.New("channel closed")

// Handler receives one event payload. Handlers run on the channel's single
// delivery goroutine, in delivery order — a handler that blocks stalls all
// further delivery on this channel.
type Handler func(payload []byte)

// MessageChannel is the transport contract (ordered, reliable, bidirectional
// delivery of named events). Implementations: Pipe (in-memory),
// transport.StreamChannel (TCP / Unix socket / encrypted socket).
type MessageChannel interface {
	// Send transmits one event, fire-and-forget. Delivery order matches send
	// order within a connection.
	Send(event string, payload []byte) error

	// On registers a handler for every future delivery of event. The returned
	// function cancels the registration.
	On(event string, h Handler) (cancel func())

	// Once registers a handler for only the next delivery of event.
	Once(event string, h Handler) (cancel func())

	// OnDisconnect registers f to run when the connection is lost or closed.
	// Fires at most once per connection.
	OnDisconnect(f func())

	// Close tears the channel down and fires the disconnect notification.
	Close() error
}
