// Package transport provides the Message Channel bindings: plain TCP sockets,
// local Unix sockets, and NaCl-encrypted sockets. All three are the same
// StreamChannel over different net.Conn flavors — the RPC layer cannot tell
// them apart, which is the point.
//
//	goroutine-1 ──Send("arc:call-request", …)──┐
//	goroutine-2 ──Send("arc:user-event", …)────┼──→ single conn ──→ peer
//	readLoop:  ←── frame → Dispatch(event, body) — one reader, delivery order
package transport

import (
	"net"
	"sync"

	"github.com/notgne2/arc-rpc/channel"
	"github.com/notgne2/arc-rpc/protocol"
)

// Compile-time interface check.
var _ channel.MessageChannel = (*StreamChannel)(nil)

// StreamChannel implements channel.MessageChannel over any net.Conn using the
// protocol frame format. A single background goroutine reads frames and
// dispatches them in arrival order; writes are serialized by a mutex so
// concurrent senders cannot interleave frame bytes.
type StreamChannel struct {
	channel.Emitter

	conn      net.Conn
	writeMu   sync.Mutex // multiple goroutines share one conn — writes must not interleave
	closeOnce sync.Once
}

// NewStreamChannel wraps conn and starts the read loop. The caller hands the
// connection over entirely — reading or writing it directly afterwards
// corrupts the frame stream.
func NewStreamChannel(conn net.Conn) *StreamChannel {
	t := &StreamChannel{conn: conn}
	go t.readLoop()
	return t
}

// Send writes one event frame. The write lock makes the frame atomic on the
// wire; ordering between concurrent senders is whatever order they acquire
// the lock in.
func (t *StreamChannel) Send(event string, payload []byte) error {
	if t.Disconnected() {
		return channel.ErrClosed
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return protocol.Encode(t.conn, event, payload)
}

// readLoop runs in a dedicated goroutine, continuously reading frames and
// dispatching them. Any read or framing error ends the connection: frame
// boundaries cannot be recovered from a corrupt stream.
func (t *StreamChannel) readLoop() {
	for {
		event, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.conn.Close()
			t.FireDisconnect()
			return
		}
		t.Dispatch(event, body)
	}
}

// Close tears the connection down and fires the disconnect notification.
func (t *StreamChannel) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
		t.FireDisconnect()
	})
	return err
}

// Conn returns the underlying connection (for address introspection).
func (t *StreamChannel) Conn() net.Conn {
	return t.conn
}
