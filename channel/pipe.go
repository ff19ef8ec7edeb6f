package channel

import "sync"

// pipeFrame is one in-flight event inside a Pipe.
type pipeFrame struct {
	event   string
	payload []byte
}

// PipeChannel is one end of an in-memory connected channel pair. It delivers
// events to the other end in send order through a single delivery goroutine,
// matching the ordering guarantees of the socket transports. Used by tests and
// by same-process endpoint pairs.
type PipeChannel struct {
	Emitter

	peer      *PipeChannel
	inbox     chan pipeFrame
	done      chan struct{}
	closeOnce sync.Once
}

// Pipe creates a connected channel pair. Events sent on one end are delivered
// on the other. Closing either end disconnects both.
func Pipe() (*PipeChannel, *PipeChannel) {
	a := &PipeChannel{inbox: make(chan pipeFrame, 64), done: make(chan struct{})}
	b := &PipeChannel{inbox: make(chan pipeFrame, 64), done: make(chan struct{})}
	a.peer = b
	b.peer = a
	go a.deliverLoop()
	go b.deliverLoop()
	return a, b
}

// Send queues one event for delivery on the peer end. Blocks only when the
// peer's inbox is full (the pipe applies no flow control beyond its buffer).
func (c *PipeChannel) Send(event string, payload []byte) error {
	// Copy the payload so the sender may reuse its buffer.
	body := make([]byte, len(payload))
	copy(body, payload)

	select {
	case <-c.done:
		return ErrClosed
	case <-c.peer.done:
		return ErrClosed
	case c.peer.inbox <- pipeFrame{event: event, payload: body}:
		return nil
	}
}

// deliverLoop is the single delivery goroutine for this end. Sequential
// delivery is what gives the pipe its per-connection ordering guarantee.
func (c *PipeChannel) deliverLoop() {
	for {
		select {
		case frame := <-c.inbox:
			c.Dispatch(frame.event, frame.payload)
		case <-c.done:
			// Drain nothing further: a closed pipe drops queued frames, the
			// same way a closed socket loses in-flight data.
			c.FireDisconnect()
			return
		}
	}
}

// Close tears down both ends of the pipe and fires disconnect on each.
func (c *PipeChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.peer.closeOnce.Do(func() {
			close(c.peer.done)
		})
	})
	return nil
}
