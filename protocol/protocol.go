// Package protocol implements the binary frame format used by the stream
// transports.
//
// A frame carries one named event plus its opaque payload. It solves TCP's
// sticky packet problem with a fixed-size 10-byte header followed by two
// variable-length fields. The receiver reads the header first to learn both
// lengths, then reads exactly that many bytes.
//
// Frame format:
//
//	0      3  4       6         10
//	┌──────┬──┬────────┬─────────┬───────────────┬───────────────┐
//	│magic │v │evtLen  │ bodyLen │  event name   │     body      │
//	│ arc  │01│ uint16 │ uint32  │ evtLen bytes  │ bodyLen bytes │
//	└──────┴──┴────────┴─────────┴───────────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "arc". Used to quickly identify whether incoming data is
// a valid arc-rpc frame, rejecting non-protocol connections (e.g., HTTP
// clients hitting the wrong port).
const (
	MagicByte1 byte = 0x61 // 'a'
	MagicByte2 byte = 0x72 // 'r'
	MagicByte3 byte = 0x63 // 'c'
	Version    byte = 0x01
	HeaderSize int  = 10 // 3 (magic) + 1 (version) + 2 (evtLen) + 4 (bodyLen)
)

// MaxBodyLen caps a single frame body at 64 MiB. A length beyond this is a
// corrupt or hostile stream, not a real message — fail the connection before
// allocating the buffer.
const MaxBodyLen = 64 << 20

// Encode writes a complete frame (header + event name + body) to w.
// The caller must hold a write lock if multiple goroutines share the same
// writer, otherwise frames from different events will interleave and corrupt
// the stream.
func Encode(w io.Writer, event string, body []byte) error {
	if len(event) > 0xFFFF {
		return fmt.Errorf("event name too long: %d bytes", len(event))
	}
	if len(body) > MaxBodyLen {
		return fmt.Errorf("frame body too large: %d bytes", len(body))
	}

	buf := make([]byte, HeaderSize+len(event))

	// Magic number: 3 bytes — protocol identification
	copy(buf[0:3], []byte{MagicByte1, MagicByte2, MagicByte3})
	// Version: 1 byte — for future protocol upgrades
	buf[3] = Version
	// Event name length: 2 bytes, big-endian (network byte order)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(event)))
	// Body length: 4 bytes, big-endian
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(body)))
	// Event name bytes follow the header in the same write
	copy(buf[HeaderSize:], event)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	// Body (may be empty)
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// Decode reads a complete frame from r and returns the event name and body.
// It validates the magic number, version, and body length. Uses io.ReadFull
// to guarantee exactly N bytes are read, preventing partial reads.
func Decode(r io.Reader) (string, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return "", nil, err
	}

	// Validate magic number — reject non-protocol connections
	if headerBuf[0] != MagicByte1 || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return "", nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}

	// Validate version
	if headerBuf[3] != Version {
		return "", nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	evtLen := binary.BigEndian.Uint16(headerBuf[4:6])
	bodyLen := binary.BigEndian.Uint32(headerBuf[6:10])
	if bodyLen > MaxBodyLen {
		return "", nil, fmt.Errorf("frame body too large: %d bytes", bodyLen)
	}

	// Read exactly evtLen + bodyLen bytes — this is how we solve TCP sticky packet
	eventBuf := make([]byte, evtLen)
	if _, err := io.ReadFull(r, eventBuf); err != nil {
		return "", nil, err
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", nil, err
	}

	return string(eventBuf), body, nil
}
