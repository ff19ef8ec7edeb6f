package transport

import (
	"fmt"
	"net"

	"github.com/notgne2/arc-rpc/channel"
	"github.com/notgne2/arc-rpc/loadbalance"
	"github.com/notgne2/arc-rpc/registry"
)

// Transport names carried in registry.EndpointInstance.Transport.
const (
	TransportTCP    = "tcp"
	TransportUnix   = "unix"
	TransportSecure = "secure"
)

// Listener accepts inbound connections and wraps each one as a message
// channel. One Listener per advertised address; the host attaches an
// rpc.Endpoint to every accepted channel.
type Listener struct {
	ln     net.Listener
	secure bool
}

// Listen opens a plain listener. network is "tcp" or "unix".
func Listen(network, address string) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// ListenLocal opens a local-machine listener on a Unix socket path.
func ListenLocal(path string) (*Listener, error) {
	return Listen("unix", path)
}

// ListenSecure opens a listener whose accepted connections perform the NaCl
// key exchange before any frame flows.
func ListenSecure(network, address string) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, secure: true}, nil
}

// Accept waits for the next connection and returns it as a message channel.
// For secure listeners the key exchange runs before Accept returns, so a
// handshake failure surfaces here rather than as a broken channel later.
func (l *Listener) Accept() (channel.MessageChannel, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	if l.secure {
		sc, err := NewSecureConn(conn)
		if err != nil {
			return nil, err
		}
		conn = sc
	}
	return NewStreamChannel(conn), nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting connections. Already-accepted channels are unaffected.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Dial opens a plain connection and returns it as a message channel.
func Dial(network, address string) (*StreamChannel, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	return NewStreamChannel(conn), nil
}

// DialLocal connects to a local-machine Unix socket.
func DialLocal(path string) (*StreamChannel, error) {
	return Dial("unix", path)
}

// DialSecure opens a connection and performs the NaCl key exchange before
// returning the channel.
func DialSecure(network, address string) (*StreamChannel, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	sc, err := NewSecureConn(conn)
	if err != nil {
		return nil, err
	}
	return NewStreamChannel(sc), nil
}

// DialEndpoint discovers the instances advertised under name, picks one with
// the balancer, and dials it with whatever transport the instance registered.
func DialEndpoint(reg registry.Registry, bal loadbalance.Balancer, name string) (channel.MessageChannel, error) {
	instances, err := reg.Discover(name)
	if err != nil {
		return nil, err
	}
	inst, err := bal.Pick(instances)
	if err != nil {
		return nil, err
	}

	switch inst.Transport {
	case "", TransportTCP:
		return Dial("tcp", inst.Addr)
	case TransportUnix:
		return DialLocal(inst.Addr)
	case TransportSecure:
		return DialSecure("tcp", inst.Addr)
	default:
		return nil, fmt.Errorf("transport: unknown transport %q for %s", inst.Transport, inst.Addr)
	}
}
