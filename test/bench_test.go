package test

import (
	"context"
	"testing"
	"time"

	"github.com/notgne2/arc-rpc/codec"
	"github.com/notgne2/arc-rpc/loadbalance"
	"github.com/notgne2/arc-rpc/message"
	"github.com/notgne2/arc-rpc/registry"
	"github.com/notgne2/arc-rpc/rpc"
	"github.com/notgne2/arc-rpc/transport"
)

// ---- Mock registry (no etcd dependency) ----

type MockRegistry struct {
	instances map[string][]registry.EndpointInstance
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{instances: make(map[string][]registry.EndpointInstance)}
}

func (m *MockRegistry) Register(name string, inst registry.EndpointInstance, ttl int64) error {
	m.instances[name] = append(m.instances[name], inst)
	return nil
}

func (m *MockRegistry) Deregister(name string, addr string) error {
	insts := m.instances[name]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[name] = append(insts[:i], insts[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockRegistry) Discover(name string) ([]registry.EndpointInstance, error) {
	return m.instances[name], nil
}

func (m *MockRegistry) Watch(name string) <-chan []registry.EndpointInstance {
	return nil
}

// ---- Setup ----

func setupHostAndCaller(b *testing.B) *rpc.Endpoint {
	l, err := transport.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { l.Close() })

	go func() {
		for {
			ch, err := l.Accept()
			if err != nil {
				return
			}
			rpc.NewEndpoint(ch, rpc.WithChild(map[string]any{
				"add": func(a, x int) int { return a + x },
			}))
		}
	}()

	reg := NewMockRegistry()
	reg.Register("bench", registry.EndpointInstance{Addr: l.Addr().String()}, 10)

	ch, err := transport.DialEndpoint(reg, &loadbalance.RoundRobinBalancer{}, "bench")
	if err != nil {
		b.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	return rpc.NewEndpoint(ch)
}

// TestDialEndpoint covers name-based dialing without needing etcd: discover
// through a registry, pick with a balancer, call over the dialed channel.
func TestDialEndpoint(t *testing.T) {
	l, err := transport.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	go func() {
		ch, err := l.Accept()
		if err != nil {
			return
		}
		rpc.NewEndpoint(ch, rpc.WithChild(map[string]any{
			"ping": func() string { return "pong" },
		}))
	}()

	reg := NewMockRegistry()
	reg.Register("hub", registry.EndpointInstance{Addr: l.Addr().String(), Transport: "tcp"}, 10)

	ch, err := transport.DialEndpoint(reg, &loadbalance.RoundRobinBalancer{}, "hub")
	if err != nil {
		t.Fatal(err)
	}
	caller := rpc.NewEndpoint(ch)
	defer caller.Close()

	time.Sleep(50 * time.Millisecond)
	got, err := caller.Call(context.Background(), []string{"ping"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "pong" {
		t.Fatalf("ping = %v, want pong", got)
	}
}

func TestDialEndpointNoInstances(t *testing.T) {
	_, err := transport.DialEndpoint(NewMockRegistry(), &loadbalance.RoundRobinBalancer{}, "ghost")
	if err == nil {
		t.Fatal("expect error when nothing is registered")
	}
}

// ---- Benchmarks ----

func BenchmarkSerialCall(b *testing.B) {
	caller := setupHostAndCaller(b)
	b.Cleanup(func() { caller.Close() })

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := caller.Call(ctx, []string{"add"}, 1, 2); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConcurrentCall(b *testing.B) {
	caller := setupHostAndCaller(b)
	b.Cleanup(func() { caller.Close() })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := caller.Call(ctx, []string{"add"}, 1, 2); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkCodecJSON(b *testing.B) {
	cdc := codec.GetCodec(codec.CodecTypeJSON)
	req := &message.CallRequest{
		Path:       []string{"add"},
		ResponseID: "bench",
		Args:       []message.Argument{{Value: 1}, {Value: 2}},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := cdc.Marshal(req)
		var out message.CallRequest
		cdc.Unmarshal(data, &out)
	}
}

func BenchmarkCodecCBOR(b *testing.B) {
	cdc := codec.GetCodec(codec.CodecTypeCBOR)
	req := &message.CallRequest{
		Path:       []string{"add"},
		ResponseID: "bench",
		Args:       []message.Argument{{Value: 1}, {Value: 2}},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := cdc.Marshal(req)
		var out message.CallRequest
		cdc.Unmarshal(data, &out)
	}
}
