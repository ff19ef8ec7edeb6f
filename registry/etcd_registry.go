// Package registry's etcd implementation stores advertised endpoints as
// leased keys:
//
//	Key:   /arc-rpc/{name}/{addr}
//	Value: JSON-encoded EndpointInstance
//
// Registration uses TTL-based leases: if the host crashes, the lease expires
// and the entry is automatically removed — preventing "ghost" instances.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/arc-rpc/"

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register adds an endpoint instance under a TTL lease and starts KeepAlive
// to renew it in the background.
//
// Note: leaseID stays a local variable, NOT a struct field. Multiple hosts
// may share one EtcdRegistry instance, and a shared field would be a data
// race between their KeepAlive sessions.
func (r *EtcdRegistry) Register(name string, instance EndpointInstance, ttl int64) error {
	ctx := context.TODO()

	// TTL-based lease — if KeepAlive stops, the entry auto-expires
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyPrefix+name+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes an endpoint instance. Called during graceful shutdown
// before closing the listener.
func (r *EtcdRegistry) Deregister(name string, addr string) error {
	ctx := context.TODO()
	_, err := r.client.Delete(ctx, keyPrefix+name+"/"+addr)
	if err != nil {
		return err
	}
	return nil
}

// Watch monitors a name prefix in etcd and emits updated instance lists
// whenever changes occur (new registrations, deregistrations, lease
// expirations). Uses etcd's Watch API (server-push) rather than polling.
func (r *EtcdRegistry) Watch(name string) <-chan []EndpointInstance {
	ctx := context.TODO()
	ch := make(chan []EndpointInstance, 1)
	prefix := keyPrefix + name + "/"

	go func() {
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// On any change, re-fetch the full instance list
			// (simpler than parsing individual watch events)
			instances, _ := r.Discover(name)
			ch <- instances
		}
	}()

	return ch
}

// Discover returns all currently registered instances for a name.
func (r *EtcdRegistry) Discover(name string) ([]EndpointInstance, error) {
	ctx := context.TODO()
	prefix := keyPrefix + name + "/"

	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]EndpointInstance, 0)
	for _, kv := range resp.Kvs {
		var instance EndpointInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // Skip malformed entries
		}
		instances = append(instances, instance)
	}

	return instances, nil
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
