// Package registry lets hosts advertise their exposed endpoints and lets
// dialers discover them by name.
package registry

// EndpointInstance is one advertised host for a named endpoint.
type EndpointInstance struct {
	Addr      string
	Transport string // "tcp", "unix", or "secure" (empty means "tcp")
	Weight    int    // Weight for load balancing
	Version   string
}

type Registry interface {
	Register(name string, instance EndpointInstance, ttl int64) error
	Deregister(name string, addr string) error
	Discover(name string) ([]EndpointInstance, error)
	Watch(name string) <-chan []EndpointInstance
}
