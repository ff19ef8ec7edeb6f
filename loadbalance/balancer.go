// Package loadbalance provides selection strategies for choosing among
// multiple advertised hosts of the same endpoint name.
//
// Two strategies are implemented:
//   - RoundRobin:      Equal-capacity hosts
//   - WeightedRandom:  Heterogeneous hosts (different CPU/memory)
package loadbalance

import "github.com/notgne2/arc-rpc/registry"

// Balancer is the interface for selection strategies.
// DialEndpoint calls Pick() once per dial to select a target host.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Must be goroutine-safe.
	Pick(instances []registry.EndpointInstance) (*registry.EndpointInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
