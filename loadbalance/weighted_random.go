package loadbalance

import (
	"fmt"
	"math/rand"

	"github.com/notgne2/arc-rpc/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to
// its Weight. Instances that report no weight fall back to uniform selection.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.EndpointInstance) (*registry.EndpointInstance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances available")
	}

	totalWeight := 0
	for _, v := range instances {
		totalWeight += v.Weight
	}
	if totalWeight <= 0 {
		return &instances[rand.Intn(len(instances))], nil
	}

	r := rand.Intn(totalWeight)
	for i := range instances {
		r -= instances[i].Weight
		if r < 0 {
			return &instances[i], nil
		}
	}

	return nil, fmt.Errorf("unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
