package loadbalance

import (
	"testing"

	"github.com/notgne2/arc-rpc/registry"
)

var testInstances = []registry.EndpointInstance{
	{Addr: ":8001", Transport: "tcp", Weight: 10, Version: "1.0"},
	{Addr: ":8002", Transport: "tcp", Weight: 5, Version: "1.0"},
	{Addr: ":8003", Transport: "tcp", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all instances
	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = inst.Addr
	}

	// Pick again, should wrap around to first
	inst, _ := b.Pick(testInstances)
	if inst.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], inst.Addr)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	_, err := b.Pick([]registry.EndpointInstance{})
	if err == nil {
		t.Fatal("expect error for empty instances")
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	instances := []registry.EndpointInstance{
		{Addr: ":9001"},
		{Addr: ":9002"},
	}

	// Unweighted instances fall back to uniform selection instead of failing.
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, err := b.Pick(instances)
		if err != nil {
			t.Fatal(err)
		}
		seen[inst.Addr] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expect both instances selected, got %v", seen)
	}
}

func TestWeightedRandomEmpty(t *testing.T) {
	b := &WeightedRandomBalancer{}
	_, err := b.Pick(nil)
	if err == nil {
		t.Fatal("expect error for empty instances")
	}
}
