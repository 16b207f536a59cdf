package loadbalance

import (
	"fmt"
	"math/rand"

	"github.com/orbitrpc/urpc/registry/directory"
)

// WeightedRandomBalancer picks an instance with probability proportional
// to its registered Weight, favoring higher-capacity instances without
// the strict ordering a round robin would impose.
type WeightedRandomBalancer struct{}

// Pick ignores key: weighted random has no stickiness concept, same as
// RoundRobinBalancer.
//
// directory.Register lets a caller omit Weight entirely, so an instance
// list resolved from a live directory can easily sum to zero (every
// registrant left Weight at its zero value). rand.Intn(0) would panic in
// that case, so a zero total falls back to a uniform pick instead of
// treating it as an error.
func (b *WeightedRandomBalancer) Pick(instances []directory.Instance, key string) (*directory.Instance, error) {
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
