package loadbalance

import (
	"fmt"
	"sync/atomic"

	"github.com/orbitrpc/urpc/registry/directory"
)

// RoundRobinBalancer distributes calls evenly across the discovered
// instances in the order Discover returned them. It ignores the
// affinity key entirely: round robin has no notion of stickiness, and a
// caller that wants stickiness should use ConsistentHashBalancer instead.
//
// Best for stateless services where every instance has similar capacity.
// Because the instance list can change shape between calls, the counter
// only guarantees even distribution over a stable list; a resize just
// means the modulo wraps against the new length on the next Pick.
type RoundRobinBalancer struct {
	counter int64
}

// Pick selects the next instance in round-robin order.
func (b *RoundRobinBalancer) Pick(instances []directory.Instance, key string) (*directory.Instance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
