// Package loadbalance provides load-balancing strategies for picking a
// target address out of a directory.Directory's discovered instances,
// applied by a clientpool.DirectoryPool on every call that resolves a
// service name instead of a fixed host:port.
//
// Three strategies are implemented:
//   - RoundRobin:     stateless services, equal-capacity instances
//   - WeightedRandom: heterogeneous instances (different CPU/memory)
//   - ConsistentHash: stateful services requiring cache affinity
package loadbalance

import "github.com/orbitrpc/urpc/registry/directory"

// Balancer selects one instance from the available list. Implementations
// must be goroutine-safe; Pick is called on every outgoing call.
//
// key is an affinity hint: callers that want repeat calls to land on the
// same instance (session stickiness, cache affinity) pass a stable
// identifier such as a user or session id; callers that don't care pass
// an empty string. Every instance list handed to Pick comes straight
// from directory.Directory.Discover, so it can grow, shrink, or reorder
// between calls as instances register, deregister, or expire.
type Balancer interface {
	Pick(instances []directory.Instance, key string) (*directory.Instance, error)
	Name() string
}
