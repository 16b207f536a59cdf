package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/orbitrpc/urpc/registry/directory"
)

// ConsistentHashBalancer maps an affinity key to the same instance across
// calls, as long as the ring's membership doesn't change, giving cache
// affinity to stateful services.
//
// Unlike RoundRobinBalancer and WeightedRandomBalancer, it requires a
// non-empty key: there's no meaningful "consistent hash of nothing".
//
// The ring is rebuilt from scratch on every Pick rather than maintained
// incrementally via an Add method, because instances come from
// directory.Directory.Discover and can appear, disappear, or have their
// address reused between calls; a long-lived ring would drift out of
// sync with the directory's actual membership. Each real instance gets
// replicas virtual nodes, scaled by its Weight so higher-capacity
// instances claim proportionally more of the ring.
type ConsistentHashBalancer struct {
	replicas int
}

// NewConsistentHashBalancer creates a balancer using 100 virtual nodes
// per unit of instance weight.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: 100}
}

type ringNode struct {
	hash uint32
	inst *directory.Instance
}

// buildRing hashes replicas*weight virtual nodes per instance onto the
// ring and returns it sorted by hash for binary search in Pick.
func (b *ConsistentHashBalancer) buildRing(instances []directory.Instance) []ringNode {
	ring := make([]ringNode, 0, len(instances)*b.replicas)
	for i := range instances {
		weight := instances[i].Weight
		if weight <= 0 {
			weight = 1
		}
		for v := 0; v < b.replicas*weight; v++ {
			key := fmt.Sprintf("%s#%d", instances[i].Addr, v)
			hash := crc32.ChecksumIEEE([]byte(key))
			ring = append(ring, ringNode{hash: hash, inst: &instances[i]})
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i].hash < ring[j].hash })
	return ring
}

// Pick hashes key onto a freshly built ring and returns the instance
// owning the first node clockwise from that hash, wrapping around to the
// first node on the ring if key hashes past the last one.
func (b *ConsistentHashBalancer) Pick(instances []directory.Instance, key string) (*directory.Instance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances available")
	}
	if key == "" {
		return nil, fmt.Errorf("loadbalance: consistent hash requires a non-empty affinity key")
	}

	ring := b.buildRing(instances)
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(ring), func(i int) bool { return ring[i].hash >= hash })
	if idx == len(ring) {
		idx = 0
	}
	return ring[idx].inst, nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
