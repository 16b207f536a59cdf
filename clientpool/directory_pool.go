package clientpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/orbitrpc/urpc/client"
	"github.com/orbitrpc/urpc/loadbalance"
	"github.com/orbitrpc/urpc/registry/directory"
	"github.com/orbitrpc/urpc/transport"
)

// DirectoryPool resolves a service name against a directory.Directory,
// picks a live address with a loadbalance.Balancer, and maintains one
// clientpool.Pool per resolved address, lazily created on first use.
type DirectoryPool struct {
	dir      directory.Directory
	balancer loadbalance.Balancer
	factory  transport.StreamFactory
	base     client.Config
	maxPerAddr int

	mu    sync.Mutex
	pools map[string]*Pool
}

// NewDirectoryPool builds a DirectoryPool that resolves the service name
// given to each Call through dir, picks addresses via balancer, and dials
// new clients with base (Addr is overwritten per resolved address) and
// factory.
func NewDirectoryPool(dir directory.Directory, balancer loadbalance.Balancer, factory transport.StreamFactory, base client.Config, maxPerAddr int) *DirectoryPool {
	return &DirectoryPool{
		dir:        dir,
		balancer:   balancer,
		factory:    factory,
		base:       base,
		maxPerAddr: maxPerAddr,
		pools:      make(map[string]*Pool),
	}
}

// Call resolves serviceName, picks an instance, and issues the call
// against a pooled client for that instance's address. affinityKey is
// passed through to the balancer unchanged; balancers that don't use
// stickiness (round robin, weighted random) ignore it, so callers with
// no natural affinity key (a user id, a session id) can pass "".
func (d *DirectoryPool) Call(ctx context.Context, serviceName, affinityKey string, methodID uint64, body []byte) ([]byte, error) {
	instances, err := d.dir.Discover(serviceName)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("clientpool: no instances registered for %q", serviceName)
	}

	instance, err := d.balancer.Pick(instances, affinityKey)
	if err != nil {
		return nil, err
	}

	pool := d.poolFor(instance.Addr)
	return pool.Call(ctx, methodID, body)
}

func (d *DirectoryPool) poolFor(addr string) *Pool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pools[addr]; ok {
		return p
	}

	cfg := d.base
	cfg.Addr = addr
	cfg.Factory = d.factory
	p := New(Config{Config: cfg, MaxClients: d.maxPerAddr})
	d.pools[addr] = p
	return p
}

// Close shuts down every per-address pool the directory pool has created.
func (d *DirectoryPool) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, p := range d.pools {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
