// Package clientpool implements the bounded client pool from §4.10: a
// grow-only set of client connections to one fixed address, leased out in
// round-robin order once the pool reaches its cap.
package clientpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/orbitrpc/urpc/client"
)

// Lease references a pooled client. It is not an owner: the pool must
// outlive any outstanding lease (§4.10's "pool lifetime must exceed any
// outstanding lease").
type Lease struct {
	Client *client.Client
}

// Config is the pool config record from §4.11.
type Config struct {
	client.Config
	MaxClients int
}

// Pool holds a grow-only slice of clients plus an atomic size and a
// round-robin counter, all dialing the same address (§4.10).
type Pool struct {
	cfg Config

	mu      sync.Mutex
	clients []*client.Client

	size         atomic.Int64
	roundRobin   atomic.Int64
}

// New returns an empty pool. No clients are created until the first
// Acquire.
func New(cfg Config) *Pool {
	return &Pool{cfg: cfg}
}

// Acquire implements try_acquire (§4.10): grow the pool if under cap,
// otherwise hand back an existing client chosen round-robin.
func (p *Pool) Acquire() Lease {
	for {
		current := p.size.Load()
		if int(current) < p.cfg.MaxClients {
			if p.size.CompareAndSwap(current, current+1) {
				c := client.New(p.cfg.Config)
				p.mu.Lock()
				p.clients = append(p.clients, c)
				p.mu.Unlock()
				return Lease{Client: c}
			}
			continue
		}
		break
	}

	p.mu.Lock()
	n := len(p.clients)
	p.mu.Unlock()
	if n == 0 {
		// MaxClients is 0 or CAS never won a slot; fall back to a single
		// lazily created client rather than panicking on an empty pool.
		p.mu.Lock()
		if len(p.clients) == 0 {
			p.clients = append(p.clients, client.New(p.cfg.Config))
			p.size.Store(1)
		}
		c := p.clients[0]
		p.mu.Unlock()
		return Lease{Client: c}
	}

	idx := int(p.roundRobin.Add(1)-1) % n
	p.mu.Lock()
	c := p.clients[idx]
	p.mu.Unlock()
	return Lease{Client: c}
}

// Len reports the current number of live clients in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close shuts down every client the pool has created.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Call is a convenience wrapper that acquires a lease and issues a call
// against it.
func (p *Pool) Call(ctx context.Context, methodID uint64, body []byte) ([]byte, error) {
	lease := p.Acquire()
	return lease.Client.Call(ctx, methodID, body)
}
