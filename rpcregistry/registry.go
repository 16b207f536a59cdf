// Package rpcregistry implements the method-handler registry: a map
// from 64-bit method id to handler, addressed either directly by id or
// by name (hashed at insertion time via wire.MethodID).
package rpcregistry

import (
	"sync"

	"github.com/orbitrpc/urpc/rpcctx"
	"github.com/orbitrpc/urpc/wire"
)

// Handler is the uRPC method-handler signature (§6.3):
// handler(context, request_body) -> (response_body, error).
// A non-nil error is treated as a handler-produced application error
// (§7 kind 4) and wrapped into an error response by the caller.
type Handler func(ctx *rpcctx.Context, body []byte) ([]byte, error)

// StringHandler is the convenience variant from §4.6 that returns a
// UTF-8 string instead of a raw byte slice.
type StringHandler func(ctx *rpcctx.Context, body []byte) (string, error)

// WrapString adapts a StringHandler to the canonical Handler signature.
func WrapString(fn StringHandler) Handler {
	return func(ctx *rpcctx.Context, body []byte) ([]byte, error) {
		s, err := fn(ctx, body)
		return []byte(s), err
	}
}

// Registry maps method ids to handlers. It is intended to be built up
// via Register/RegisterName before the server starts accepting
// connections, then treated as read-only (§4.6/§3.8); the mutex only
// protects against accidental concurrent registration, not steady-state
// lookup contention.
type Registry struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[uint64]Handler)}
}

// Register inserts fn under the given method id directly, replacing any
// existing handler for that id (§8: "Repeated registration under the
// same method id replaces the handler").
func (r *Registry) Register(methodID uint64, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[methodID] = fn
}

// RegisterName hashes name via wire.MethodID and registers fn under the
// resulting id (§8: "Repeated registration under the same name yields
// the same method id").
func (r *Registry) RegisterName(name string, fn Handler) uint64 {
	id := wire.MethodID(name)
	r.Register(id, fn)
	return id
}

// Find looks up the handler for methodID, returning (nil, false) if absent.
func (r *Registry) Find(methodID uint64) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[methodID]
	return fn, ok
}
