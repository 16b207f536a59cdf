// Package rpcctx defines the context object passed to every uRPC handler
// invocation (§3.6/§6.3).
package rpcctx

import (
	"context"

	"github.com/orbitrpc/urpc/transport"
	"github.com/orbitrpc/urpc/wire"
)

// Context is what a handler receives alongside the request body. It
// intentionally does not expose the raw transport for writing: handlers
// must not write frames directly, so only read-only metadata and the
// cancellation signal are exposed here.
type Context struct {
	StreamID uint32
	MethodID uint64
	Flags    wire.Flags

	peer    transport.PeerIdentity
	hasPeer bool

	cancelCtx context.Context
}

// New builds a handler Context. cancelCtx is the per-request
// context.Context whose cancellation is triggered by an inbound Cancel
// frame (§3.5).
func New(streamID uint32, methodID uint64, flags wire.Flags, peer transport.PeerIdentity, hasPeer bool, cancelCtx context.Context) *Context {
	return &Context{
		StreamID:  streamID,
		MethodID:  methodID,
		Flags:     flags,
		peer:      peer,
		hasPeer:   hasPeer,
		cancelCtx: cancelCtx,
	}
}

// PeerIdentity returns the authenticated peer, if any (§3.6).
func (c *Context) PeerIdentity() (transport.PeerIdentity, bool) { return c.peer, c.hasPeer }

// Done returns a channel closed once the request has been cancelled by an
// inbound Cancel frame (§3.5/§5 "Cancellation semantics").
func (c *Context) Done() <-chan struct{} { return c.cancelCtx.Done() }

// Cancelled reports whether the cancellation token has already fired.
// Handlers poll this cooperatively; the core never unwinds the handler
// itself (§5).
func (c *Context) Cancelled() bool {
	select {
	case <-c.cancelCtx.Done():
		return true
	default:
		return false
	}
}

// Context returns the underlying context.Context, for handlers that want
// to derive their own child context (e.g. with a timeout) or pass
// cancellation through to further blocking calls.
func (c *Context) Context() context.Context { return c.cancelCtx }

// WithContext returns a shallow copy of c whose cancellation signal is
// ctx instead of c's own, e.g. for a middleware that layers a deadline
// on top of the request's Cancel-frame cancellation.
func (c *Context) WithContext(ctx context.Context) *Context {
	cp := *c
	cp.cancelCtx = ctx
	return &cp
}
