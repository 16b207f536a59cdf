// Package middleware wraps rpcregistry.Handler with cross-cutting
// concerns (logging, rate limiting, timeouts, retries) as an onion of
// Middleware around a base handler. The wire protocol has no concept of
// middleware; this is purely a server-side dispatch enrichment, applied
// by wrapping a handler before it is registered in an rpcregistry.Registry.
// server.Server itself has no middleware hook.
package middleware

import "github.com/orbitrpc/urpc/rpcregistry"

// Middleware wraps a Handler to produce another Handler.
type Middleware func(next rpcregistry.Handler) rpcregistry.Handler

// Chain composes middlewares into a single Middleware, applied in the
// order given: Chain(A, B, C)(handler) behaves as A(B(C(handler))), so
// A's before-logic runs first and its after-logic runs last.
func Chain(mws ...Middleware) Middleware {
	return func(next rpcregistry.Handler) rpcregistry.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
