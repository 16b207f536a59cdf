package middleware

import (
	"context"
	"time"

	"github.com/orbitrpc/urpc/rpcctx"
	"github.com/orbitrpc/urpc/rpcerr"
	"github.com/orbitrpc/urpc/rpcregistry"
)

// Timeout returns a Middleware that bounds handler execution to timeout,
// layered on top of (not instead of) the request's own Cancel-frame
// cancellation: whichever fires first, the deadline or an inbound
// Cancel, unblocks the select below.
func Timeout(timeout time.Duration) Middleware {
	return func(next rpcregistry.Handler) rpcregistry.Handler {
		return func(ctx *rpcctx.Context, body []byte) ([]byte, error) {
			base := context.Background()
			if ctx != nil {
				base = ctx.Context()
			}
			deadlineCtx, cancel := context.WithTimeout(base, timeout)
			defer cancel()

			innerCtx := ctx
			if ctx != nil {
				innerCtx = ctx.WithContext(deadlineCtx)
			}

			type result struct {
				body []byte
				err  error
			}
			done := make(chan result, 1)
			go func() {
				b, err := next(innerCtx, body)
				done <- result{b, err}
			}()

			select {
			case r := <-done:
				return r.body, r.err
			case <-deadlineCtx.Done():
				return nil, rpcerr.New(504, "request timed out")
			}
		}
	}
}
