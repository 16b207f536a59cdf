package middleware

import (
	"golang.org/x/time/rate"

	"github.com/orbitrpc/urpc/rpcctx"
	"github.com/orbitrpc/urpc/rpcerr"
	"github.com/orbitrpc/urpc/rpcregistry"
)

// RateLimit returns a Middleware built on a token-bucket limiter
// (golang.org/x/time/rate) that rejects over-rate requests with a 429
// rpcerr.Error.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next rpcregistry.Handler) rpcregistry.Handler {
		return func(ctx *rpcctx.Context, body []byte) ([]byte, error) {
			if !limiter.Allow() {
				return nil, rpcerr.New(429, "rate limit exceeded")
			}
			return next(ctx, body)
		}
	}
}
