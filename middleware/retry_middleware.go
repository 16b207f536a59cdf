package middleware

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/orbitrpc/urpc/rpcctx"
	"github.com/orbitrpc/urpc/rpcerr"
	"github.com/orbitrpc/urpc/rpcregistry"
)

// Retry returns a Middleware that re-invokes a handler with exponential
// backoff when it fails with a retryable error: a 5xx-class rpcerr.Error,
// meaning a downstream dependency failure the handler surfaced rather
// than a client-input problem.
func Retry(maxRetries int, baseDelay time.Duration, logger zerolog.Logger) Middleware {
	return func(next rpcregistry.Handler) rpcregistry.Handler {
		return func(ctx *rpcctx.Context, body []byte) ([]byte, error) {
			resp, err := next(ctx, body)
			for attempt := 0; attempt < maxRetries; attempt++ {
				if err == nil {
					return resp, nil
				}
				if !isRetryable(err) {
					return resp, err
				}
				logger.Warn().Int("attempt", attempt+1).Err(err).Msg("retrying rpc handler")
				time.Sleep(baseDelay * (1 << attempt))
				resp, err = next(ctx, body)
			}
			return resp, err
		}
	}
}

func isRetryable(err error) bool {
	rpcErr, ok := err.(*rpcerr.Error)
	if !ok {
		return false
	}
	return rpcErr.Code >= 500 && rpcErr.Code < 600
}
