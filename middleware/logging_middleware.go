package middleware

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/orbitrpc/urpc/rpcctx"
	"github.com/orbitrpc/urpc/rpcregistry"
)

// Logging returns a Middleware that logs every dispatched request as a
// structured zerolog event with method, duration, and error fields.
func Logging(logger zerolog.Logger) Middleware {
	return func(next rpcregistry.Handler) rpcregistry.Handler {
		return func(ctx *rpcctx.Context, body []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, body)
			ev := logger.Info()
			if ctx != nil {
				ev = ev.Uint32("stream_id", ctx.StreamID).Uint64("method_id", ctx.MethodID)
			}
			ev = ev.Dur("duration", time.Since(start)).Int("response_bytes", len(resp))
			if err != nil {
				ev.Err(err).Msg("rpc handler returned error")
			} else {
				ev.Msg("rpc handler completed")
			}
			return resp, err
		}
	}
}
