package interceptor

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/notgne2/arc-rpc/message"
)

// Logging logs every inbound call: path, duration, and the error when the
// response carries one.
func Logging(logger zerolog.Logger) Interceptor {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.CallRequest) *message.CallResponse {
			start := time.Now()
			resp := next(ctx, req)
			evt := logger.Debug().
				Str("path", strings.Join(req.Path, ".")).
				Dur("duration", time.Since(start))
			if resp != nil && resp.IsError && resp.Error != nil {
				evt = logger.Warn().
					Str("path", strings.Join(req.Path, ".")).
					Dur("duration", time.Since(start)).
					Str("error", resp.Error.Message)
			}
			evt.Msg("call")
			return resp
		}
	}
}
