package interceptor

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/notgne2/arc-rpc/message"
)

// Recovery converts a panic anywhere below it in the chain into an error
// CallResponse. The dispatcher already recovers around the invocation itself;
// this guards the interceptors between here and there.
func Recovery(logger zerolog.Logger) Interceptor {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.CallRequest) (resp *message.CallResponse) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Interface("panic", r).
						Bytes("stack", debug.Stack()).
						Msg("recovered panic in call chain")
					resp = &message.CallResponse{
						ResponseID: req.ResponseID,
						IsError:    true,
						Error: &message.WireError{
							Message: fmt.Sprint(r),
							Type:    fmt.Sprintf("%T", r),
							Stack:   string(debug.Stack()),
						},
					}
				}
			}()
			return next(ctx, req)
		}
	}
}
