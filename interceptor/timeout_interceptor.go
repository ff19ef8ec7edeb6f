package interceptor

import (
	"context"
	"time"

	"github.com/notgne2/arc-rpc/message"
)

// Timeout bounds one inbound invocation. The protocol itself never times a
// call out — this is a host-side guard so a stuck handler cannot hold an
// inbound call slot forever. The abandoned handler keeps running; only the
// response is taken over.
func Timeout(timeout time.Duration) Interceptor {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.CallRequest) *message.CallResponse {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.CallResponse, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return reject(req, "invocation timed out")
			}
		}
	}
}
