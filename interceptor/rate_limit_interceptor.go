package interceptor

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notgne2/arc-rpc/message"
)

// RateLimit rejects inbound calls beyond a token-bucket budget of r calls per
// second with bursts up to burst. Rejected calls still get their one error
// CallResponse.
func RateLimit(r float64, burst int) Interceptor {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.CallRequest) *message.CallResponse {
			if !limiter.Allow() {
				return reject(req, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
