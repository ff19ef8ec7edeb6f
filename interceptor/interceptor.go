// Package interceptor provides the middleware chain wrapped around an
// endpoint's inbound call dispatcher. Interceptors see the decoded CallRequest
// before resolution and the CallResponse on the way back out, and can shortcut
// a call by returning an error response themselves.
package interceptor

import (
	"context"

	"github.com/notgne2/arc-rpc/message"
)

// HandlerFunc processes one inbound call request and produces its single
// response.
type HandlerFunc func(ctx context.Context, req *message.CallRequest) *message.CallResponse

// Interceptor wraps a HandlerFunc with additional behavior.
type Interceptor func(next HandlerFunc) HandlerFunc

// Chain composes interceptors into one. Wraps in reverse order to create the
// onion model:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	Execution order: A.before → B.before → C.before → handler → C.after → B.after → A.after
func Chain(interceptors ...Interceptor) Interceptor {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(interceptors) - 1; i >= 0; i-- {
			next = interceptors[i](next)
		}
		return next
	}
}

// reject builds the error response interceptors use to shortcut a call.
func reject(req *message.CallRequest, msg string) *message.CallResponse {
	return &message.CallResponse{
		ResponseID: req.ResponseID,
		IsError:    true,
		Error:      &message.WireError{Message: msg},
	}
}
