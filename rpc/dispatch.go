package rpc

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/notgne2/arc-rpc/message"
)

// handleCallRequest processes one inbound call. Decoding happens on the
// delivery goroutine; the resolution and invocation run in their own goroutine
// so a slow handler never stalls other inbound traffic on this channel.
//
// Exactly one CallResponse is sent per request, whatever happens inside.
func (e *Endpoint) handleCallRequest(payload []byte) {
	var req message.CallRequest
	if err := e.cdc.Unmarshal(payload, &req); err != nil {
		// Protocol error: malformed payloads are ignored, never fatal.
		e.logger.Debug().Err(err).Msg("malformed call request")
		return
	}

	go func() {
		resp := e.handler(context.Background(), &req)
		if resp == nil {
			resp = errorResponse(req.ResponseID, fmt.Errorf("handler produced no response"))
		}
		resp.ResponseID = req.ResponseID

		out, err := e.cdc.Marshal(resp)
		if err != nil {
			// The result was not serializable — the caller is still owed its
			// one response, so report the encoding failure instead.
			out, _ = e.cdc.Marshal(errorResponse(req.ResponseID, err))
		}
		if err := e.ch.Send(message.EventCallResponse, out); err != nil {
			e.logger.Debug().Err(err).Str("responseId", req.ResponseID).Msg("failed to send call response")
		}
	}()
}

// dispatch is the innermost handler: resolve the path against the exposed
// object, coerce the arguments, invoke, and convert every failure class —
// resolution error, invocation error, panic — into an error CallResponse.
// Nothing propagates past here.
func (e *Endpoint) dispatch(_ context.Context, req *message.CallRequest) (resp *message.CallResponse) {
	defer func() {
		if r := recover(); r != nil {
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

	if e.child == nil {
		return errorResponse(req.ResponseID, &ResolutionError{Path: req.Path, Reason: "no exposed object"})
	}

	fn, err := resolveInvocable(e.child, req.Path, req.ParentPath)
	if err != nil {
		return errorResponse(req.ResponseID, err)
	}

	in, err := e.decodeArgs(fn.Type(), req.Args)
	if err != nil {
		return errorResponse(req.ResponseID, err)
	}

	out := fn.Call(in) // panics land in the recover above

	result, callErr := splitResults(fn.Type(), out)
	if callErr != nil {
		return &message.CallResponse{
			ResponseID: req.ResponseID,
			IsError:    true,
			Error: &message.WireError{
				Message: callErr.Error(),
				Type:    fmt.Sprintf("%T", callErr),
			},
		}
	}

	wireResult := e.encodeResult(result)
	return &message.CallResponse{ResponseID: req.ResponseID, Result: wireResult}
}

// splitResults separates an invocation's return values into (result, error).
// A trailing error return selects the error; the remaining values collapse to
// nil, a single value, or a slice.
func splitResults(t reflect.Type, out []reflect.Value) (any, error) {
	n := t.NumOut()
	if n == 0 {
		return nil, nil
	}
	values := out
	if t.Out(n-1).Implements(errType) {
		last := out[n-1]
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		values = out[:n-1]
	}
	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		return values[0].Interface(), nil
	default:
		results := make([]any, len(values))
		for i, v := range values {
			results[i] = v.Interface()
		}
		return results, nil
	}
}

func errorResponse(responseID string, err error) *message.CallResponse {
	return &message.CallResponse{
		ResponseID: responseID,
		IsError:    true,
		Error:      &message.WireError{Message: err.Error(), Type: fmt.Sprintf("%T", err)},
	}
}
