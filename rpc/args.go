package rpc

import (
	"fmt"
	"reflect"

	"github.com/notgne2/arc-rpc/message"
)

var (
	errType = reflect.TypeOf((*error)(nil)).Elem()
	anyType = reflect.TypeOf((*any)(nil)).Elem()
)

// CallbackStub is the local stand-in for a remote function value. Invoking it
// sends a one-way CallbackInvoke message; it never returns a result, and the
// error only reports a local send failure.
type CallbackStub func(args ...any) error

// encodeArgs converts local argument values to their wire form. Function
// values become callback references registered on the bridge; the returned ids
// let a failed or cancelled call withdraw its registrations.
func (e *Endpoint) encodeArgs(args []any) ([]message.Argument, []string) {
	wire := make([]message.Argument, 0, len(args))
	var cbIDs []string
	for _, a := range args {
		v := reflect.ValueOf(a)
		if v.IsValid() && v.Kind() == reflect.Func {
			if v.IsNil() {
				wire = append(wire, message.Argument{})
				continue
			}
			id := e.bridge.register(v)
			cbIDs = append(cbIDs, id)
			wire = append(wire, message.Argument{IsFunc: true, ID: id})
			continue
		}
		wire = append(wire, message.Argument{Value: a})
	}
	return wire, cbIDs
}

// decodeArgs converts wire arguments into the invocation's parameter values.
// Callback references become synthetic functions matching the declared
// parameter type; plain values are coerced through the codec when their
// decoded Go type does not line up with the parameter.
func (e *Endpoint) decodeArgs(fnType reflect.Type, args []message.Argument) ([]reflect.Value, error) {
	numIn := fnType.NumIn()
	if fnType.IsVariadic() {
		if len(args) < numIn-1 {
			return nil, fmt.Errorf("invocation expects at least %d arguments, got %d", numIn-1, len(args))
		}
	} else if len(args) != numIn {
		return nil, fmt.Errorf("invocation expects %d arguments, got %d", numIn, len(args))
	}

	paramType := func(i int) reflect.Type {
		if fnType.IsVariadic() && i >= numIn-1 {
			return fnType.In(numIn - 1).Elem()
		}
		return fnType.In(i)
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		t := paramType(i)
		if a.IsFunc {
			if a.ID == "" {
				in[i] = reflect.Zero(t)
				continue
			}
			stub, err := e.makeCallbackStub(a.ID, t)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			in[i] = stub
			continue
		}
		val, err := e.coerceValue(a.Value, t)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = val
	}
	return in, nil
}

// coerceValue adapts a codec-decoded value to the target type. Values arrive
// as the codec's generic shapes (map[string]any, float64, ...); anything not
// directly assignable is round-tripped through the codec into a fresh value of
// the target type, the same trick the JSON layer plays for typed struct args.
func (e *Endpoint) coerceValue(v any, t reflect.Type) (reflect.Value, error) {
	if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
		if v == nil {
			return reflect.Zero(t), nil
		}
		return reflect.ValueOf(v), nil
	}
	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if isNumeric(rv.Kind()) && isNumeric(t.Kind()) {
		return rv.Convert(t), nil
	}

	raw, err := e.cdc.Marshal(v)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %T to %s: %w", v, t, err)
	}
	ptr := reflect.New(t)
	if err := e.cdc.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %T to %s: %w", v, t, err)
	}
	return ptr.Elem(), nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// makeCallbackStub builds the synthetic function for a received callback
// reference. For a concrete func parameter the stub matches its exact
// signature (returning zero values — callbacks are fire-and-forget); for an
// any-typed parameter it is a CallbackStub.
func (e *Endpoint) makeCallbackStub(id string, t reflect.Type) (reflect.Value, error) {
	switch {
	case t.Kind() == reflect.Func:
		variadic := t.IsVariadic()
		return reflect.MakeFunc(t, func(in []reflect.Value) []reflect.Value {
			args := make([]any, 0, len(in))
			for i, v := range in {
				// MakeFunc hands the variadic tail over as one slice.
				if variadic && i == len(in)-1 {
					for j := 0; j < v.Len(); j++ {
						args = append(args, v.Index(j).Interface())
					}
					continue
				}
				args = append(args, v.Interface())
			}
			if err := e.sendCallbackInvoke(id, args); err != nil {
				e.logger.Debug().Err(err).Str("callbackId", id).Msg("callback invoke send failed")
			}
			outs := make([]reflect.Value, t.NumOut())
			for i := range outs {
				outs[i] = reflect.Zero(t.Out(i))
			}
			return outs
		}), nil
	case t == anyType:
		return reflect.ValueOf(CallbackStub(func(args ...any) error {
			return e.sendCallbackInvoke(id, args)
		})), nil
	default:
		return reflect.Value{}, fmt.Errorf("parameter type %s cannot receive a callback reference", t)
	}
}

// sendCallbackInvoke ships one fire-and-forget callback invocation to the
// peer. Nested function arguments get their own endpoint-scoped registrations,
// like any other function value crossing the boundary.
func (e *Endpoint) sendCallbackInvoke(id string, args []any) error {
	wireArgs, _ := e.encodeArgs(args)
	payload, err := e.cdc.Marshal(&message.CallbackInvoke{CallbackID: id, Args: wireArgs})
	if err != nil {
		return fmt.Errorf("rpc: encoding callback invoke: %w", err)
	}
	return e.ch.Send(message.EventCallbackInvoke, payload)
}

// encodeResult prepares an invocation result for the wire. Function-valued
// results become callback references like function arguments do; the
// registration lives for the endpoint's lifetime.
func (e *Endpoint) encodeResult(result any) any {
	v := reflect.ValueOf(result)
	if v.IsValid() && v.Kind() == reflect.Func && !v.IsNil() {
		id := e.bridge.register(v)
		return map[string]any{"isFunc": true, "id": id}
	}
	return result
}

// decodeResult reconstructs function-valued results on the calling side.
func (e *Endpoint) decodeResult(result any) any {
	if m, ok := result.(map[string]any); ok {
		if isFunc, _ := m["isFunc"].(bool); isFunc {
			if id, _ := m["id"].(string); id != "" {
				return CallbackStub(func(args ...any) error {
					return e.sendCallbackInvoke(id, args)
				})
			}
		}
	}
	return result
}
