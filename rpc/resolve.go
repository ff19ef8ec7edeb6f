package rpc

import (
	"fmt"
	"reflect"
	"strings"
)

// ResolutionError reports a call path that does not resolve to an invocable
// member of the exposed object. Always reported back to the caller as a normal
// error CallResponse, never a fatal condition.
type ResolutionError struct {
	Path   []string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %q: %s", strings.Join(e.Path, "."), e.Reason)
}

// resolveInvocable walks parentPath down the exposed object, then looks the
// final path segment up as an invocable member of the value found there.
// Methods are checked first (bound to the parent value, preserving receiver
// identity), then func-valued exported struct fields and map entries.
//
// The walk is pure property lookup — no side effects until the returned
// function is actually invoked.
func resolveInvocable(root any, path, parentPath []string) (reflect.Value, error) {
	if len(path) == 0 {
		return reflect.Value{}, &ResolutionError{Path: path, Reason: "empty path"}
	}

	parent := reflect.ValueOf(root)
	for i, name := range parentPath {
		next, ok := member(parent, name)
		if !ok {
			return reflect.Value{}, &ResolutionError{
				Path:   path,
				Reason: fmt.Sprintf("no member %q at %q", name, strings.Join(parentPath[:i], ".")),
			}
		}
		parent = next
	}

	name := path[len(path)-1]

	// Methods take priority. MethodByName on the parent value (pointer kept
	// un-dereferenced by member) binds the receiver for us.
	target := unwrapInterface(parent)
	if target.IsValid() {
		if m := target.MethodByName(name); m.IsValid() {
			return m, nil
		}
		// Value receivers on an addressable struct are covered above; pointer
		// receivers on a plain struct value are not reachable, matching Go's
		// own method set rules.
	}

	if v, ok := member(parent, name); ok {
		v = unwrapInterface(v)
		if v.Kind() == reflect.Func && !v.IsNil() {
			return v, nil
		}
		return reflect.Value{}, &ResolutionError{Path: path, Reason: fmt.Sprintf("member %q is not invocable", name)}
	}

	return reflect.Value{}, &ResolutionError{Path: path, Reason: fmt.Sprintf("no invocable member %q", name)}
}

// member performs one lookup step: v.name for string-keyed maps and exported
// struct fields. Interfaces are unwrapped; pointers are followed for the
// lookup but the returned value is whatever is stored at the member.
func member(v reflect.Value, name string) (reflect.Value, bool) {
	v = unwrapInterface(v)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		keyType := v.Type().Key()
		if keyType.Kind() != reflect.String {
			return reflect.Value{}, false
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(keyType))
		if !mv.IsValid() {
			return reflect.Value{}, false
		}
		return mv, true
	case reflect.Struct:
		field, ok := v.Type().FieldByName(name)
		if !ok || field.PkgPath != "" {
			// Unexported fields are not part of the remote surface.
			return reflect.Value{}, false
		}
		return v.FieldByIndex(field.Index), true
	default:
		return reflect.Value{}, false
	}
}

func unwrapInterface(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	return v
}
