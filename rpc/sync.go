package rpc

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/notgne2/arc-rpc/message"
)

// The state synchronizer is opt-in on the exposing side (WithSync). Activation
// pushes a Snapshot of the child's full data tree; Set applies a single leaf
// mutation locally and pushes the matching Property delta. The mirroring side
// applies snapshot and deltas in delivery order and swaps in a fresh mirror
// root after each one. Single writer: the exposer mutates, the mirror side
// only reads.

// PushSnapshot rebuilds the exposed object's data tree and sends it as a full
// Snapshot, replacing the peer's cached mirror wholesale. Called automatically
// at construction when WithSync is set; call it again to re-announce state to
// a peer that attached late.
func (e *Endpoint) PushSnapshot() error {
	if e.child == nil {
		return errors.New("rpc: no exposed object to snapshot")
	}
	tree := buildDataTree(e.child)

	e.syncMu.Lock()
	e.syncTree = tree
	e.syncMu.Unlock()

	payload, err := e.cdc.Marshal(&message.Snapshot{Tree: tree})
	if err != nil {
		return fmt.Errorf("rpc: encoding snapshot: %w", err)
	}
	return e.ch.Send(message.EventSnapshot, payload)
}

// Set mutates one leaf of the exposed object's synchronized tree: the local
// tree is updated in place (creating missing intermediate objects), the
// mutation is written through to the child where reflection allows it, and a
// Property update is pushed to the peer. Requires WithSync.
func (e *Endpoint) Set(path []string, value any) error {
	if !e.syncOn {
		return errors.New("rpc: state sync is not enabled on this endpoint")
	}
	if len(path) == 0 {
		return errors.New("rpc: empty property path")
	}

	e.syncMu.Lock()
	if e.syncTree == nil {
		e.syncTree = buildDataTree(e.child)
	}
	setByPath(e.syncTree, path, value)
	e.syncMu.Unlock()

	if err := setOnChild(e.child, path, value); err != nil {
		// The tree is authoritative for the peer; failure to write through to
		// the child itself (unaddressable field, type mismatch) is reported
		// but does not block the update.
		e.logger.Debug().Err(err).Strs("path", path).Msg("write-through to child failed")
	}

	payload, err := e.cdc.Marshal(&message.Property{Path: path, Value: value})
	if err != nil {
		return fmt.Errorf("rpc: encoding property update: %w", err)
	}
	return e.ch.Send(message.EventProperty, payload)
}

// handleSnapshot replaces the cached tree and rebuilds the mirror root.
// Applying the same snapshot twice yields an identical mirror both times.
func (e *Endpoint) handleSnapshot(payload []byte) {
	var snap message.Snapshot
	if err := e.cdc.Unmarshal(payload, &snap); err != nil {
		e.logger.Debug().Err(err).Msg("malformed snapshot update")
		return
	}
	e.mirror.Store(newMirror(e, nil, snap.Tree))
}

// handleProperty applies one path/value pair to a copy of the cached tree and
// swaps in the rebuilt mirror. Set-by-path is idempotent and creates missing
// intermediate objects.
func (e *Endpoint) handleProperty(payload []byte) {
	var prop message.Property
	if err := e.cdc.Unmarshal(payload, &prop); err != nil {
		e.logger.Debug().Err(err).Msg("malformed property update")
		return
	}
	if len(prop.Path) == 0 {
		return
	}
	tree := cloneTree(e.mirror.Load().tree)
	setByPath(tree, prop.Path, prop.Value)
	e.mirror.Store(newMirror(e, nil, tree))
}

// setByPath writes value at path inside tree, creating (or replacing
// non-object leaves with) intermediate objects along the way.
func setByPath(tree map[string]any, path []string, value any) {
	node := tree
	for _, name := range path[:len(path)-1] {
		next, ok := node[name].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[name] = next
		}
		node = next
	}
	node[path[len(path)-1]] = value
}

// cloneTree copies the map spine of a data tree. Leaf values are shared —
// updates only ever replace map entries, never mutate leaves in place.
func cloneTree(tree map[string]any) map[string]any {
	out := make(map[string]any, len(tree))
	for k, v := range tree {
		if sub, ok := v.(map[string]any); ok {
			out[k] = cloneTree(sub)
			continue
		}
		out[k] = v
	}
	return out
}

// buildDataTree extracts the serializable data members of the exposed object:
// string-keyed maps and exported struct fields recurse, function and channel
// members are skipped (they are call surface, not data), everything else is a
// leaf.
func buildDataTree(child any) map[string]any {
	node, ok := buildNode(reflect.ValueOf(child))
	if !ok {
		return map[string]any{}
	}
	tree, ok := node.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return tree
}

// buildNode converts one value into its tree representation. The second
// return is false for members that have no data representation.
func buildNode(v reflect.Value) (any, bool) {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil, true
		}
		if v.Kind() == reflect.Interface && v.IsNil() {
			return nil, true
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Invalid, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, false
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		node := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			if val, ok := buildNode(iter.Value()); ok {
				node[iter.Key().String()] = val
			}
		}
		return node, true
	case reflect.Struct:
		t := v.Type()
		node := make(map[string]any)
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue
			}
			if val, ok := buildNode(v.Field(i)); ok {
				node[field.Name] = val
			}
		}
		return node, true
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface(), true // []byte is a leaf
		}
		out := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			if val, ok := buildNode(v.Index(i)); ok {
				out = append(out, val)
			}
		}
		return out, true
	default:
		return v.Interface(), true
	}
}

// setOnChild writes value through to the exposed object itself, so inbound
// calls observe the same state the peer's mirror does. Works for string-keyed
// map entries anywhere on the path and for settable struct fields.
func setOnChild(child any, path []string, value any) error {
	if child == nil {
		return errors.New("no exposed object")
	}
	v := reflect.ValueOf(child)
	for _, name := range path[:len(path)-1] {
		next, ok := member(v, name)
		if !ok {
			return fmt.Errorf("no member %q on exposed object", name)
		}
		v = next
	}

	v = unwrapInterface(v)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return errors.New("nil intermediate on exposed object")
		}
		v = v.Elem()
	}

	name := path[len(path)-1]
	switch v.Kind() {
	case reflect.Map:
		keyType := v.Type().Key()
		if keyType.Kind() != reflect.String {
			return errors.New("intermediate is not a string-keyed map")
		}
		elemType := v.Type().Elem()
		rv := reflect.ValueOf(value)
		switch {
		case value == nil:
			v.SetMapIndex(reflect.ValueOf(name).Convert(keyType), reflect.Zero(elemType))
		case rv.Type().AssignableTo(elemType):
			v.SetMapIndex(reflect.ValueOf(name).Convert(keyType), rv)
		case isNumeric(rv.Kind()) && isNumeric(elemType.Kind()):
			v.SetMapIndex(reflect.ValueOf(name).Convert(keyType), rv.Convert(elemType))
		default:
			return fmt.Errorf("cannot assign %T to map element type %s", value, elemType)
		}
		return nil
	case reflect.Struct:
		field := v.FieldByName(name)
		if !field.IsValid() {
			return fmt.Errorf("no field %q on exposed object", name)
		}
		if !field.CanSet() {
			return fmt.Errorf("field %q is not settable", name)
		}
		rv := reflect.ValueOf(value)
		switch {
		case value == nil:
			field.Set(reflect.Zero(field.Type()))
		case rv.Type().AssignableTo(field.Type()):
			field.Set(rv)
		case isNumeric(rv.Kind()) && isNumeric(field.Type().Kind()):
			field.Set(rv.Convert(field.Type()))
		default:
			return fmt.Errorf("cannot assign %T to field type %s", value, field.Type())
		}
		return nil
	default:
		return fmt.Errorf("cannot set member %q on %s", name, v.Kind())
	}
}
