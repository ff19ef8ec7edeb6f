package rpc

import (
	"context"
	"fmt"
	"strings"
)

// Invocable is a call stub bound to one path on the remote exposed object.
// Invoking it issues a CallRequest and resolves with the remote result or
// fails with the deserialized remote error.
type Invocable func(ctx context.Context, args ...any) (any, error)

// Mirror is a local view over the cached data tree of the remote exposed
// object, at some path prefix. The tree is a pure function of the last
// snapshot plus all property updates applied in delivery order; it starts
// empty until the first snapshot arrives.
//
// Accessing an existing data member returns it verbatim (nested objects as
// child Mirrors); accessing any other name returns an Invocable stub for that
// path. A Mirror is immutable — every update replaces the endpoint's root, so
// re-fetch via Endpoint.Mirror rather than caching one across updates.
type Mirror struct {
	ep     *Endpoint
	prefix []string
	tree   map[string]any
}

func newMirror(ep *Endpoint, prefix []string, tree map[string]any) *Mirror {
	if tree == nil {
		tree = map[string]any{}
	}
	return &Mirror{ep: ep, prefix: prefix, tree: tree}
}

// Get looks name up in the cached tree. Nested objects come back as child
// Mirrors, leaves verbatim, and anything not cached as an Invocable stub.
func (m *Mirror) Get(name string) any {
	if v, ok := m.tree[name]; ok {
		if sub, ok := v.(map[string]any); ok {
			return newMirror(m.ep, m.path(name), sub)
		}
		return v
	}
	return m.Invocable(name)
}

// Value returns the cached leaf at path relative to this node, reporting
// whether anything is cached there.
func (m *Mirror) Value(path ...string) (any, bool) {
	node := m.tree
	for i, name := range path {
		v, ok := node[name]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return v, true
		}
		node, ok = v.(map[string]any)
		if !ok {
			return nil, false
		}
	}
	return nil, false
}

// Child returns the Mirror rooted at path relative to this node, whether or
// not anything is cached there yet.
func (m *Mirror) Child(path ...string) *Mirror {
	node := m
	for _, name := range path {
		sub, _ := node.tree[name].(map[string]any)
		node = newMirror(m.ep, node.path(name), sub)
	}
	return node
}

// Invocable returns a call stub for name under this node's prefix, regardless
// of what the cache holds.
func (m *Mirror) Invocable(name string) Invocable {
	path := m.path(name)
	return func(ctx context.Context, args ...any) (any, error) {
		return m.ep.Call(ctx, path, args...)
	}
}

// Call invokes the remote member name relative to this node.
func (m *Mirror) Call(ctx context.Context, name string, args ...any) (any, error) {
	return m.ep.Call(ctx, m.path(name), args...)
}

// Tree exposes the cached data tree. Read-only: mutating it corrupts the
// mirror invariant that the tree reflects exactly the updates applied so far.
func (m *Mirror) Tree() map[string]any {
	return m.tree
}

// Path returns the node's path prefix from the remote object root.
func (m *Mirror) Path() []string {
	return m.prefix
}

func (m *Mirror) String() string {
	if len(m.prefix) == 0 {
		return fmt.Sprintf("Mirror(/, %d members)", len(m.tree))
	}
	return fmt.Sprintf("Mirror(%s, %d members)", strings.Join(m.prefix, "."), len(m.tree))
}

// path appends one segment to the prefix without sharing the backing array.
func (m *Mirror) path(name string) []string {
	return append(m.prefix[:len(m.prefix):len(m.prefix)], name)
}
