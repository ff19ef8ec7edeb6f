package rpc

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/notgne2/arc-rpc/channel"
)

// newSyncedPair attaches the mirror side first, then the exposing side with
// sync enabled, so the initial snapshot lands on a listening peer.
func newSyncedPair(t *testing.T) (mirrorSide, host *Endpoint) {
	t.Helper()
	a, b := channel.Pipe()
	t.Cleanup(func() { a.Close() })

	mirrorSide = NewEndpoint(a)
	host = NewEndpoint(b, WithChild(testChild()), WithSync())
	return mirrorSide, host
}

func TestSnapshotBuildsMirror(t *testing.T) {
	mirrorSide, _ := newSyncedPair(t)

	waitFor(t, time.Second, "snapshot", func() bool {
		_, ok := mirrorSide.Mirror().Value("a")
		return ok
	})

	m := mirrorSide.Mirror()
	if v, _ := m.Value("a"); v != 1.0 {
		t.Fatalf("mirror.a = %v, want 1", v)
	}
	if v, _ := m.Value("b", "c"); v != 2.0 {
		t.Fatalf("mirror.b.c = %v, want 2", v)
	}

	// Functions are not data: greet is absent from the tree, so Get returns a
	// call stub that resolves against the remote object.
	greet, ok := m.Get("greet").(Invocable)
	if !ok {
		t.Fatalf("expect Invocable for 'greet', got %T", m.Get("greet"))
	}
	result, err := greet(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result != "hi" {
		t.Fatalf("mirror.greet() = %v, want 'hi'", result)
	}
}

func TestMirrorNestedChild(t *testing.T) {
	mirrorSide, _ := newSyncedPair(t)

	waitFor(t, time.Second, "snapshot", func() bool {
		_, ok := mirrorSide.Mirror().Value("a")
		return ok
	})

	b, ok := mirrorSide.Mirror().Get("b").(*Mirror)
	if !ok {
		t.Fatalf("expect nested Mirror for 'b', got %T", mirrorSide.Mirror().Get("b"))
	}
	if v, _ := b.Value("c"); v != 2.0 {
		t.Fatalf("b.c = %v, want 2", v)
	}
	if got := b.Path(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("nested path = %v, want [b]", got)
	}
}

func TestPropertyUpdateAppliesDelta(t *testing.T) {
	mirrorSide, host := newSyncedPair(t)

	waitFor(t, time.Second, "snapshot", func() bool {
		_, ok := mirrorSide.Mirror().Value("a")
		return ok
	})

	if err := host.Set([]string{"b", "c"}, 5); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, "property update", func() bool {
		v, _ := mirrorSide.Mirror().Value("b", "c")
		return v == 5.0
	})

	// The delta must not disturb siblings.
	if v, _ := mirrorSide.Mirror().Value("a"); v != 1.0 {
		t.Fatalf("mirror.a disturbed by delta: %v", v)
	}
}

func TestPropertyUpdateCreatesIntermediates(t *testing.T) {
	mirrorSide, host := newSyncedPair(t)

	waitFor(t, time.Second, "snapshot", func() bool {
		_, ok := mirrorSide.Mirror().Value("a")
		return ok
	})

	if err := host.Set([]string{"deep", "nested", "leaf"}, "v"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, "intermediate creation", func() bool {
		v, _ := mirrorSide.Mirror().Value("deep", "nested", "leaf")
		return v == "v"
	})
}

func TestSetWritesThroughToChild(t *testing.T) {
	a, b := channel.Pipe()
	t.Cleanup(func() { a.Close() })

	child := testChild()
	NewEndpoint(a)
	host := NewEndpoint(b, WithChild(child), WithSync())

	if err := host.Set([]string{"b", "c"}, 5); err != nil {
		t.Fatal(err)
	}

	inner := child["b"].(map[string]any)
	if inner["c"] != 5 {
		t.Fatalf("child not updated in place: %v", inner["c"])
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	mirrorSide, host := newSyncedPair(t)

	waitFor(t, time.Second, "snapshot", func() bool {
		_, ok := mirrorSide.Mirror().Value("a")
		return ok
	})
	first := mirrorSide.Mirror().Tree()

	if err := host.PushSnapshot(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	second := mirrorSide.Mirror().Tree()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same snapshot produced different trees:\n%v\n%v", first, second)
	}
}

func TestSetRequiresSync(t *testing.T) {
	a, b := channel.Pipe()
	t.Cleanup(func() { a.Close() })
	NewEndpoint(a)
	host := NewEndpoint(b, WithChild(testChild()))

	if err := host.Set([]string{"a"}, 2); err == nil {
		t.Fatal("expect error when sync is not enabled")
	}
}

func TestBuildDataTreeSkipsFunctions(t *testing.T) {
	type inner struct {
		C     int
		OnFoo func()
	}
	type root struct {
		A      int
		Nested inner
		hidden string
	}

	tree := buildDataTree(&root{A: 1, Nested: inner{C: 2, OnFoo: func() {}}, hidden: "x"})

	want := map[string]any{
		"A":      1,
		"Nested": map[string]any{"C": 2},
	}
	if !reflect.DeepEqual(tree, want) {
		t.Fatalf("tree = %v, want %v", tree, want)
	}
}

func TestSetByPathIdempotent(t *testing.T) {
	tree := map[string]any{"a": 1.0}
	setByPath(tree, []string{"b", "c"}, 5)
	setByPath(tree, []string{"b", "c"}, 5)

	want := map[string]any{"a": 1.0, "b": map[string]any{"c": 5}}
	if !reflect.DeepEqual(tree, want) {
		t.Fatalf("tree = %v, want %v", tree, want)
	}
}
