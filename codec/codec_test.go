package codec

import (
	"bytes"
	"reflect"
	"testing"
)

func TestGetCodec(t *testing.T) {
	if GetCodec(CodecTypeJSON).Type() != CodecTypeJSON {
		t.Fatal("expected JSON codec")
	}
	if GetCodec(CodecTypeCBOR).Type() != CodecTypeCBOR {
		t.Fatal("expected CBOR codec")
	}
}

func TestCBORDeterministic(t *testing.T) {
	// Same logical tree must produce identical bytes, so repeated snapshots
	// of unchanged state are byte-identical.
	c := &CBORCodec{}
	tree := map[string]any{"b": map[string]any{"c": 2}, "a": 1, "z": "end"}

	first, err := c.Marshal(tree)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Marshal(tree)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("deterministic encoding produced different bytes")
	}
}

func TestCBORDefaultMapType(t *testing.T) {
	// Any-typed decode targets must come back as map[string]any — the mirror
	// tree, set-by-path, and cloneTree all depend on that shape.
	c := &CBORCodec{}
	data, err := c.Marshal(map[string]any{"outer": map[string]any{"inner": "v"}})
	if err != nil {
		t.Fatal(err)
	}

	var decoded any
	if err := c.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", decoded)
	}
	if _, ok := outer["outer"].(map[string]any); !ok {
		t.Fatalf("expected nested map[string]any, got %T", outer["outer"])
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c := &JSONCodec{}
	in := map[string]any{"path": []any{"b", "c"}, "value": 5.0}

	data, err := c.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch: %v != %v", in, out)
	}
}
