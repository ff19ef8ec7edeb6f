package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical bytes,
// which keeps repeated snapshots of an unchanged tree byte-identical.
var encMode cbor.EncMode

// decMode is the CBOR decoder. DefaultMapType forces any-typed targets to
// decode as map[string]any — the mirror's cached tree is exactly that shape,
// and the CBOR default of map[interface{}]interface{} would break set-by-path.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORCodec serializes messages as CBOR. Smaller and faster than JSON,
// preserves []byte values without base64 round-trips.
type CBORCodec struct{}

func (c *CBORCodec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func (c *CBORCodec) Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

func (c *CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}
