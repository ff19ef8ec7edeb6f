// Package codec provides the pluggable serialization formats used for message
// payloads. The channel layer treats payloads as opaque bytes; both endpoints
// of a connection must be configured with the same codec.
package codec

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeCBOR CodecType = 1
)

type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=CBOR
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeCBOR {
		return &CBORCodec{}
	}

	return &JSONCodec{}
}
