package workergrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype every call on this service must use
// (content-type "application/grpc+json" on the wire), since there is no
// protoc toolchain here to generate protobuf-codec-compatible types.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements google.golang.org/grpc/encoding.Codec by
// marshaling the plain workerpb structs with encoding/json, in place of
// the protobuf wire format a protoc-generated service would use.
type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
