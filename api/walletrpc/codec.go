package walletrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered with grpc-go's encoding registry and selected
// via grpc.ForceServerCodec/grpc.ForceCodec on both ends of the
// connection, replacing the "proto" codec a protoc-gen-go-grpc build
// would otherwise default to.
const codecName = "json"

// jsonCodec implements encoding.Codec (formerly encoding.CodecV2's
// predecessor interface) over the plain message structs in messages.go,
// standing in for the protobuf wire format this pack's generator output
// is missing.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("walletrpc: marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("walletrpc: unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Codec returns the encoding.Codec implementation used to force JSON
// framing on both ends of the replication RPC, via
// grpc.ForceCodec/grpc.ForceServerCodec.
func Codec() encoding.Codec {
	return jsonCodec{}
}
