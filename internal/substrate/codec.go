package substrate

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// gobCodec is a minimal grpc.encoding.Codec that marshals with encoding/gob
// instead of protobuf. There is no .proto schema for this runtime's
// put/get/atomic/collective traffic — its messages are fixed Go structs
// known at compile time on both ends, one per PE process, so there is
// nothing for a schema compiler to generate.
//
// Grounded on grpc-proxy's own reason for existing: a proxy cannot know its
// payloads' wire schema ahead of time, so it registers a pass-through codec
// instead of depending on generated protobuf types. Here the payloads are
// known, but the same technique — a codec registered by name and selected
// per-call via grpc.CallContentSubtype — avoids a protoc build step.
type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return codecName }

const codecName = "gob"

func init() {
	encoding.RegisterCodec(gobCodec{})
}
