package ws

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Encoder converts JSON envelopes to the binary wire format
// (google.protobuf.Struct + Zstd) and back.
type Encoder struct {
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
}

// NewEncoder creates a new Encoder with Zstd compression.
func NewEncoder() (*Encoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxMessageSize*8))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Encoder{zstdEncoder: enc, zstdDecoder: dec}, nil
}

// Encode converts a JSON object to Zstd-compressed protobuf.
func (e *Encoder) Encode(jsonData []byte) ([]byte, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(jsonData, &s); err != nil {
		return nil, fmt.Errorf("convert json to struct: %w", err)
	}

	pbData, err := proto.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("marshal protobuf: %w", err)
	}

	return e.zstdEncoder.EncodeAll(pbData, nil), nil
}

// Decode reverses Encode, returning the JSON object.
func (e *Encoder) Decode(data []byte) ([]byte, error) {
	pbData, err := e.zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress frame: %w", err)
	}

	var s structpb.Struct
	if err := proto.Unmarshal(pbData, &s); err != nil {
		return nil, fmt.Errorf("unmarshal protobuf: %w", err)
	}

	jsonData, err := protojson.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("convert struct to json: %w", err)
	}
	return jsonData, nil
}

// Close releases encoder resources.
func (e *Encoder) Close() {
	if e.zstdEncoder != nil {
		e.zstdEncoder.Close()
	}
	if e.zstdDecoder != nil {
		e.zstdDecoder.Close()
	}
}
