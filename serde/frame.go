package serde

import (
	"errors"
	"fmt"

	"github.com/CefBoud/kafkamux/types"
)

// ErrUnknownFrameType is returned for a frame whose type byte is not a known FrameType
var ErrUnknownFrameType = errors.New("serde: unknown frame type")

// EncodeFrame encodes f as
// type(int8) routeId(int64) streamId(int64) traceId(int64) authorization(int64)
// flags(int8) payload(compact bytes) extension(compact bytes, null when absent).
func EncodeFrame(f types.Frame) []byte {
	e := NewEncoder()
	e.PutInt8(uint8(f.Type))
	e.PutInt64(uint64(f.RouteID))
	e.PutInt64(uint64(f.StreamID))
	e.PutInt64(uint64(f.TraceID))
	e.PutInt64(uint64(f.Authorization))
	e.PutInt8(f.Flags)
	e.PutCompactBytes(f.Payload)
	e.PutCompactBytes(f.Extension)
	return e.Bytes()
}

// DecodeFrame decodes a frame produced by EncodeFrame. Payload and Extension alias b.
func DecodeFrame(b []byte) (types.Frame, error) {
	d := NewDecoder(b)
	f := types.Frame{
		Type:          types.FrameType(d.Int8()),
		RouteID:       d.Int64(),
		StreamID:      d.Int64(),
		TraceID:       d.Int64(),
		Authorization: d.Int64(),
		Flags:         d.UInt8(),
		Payload:       d.CompactBytes(),
		Extension:     d.CompactBytes(),
	}
	if err := d.Err(); err != nil {
		return types.Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Type < types.FrameBegin || f.Type > types.FrameReset {
		return types.Frame{}, fmt.Errorf("%w: %d", ErrUnknownFrameType, f.Type)
	}
	return f, nil
}
