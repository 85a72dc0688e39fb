package types

import "fmt"

// FrameType identifies the kind of frame exchanged on a stream.
type FrameType int8

// Frame types
const (
	FrameBegin FrameType = 1
	FrameData  FrameType = 2
	FrameEnd   FrameType = 3
	FrameAbort FrameType = 4
	FrameReset FrameType = 5
)

var frameTypeNames = map[FrameType]string{
	FrameBegin: "BEGIN",
	FrameData:  "DATA",
	FrameEnd:   "END",
	FrameAbort: "ABORT",
	FrameReset: "RESET",
}

func (t FrameType) String() string {
	if name, ok := frameTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FRAME(%d)", int8(t))
}

// Data frame flags
const (
	FlagInit uint8 = 1 << 0
	FlagFin  uint8 = 1 << 1
)

// Frame is one message on a stream. Extension is nil when absent.
type Frame struct {
	Type          FrameType
	RouteID       int64
	StreamID      int64
	TraceID       int64
	Authorization int64
	Flags         uint8
	Payload       []byte
	Extension     []byte
}

// Init reports whether the frame starts a multi-segment message.
func (f Frame) Init() bool { return f.Flags&FlagInit != 0 }

// Fin reports whether the frame completes a multi-segment message.
func (f Frame) Fin() bool { return f.Flags&FlagFin != 0 }

// Reply reports whether the stream id belongs to the reply direction.
// Initial stream ids are odd, reply stream ids are even.
func (f Frame) Reply() bool { return f.StreamID&1 == 0 }

// ReplyStreamID returns the reply-direction id paired with an initial stream id.
func ReplyStreamID(initialID int64) int64 {
	return initialID &^ 1
}

func (f Frame) String() string {
	return fmt.Sprintf("%s route=%d stream=%d flags=%d payload=%d ext=%d", f.Type, f.RouteID, f.StreamID, f.Flags, len(f.Payload), len(f.Extension))
}
