package cache

import (
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/state"
	"github.com/CefBoud/kafkamux/types"
)

// stream holds what every kind of stream shares: ids, the downstream sender
// and the lifecycle. The reply helpers keep the lifecycle in step with the
// frames they send.
type stream struct {
	kind          types.Kind
	routeID       int64
	initialID     int64
	replyID       int64
	traceID       int64
	authorization int64
	sender        protocol.Sender
	lifecycle     state.Lifecycle
}

func newStream(o opening, sender protocol.Sender) stream {
	return stream{
		kind:          o.kind,
		routeID:       o.frame.RouteID,
		initialID:     o.frame.StreamID,
		replyID:       types.ReplyStreamID(o.frame.StreamID),
		traceID:       o.frame.TraceID,
		authorization: o.frame.Authorization,
		sender:        sender,
		lifecycle:     state.Lifecycle{}.OpenInitial(),
	}
}

func (s *stream) StreamID() int64 { return s.initialID }
func (s *stream) RouteID() int64 { return s.routeID }
func (s *stream) Kind() types.Kind { return s.kind }
func (s *stream) Lifecycle() state.Lifecycle { return s.lifecycle }

func (s *stream) frame(t types.FrameType, streamID int64) types.Frame {
	return types.Frame{
		Type:          t,
		RouteID:       s.routeID,
		StreamID:      streamID,
		TraceID:       s.traceID,
		Authorization: s.authorization,
	}
}

func (s *stream) doReplyBegin(extension []byte) {
	if s.lifecycle.ReplyOpening() {
		return
	}
	f := s.frame(types.FrameBegin, s.replyID)
	f.Extension = extension
	s.lifecycle = s.lifecycle.OpenReply()
	s.sender.Send(f)
}

func (s *stream) doReplyData(flags uint8, payload, extension []byte) {
	if !s.lifecycle.ReplyOpened() || s.lifecycle.ReplyClosing() {
		return
	}
	f := s.frame(types.FrameData, s.replyID)
	f.Flags = flags
	f.Payload = payload
	f.Extension = extension
	s.sender.Send(f)
}

func (s *stream) doReplyEnd() {
	if s.lifecycle.ReplyClosed() {
		return
	}
	s.doReplyBegin(nil)
	s.lifecycle = s.lifecycle.CloseReply()
	s.sender.Send(s.frame(types.FrameEnd, s.replyID))
}

// doReplyAbort aborts an opened reply. A reply that never opened is simply marked closed.
func (s *stream) doReplyAbort(err protocol.Error) {
	if s.lifecycle.ReplyClosed() {
		return
	}
	if !s.lifecycle.ReplyOpening() {
		s.lifecycle = s.lifecycle.CloseReply()
		return
	}
	f := s.frame(types.FrameAbort, s.replyID)
	f.Extension = serde.EncodeResetEx(types.ResetEx{ErrorCode: err.Code})
	s.lifecycle = s.lifecycle.AbortingReply().CloseReply()
	s.sender.Send(f)
}

func (s *stream) doInitialReset(err protocol.Error) {
	if s.lifecycle.InitialClosed() {
		return
	}
	f := s.frame(types.FrameReset, s.initialID)
	f.Extension = serde.EncodeResetEx(types.ResetEx{ErrorCode: err.Code})
	s.lifecycle = s.lifecycle.CloseInitial()
	s.sender.Send(f)
}

func (s *stream) onInitialEnd() {
	s.lifecycle = s.lifecycle.CloseInitial()
}

func (s *stream) onReplyReset() {
	s.lifecycle = s.lifecycle.AbortingReply().CloseReply()
}

// cleanup terminates both directions with err.
func (s *stream) cleanup(err protocol.Error) {
	s.doReplyAbort(err)
	s.doInitialReset(err)
}
