package protocol

import (
	"github.com/CefBoud/kafkamux/state"
	"github.com/CefBoud/kafkamux/types"
)

// Sender delivers frames back to the downstream side of a stream.
type Sender interface {
	Send(f types.Frame)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(f types.Frame)

// Send calls fn(f).
func (fn SenderFunc) Send(f types.Frame) { fn(f) }

// Stream receives the remaining frames of a stream accepted by a Handler.
type Stream interface {
	StreamID() int64
	RouteID() int64
	Kind() types.Kind
	Lifecycle() state.Lifecycle

	OnData(f types.Frame)
	OnEnd(f types.Frame)
	OnAbort(f types.Frame)
	// OnReset is called when downstream rejects the reply direction.
	OnReset(f types.Frame)
}

// Handler opens streams of one kind. raw is the encoded BEGIN frame exactly
// as received. A nil Stream means the handler refused it.
type Handler interface {
	NewStream(raw []byte, sender Sender) Stream
}

// GroupHandler is the GROUP handler, which also follows binding attachment.
type GroupHandler interface {
	Handler
	OnAttached(b *Binding)
	OnDetached(bindingID int64)
}

// Handlers names one handler per stream kind.
type Handlers struct {
	Meta        Handler
	Describe    Handler
	Group       GroupHandler
	Consumer    Handler
	OffsetFetch Handler
	Fetch       Handler
	Produce     Handler
	Merged      Handler
	Bootstrap   Handler
}
