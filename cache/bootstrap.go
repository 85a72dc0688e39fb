package cache

import (
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
)

// BootstrapHandler serves BOOTSTRAP streams. A bootstrap stream is a META
// member that keeps the topic's metadata fanout, and so its leader table,
// alive while no client reads it.
type BootstrapHandler struct {
	bindings protocol.BindingLookup
	meta     *MetaHandler
}

// NewBootstrapHandler creates a BOOTSTRAP handler on top of the meta handler.
func NewBootstrapHandler(bindings protocol.BindingLookup, meta *MetaHandler) *BootstrapHandler {
	return &BootstrapHandler{bindings: bindings, meta: meta}
}

func (h *BootstrapHandler) NewStream(raw []byte, sender protocol.Sender) protocol.Stream {
	o, ok := open(raw, types.KindBootstrap, h.bindings)
	if !ok {
		return nil
	}
	ex, err := serde.DecodeBootstrapBeginEx(o.payload)
	if err != nil || ex.Topic == "" {
		return nil
	}
	r, ok := o.resolve(ex.Topic)
	if !ok {
		return nil
	}
	s := &metaStream{stream: newStream(o, sender)}
	s.fanout = h.meta.supplyFanout(r.ID, ex.Topic)
	s.fanout.join(s)
	return s
}
