// Package cache implements the per-kind stream handlers. Streams of the same
// route that need the same upstream data share one fanout, found through the
// route's registries.
//
// Handlers, fanouts and streams are driven by a single goroutine.
package cache

import (
	"github.com/CefBoud/kafkamux/logging"
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/route"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/storage"
	"github.com/CefBoud/kafkamux/types"
)

var logger = logging.Named("cache")

// Config holds what handlers depend on. Each handler only receives the parts it uses.
type Config struct {
	Bindings protocol.BindingLookup
	Indexes  *route.Indexes
	Upstream Upstream
	Offsets  *storage.OffsetStore
}

// Handlers is the full set of handlers built from one Config.
type Handlers struct {
	Meta        *MetaHandler
	Describe    *DescribeHandler
	Group       *GroupHandler
	Consumer    *ConsumerHandler
	OffsetFetch *OffsetFetchHandler
	Fetch       *FetchHandler
	Produce     *ProduceHandler
	Merged      *MergedHandler
	Bootstrap   *BootstrapHandler

	indexes *route.Indexes
}

// New builds every handler.
func New(cfg Config) *Handlers {
	h := &Handlers{
		Meta:        NewMetaHandler(cfg.Bindings, cfg.Indexes, cfg.Upstream),
		Describe:    NewDescribeHandler(cfg.Bindings, cfg.Indexes, cfg.Upstream),
		Group:       NewGroupHandler(),
		Consumer:    NewConsumerHandler(cfg.Bindings, cfg.Indexes, cfg.Offsets),
		OffsetFetch: NewOffsetFetchHandler(cfg.Bindings, cfg.Offsets),
		Fetch:       NewFetchHandler(cfg.Bindings, cfg.Indexes, cfg.Upstream),
		Produce:     NewProduceHandler(cfg.Bindings, cfg.Indexes, cfg.Upstream),
		indexes:     cfg.Indexes,
	}
	h.Merged = NewMergedHandler(cfg.Bindings, h.Fetch, h.Meta)
	h.Bootstrap = NewBootstrapHandler(cfg.Bindings, h.Meta)
	return h
}

// Protocol returns the handlers in the form the dispatcher registers.
func (h *Handlers) Protocol() protocol.Handlers {
	return protocol.Handlers{
		Meta:        h.Meta,
		Describe:    h.Describe,
		Group:       h.Group,
		Consumer:    h.Consumer,
		OffsetFetch: h.OffsetFetch,
		Fetch:       h.Fetch,
		Produce:     h.Produce,
		Merged:      h.Merged,
		Bootstrap:   h.Bootstrap,
	}
}

// Fanouts returns the number of live fanouts of every kind on routeID.
func (h *Handlers) Fanouts(routeID int64) int {
	return h.Meta.Fanouts(routeID) +
		h.Describe.Fanouts(routeID) +
		h.Consumer.Fanouts(routeID) +
		h.Fetch.Fanouts(routeID) +
		h.Produce.Fanouts(routeID)
}

// ReleaseRoute drops the registries of routeID once no fanout uses them.
// Topic keys handed out before are invalid afterwards, which is safe since
// only fanouts hold them.
func (h *Handlers) ReleaseRoute(routeID int64) bool {
	if h.indexes == nil || h.Fanouts(routeID) > 0 {
		return false
	}
	if _, ok := h.indexes.Lookup(routeID); !ok {
		return false
	}
	h.indexes.Remove(routeID)
	logger.Debug("route released", "route", routeID)
	return true
}

// opening is a decoded BEGIN frame with its binding.
type opening struct {
	frame   types.Frame
	kind    types.Kind
	payload []byte
	binding *protocol.Binding
}

// open decodes raw and finds its binding. The dispatcher already validated
// the extension, so failures here only come from direct callers.
func open(raw []byte, kind types.Kind, bindings protocol.BindingLookup) (opening, bool) {
	frame, err := serde.DecodeFrame(raw)
	if err != nil {
		logger.Debug("bad begin frame", "kind", kind, "error", err)
		return opening{}, false
	}
	ex, err := serde.DecodeBeginEx(frame.Extension)
	if err != nil || ex.Kind != kind {
		logger.Debug("bad begin extension", "kind", kind, "error", err)
		return opening{}, false
	}
	o := opening{frame: frame, kind: kind, payload: ex.Payload}
	if bindings != nil {
		b, ok := bindings(frame.RouteID)
		if !ok {
			logger.Debug("no binding", "kind", kind, "route", frame.RouteID)
			return opening{}, false
		}
		o.binding = b
	}
	return o, true
}

// resolve returns the route serving topic.
func (o opening) resolve(topic string) (*protocol.Route, bool) {
	if o.binding == nil {
		return &protocol.Route{ID: o.frame.RouteID}, true
	}
	r := o.binding.Resolve(topic)
	if r == nil {
		logger.Debug("no route", "kind", o.kind, "binding", o.binding.ID, "topic", topic)
		return nil, false
	}
	return r, true
}

// topicOptions returns the binding options for topic, defaulting to none.
func (o opening) topicOptions(topic string) protocol.TopicOptions {
	if o.binding != nil {
		if opts, ok := o.binding.Topic(topic); ok {
			return opts
		}
	}
	return protocol.TopicOptions{Name: topic}
}
