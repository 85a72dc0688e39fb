package cache

import (
	"slices"

	"github.com/CefBoud/kafkamux/metrics"
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/route"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
)

// DescribeHandler serves DESCRIBE streams. Streams of one route describing
// the same topic share a describeFanout.
type DescribeHandler struct {
	bindings protocol.BindingLookup
	indexes  *route.Indexes
	upstream Upstream
	fanouts  map[int64]*route.Fanouts[route.TopicKey, *describeFanout]
}

// NewDescribeHandler creates a DESCRIBE handler.
func NewDescribeHandler(bindings protocol.BindingLookup, indexes *route.Indexes, upstream Upstream) *DescribeHandler {
	return &DescribeHandler{
		bindings: bindings,
		indexes:  indexes,
		upstream: upstream,
		fanouts:  make(map[int64]*route.Fanouts[route.TopicKey, *describeFanout]),
	}
}

// NewStream opens a DESCRIBE stream on the topic named in its extension.
func (h *DescribeHandler) NewStream(raw []byte, sender protocol.Sender) protocol.Stream {
	o, ok := open(raw, types.KindDescribe, h.bindings)
	if !ok {
		return nil
	}
	ex, err := serde.DecodeDescribeBeginEx(o.payload)
	if err != nil || ex.Topic == "" {
		return nil
	}
	r, ok := o.resolve(ex.Topic)
	if !ok {
		return nil
	}

	s := &describeStream{stream: newStream(o, sender)}
	if len(ex.Configs) > 0 {
		s.filter = make(map[string]struct{}, len(ex.Configs))
		for _, name := range ex.Configs {
			s.filter[name] = struct{}{}
		}
	}
	s.fanout = h.supplyFanout(r.ID, ex.Topic)
	s.fanout.join(s)
	return s
}

func (h *DescribeHandler) supplyFanout(routeID int64, topic string) *describeFanout {
	fanouts, ok := h.fanouts[routeID]
	if !ok {
		fanouts = route.NewFanouts[route.TopicKey, *describeFanout]()
		h.fanouts[routeID] = fanouts
	}
	index := h.indexes.Supply(routeID)
	fanout, created := fanouts.GetOrInsert(index.Topics.Intern(topic), func(key route.TopicKey) *describeFanout {
		return &describeFanout{handler: h, routeID: routeID, key: key, topic: topic}
	})
	if created {
		metrics.Incr(metrics.FanoutCreated, metrics.Label("kind", "describe"))
	}
	return fanout
}

// Fanouts returns the number of live describe fanouts on routeID.
func (h *DescribeHandler) Fanouts(routeID int64) int {
	if fanouts, ok := h.fanouts[routeID]; ok {
		return fanouts.Len()
	}
	return 0
}

func (h *DescribeHandler) evict(f *describeFanout) {
	fanouts, ok := h.fanouts[f.routeID]
	if !ok {
		return
	}
	if current, ok := fanouts.Get(f.key); !ok || current != f {
		return
	}
	fanouts.Remove(f.key)
	if fanouts.Len() == 0 {
		delete(h.fanouts, f.routeID)
	}
	metrics.Incr(metrics.FanoutEvicted, metrics.Label("kind", "describe"))
}

type describeFanout struct {
	handler *DescribeHandler
	routeID int64
	key     route.TopicKey
	topic   string

	upstream    UpstreamHandle
	replyOpened bool
	latest      *types.DescribeDataEx
	members     []*describeStream
	evicted     bool
}

func (f *describeFanout) join(s *describeStream) {
	f.members = append(f.members, s)
	if f.upstream == nil {
		f.upstream = f.handler.upstream.Open(UpstreamRequest{
			RouteID:   f.routeID,
			Kind:      types.KindDescribe,
			Topic:     f.topic,
			Partition: -1,
		}, f)
		return
	}
	if f.replyOpened {
		s.doReplyBegin(nil)
		if f.latest != nil {
			s.onConfigs(*f.latest)
		}
	}
}

func (f *describeFanout) leave(s *describeStream) {
	i := slices.Index(f.members, s)
	if i < 0 {
		return
	}
	f.members = slices.Delete(f.members, i, i+1)
	if len(f.members) == 0 {
		f.evict()
	}
}

func (f *describeFanout) evict() {
	if f.evicted {
		return
	}
	f.evicted = true
	if f.upstream != nil {
		f.upstream.Close()
		f.upstream = nil
	}
	f.handler.evict(f)
}

func (f *describeFanout) OnUpstreamBegin() {
	f.replyOpened = true
	for _, s := range slices.Clone(f.members) {
		s.doReplyBegin(nil)
	}
}

func (f *describeFanout) OnUpstreamData(payload, extension []byte) {
	ex, err := serde.DecodeDescribeDataEx(extension)
	if err != nil {
		logger.Warn("dropping describe data with bad extension", "topic", f.topic, "error", err)
		return
	}
	f.latest = &ex
	for _, s := range slices.Clone(f.members) {
		s.onConfigs(ex)
	}
}

func (f *describeFanout) OnUpstreamEnd() {
	members := slices.Clone(f.members)
	f.upstream = nil
	f.replyOpened = false
	for _, s := range members {
		s.doReplyEnd()
	}
}

func (f *describeFanout) OnUpstreamReset(err protocol.Error) {
	members := f.members
	f.members = nil
	f.upstream = nil
	for _, s := range members {
		s.cleanup(err)
	}
	f.evict()
}

// describeStream is a DESCRIBE stream, optionally limited to some config names.
type describeStream struct {
	stream
	fanout *describeFanout
	filter map[string]struct{}
}

func (s *describeStream) onConfigs(ex types.DescribeDataEx) {
	if s.filter != nil {
		filtered := types.DescribeDataEx{}
		for _, c := range ex.Configs {
			if _, ok := s.filter[c.Name]; ok {
				filtered.Configs = append(filtered.Configs, c)
			}
		}
		ex = filtered
	}
	s.doReplyData(types.FlagInit|types.FlagFin, nil, serde.EncodeDescribeDataEx(ex))
}

func (s *describeStream) OnData(f types.Frame) {}

func (s *describeStream) OnEnd(f types.Frame) {
	s.onInitialEnd()
	s.fanout.leave(s)
	s.doReplyEnd()
}

func (s *describeStream) OnAbort(f types.Frame) {
	s.onInitialEnd()
	s.fanout.leave(s)
	s.doReplyAbort(protocol.ErrNone)
}

func (s *describeStream) OnReset(f types.Frame) {
	s.onReplyReset()
	s.fanout.leave(s)
	s.doInitialReset(protocol.ErrNone)
}
