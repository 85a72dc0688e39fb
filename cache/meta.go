package cache

import (
	"slices"

	"github.com/CefBoud/kafkamux/metrics"
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/route"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
)

// metaMember is anything subscribed to a meta fanout.
type metaMember interface {
	onMetaBegin()
	onMetaPartitions(ex types.MetaDataEx)
	onMetaEnd()
	onMetaReset(err protocol.Error)
}

// MetaHandler serves META streams. Streams of one route describing the same
// topic share a metaFanout, which also keeps the route's leader table current.
type MetaHandler struct {
	bindings protocol.BindingLookup
	indexes  *route.Indexes
	upstream Upstream
	fanouts  map[int64]*route.Fanouts[route.TopicKey, *metaFanout]
}

// NewMetaHandler creates a META handler.
func NewMetaHandler(bindings protocol.BindingLookup, indexes *route.Indexes, upstream Upstream) *MetaHandler {
	return &MetaHandler{
		bindings: bindings,
		indexes:  indexes,
		upstream: upstream,
		fanouts:  make(map[int64]*route.Fanouts[route.TopicKey, *metaFanout]),
	}
}

// NewStream opens a META stream on the topic named in its extension.
func (h *MetaHandler) NewStream(raw []byte, sender protocol.Sender) protocol.Stream {
	o, ok := open(raw, types.KindMeta, h.bindings)
	if !ok {
		return nil
	}
	ex, err := serde.DecodeMetaBeginEx(o.payload)
	if err != nil || ex.Topic == "" {
		return nil
	}
	r, ok := o.resolve(ex.Topic)
	if !ok {
		return nil
	}
	s := &metaStream{stream: newStream(o, sender)}
	s.fanout = h.supplyFanout(r.ID, ex.Topic)
	s.fanout.join(s)
	return s
}

func (h *MetaHandler) supplyFanout(routeID int64, topic string) *metaFanout {
	fanouts, ok := h.fanouts[routeID]
	if !ok {
		fanouts = route.NewFanouts[route.TopicKey, *metaFanout]()
		h.fanouts[routeID] = fanouts
	}
	index := h.indexes.Supply(routeID)
	fanout, created := fanouts.GetOrInsert(index.Topics.Intern(topic), func(key route.TopicKey) *metaFanout {
		return &metaFanout{
			handler: h,
			index:   index,
			key:     key,
			topic:   topic,
			leaders: index.Leaders.Supply(key),
		}
	})
	if created {
		metrics.Incr(metrics.FanoutCreated, metrics.Label("kind", "meta"))
	}
	return fanout
}

// Fanouts returns the number of live meta fanouts on routeID.
func (h *MetaHandler) Fanouts(routeID int64) int {
	if fanouts, ok := h.fanouts[routeID]; ok {
		return fanouts.Len()
	}
	return 0
}

func (h *MetaHandler) evict(f *metaFanout) {
	fanouts, ok := h.fanouts[f.index.RouteID]
	if !ok {
		return
	}
	if current, ok := fanouts.Get(f.key); !ok || current != f {
		return
	}
	fanouts.Remove(f.key)
	if fanouts.Len() == 0 {
		delete(h.fanouts, f.index.RouteID)
	}
	// leaders are only tracked while someone follows the topic metadata
	f.index.Leaders.Remove(f.key)
	metrics.Incr(metrics.FanoutEvicted, metrics.Label("kind", "meta"))
}

// metaFanout is the one upstream metadata subscription of a topic on a route.
type metaFanout struct {
	handler *MetaHandler
	index   *route.Index
	key     route.TopicKey
	topic   string
	leaders *route.LeaderTable

	upstream    UpstreamHandle
	replyOpened bool
	latest      *types.MetaDataEx
	members     []metaMember
	evicted     bool
}

func (f *metaFanout) join(m metaMember) {
	f.members = append(f.members, m)
	if f.upstream == nil {
		f.upstream = f.handler.upstream.Open(UpstreamRequest{
			RouteID:   f.index.RouteID,
			Kind:      types.KindMeta,
			Topic:     f.topic,
			Partition: -1,
		}, f)
		return
	}
	if f.replyOpened {
		m.onMetaBegin()
		if f.latest != nil {
			m.onMetaPartitions(*f.latest)
		}
	}
}

func (f *metaFanout) leave(m metaMember) {
	i := slices.Index(f.members, m)
	if i < 0 {
		return
	}
	f.members = slices.Delete(f.members, i, i+1)
	if len(f.members) == 0 {
		f.evict()
	}
}

func (f *metaFanout) evict() {
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

func (f *metaFanout) OnUpstreamBegin() {
	f.replyOpened = true
	for _, m := range slices.Clone(f.members) {
		m.onMetaBegin()
	}
}

// OnUpstreamData refreshes the leader table, dropping partitions no longer reported.
func (f *metaFanout) OnUpstreamData(payload, extension []byte) {
	ex, err := serde.DecodeMetaDataEx(extension)
	if err != nil {
		logger.Warn("dropping meta data with bad extension", "topic", f.topic, "error", err)
		return
	}
	reported := make(map[int32]struct{}, len(ex.Partitions))
	for _, p := range ex.Partitions {
		reported[p.PartitionID] = struct{}{}
		if f.leaders.Set(p.PartitionID, p.LeaderID) {
			logger.Debug("partition leader", "topic", f.topic, "partition", p.PartitionID, "leader", p.LeaderID)
		}
	}
	for _, partition := range f.leaders.Partitions() {
		if _, ok := reported[partition]; !ok {
			f.leaders.Delete(partition)
		}
	}
	f.latest = &ex
	for _, m := range slices.Clone(f.members) {
		m.onMetaPartitions(ex)
	}
}

func (f *metaFanout) OnUpstreamEnd() {
	members := slices.Clone(f.members)
	f.upstream = nil
	f.replyOpened = false
	for _, m := range members {
		m.onMetaEnd()
	}
}

func (f *metaFanout) OnUpstreamReset(err protocol.Error) {
	members := f.members
	f.members = nil
	f.upstream = nil
	for _, m := range members {
		m.onMetaReset(err)
	}
	if len(f.members) == 0 {
		f.evict()
	}
}

// metaStream is a META stream. Each metadata update is sent as one DATA frame.
type metaStream struct {
	stream
	fanout *metaFanout
}

func (s *metaStream) onMetaBegin() {
	s.doReplyBegin(nil)
}

func (s *metaStream) onMetaPartitions(ex types.MetaDataEx) {
	s.doReplyData(types.FlagInit|types.FlagFin, nil, serde.EncodeMetaDataEx(ex))
}

func (s *metaStream) onMetaEnd() {
	s.doReplyEnd()
}

func (s *metaStream) onMetaReset(err protocol.Error) {
	s.fanout.leave(s)
	s.cleanup(err)
}

func (s *metaStream) OnData(f types.Frame) {}

func (s *metaStream) OnEnd(f types.Frame) {
	s.onInitialEnd()
	s.fanout.leave(s)
	s.doReplyEnd()
}

func (s *metaStream) OnAbort(f types.Frame) {
	s.onInitialEnd()
	s.fanout.leave(s)
	s.doReplyAbort(protocol.ErrNone)
}

func (s *metaStream) OnReset(f types.Frame) {
	s.onReplyReset()
	s.fanout.leave(s)
	s.doInitialReset(protocol.ErrNone)
}
