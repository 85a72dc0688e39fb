package cache

import (
	"slices"

	"github.com/CefBoud/kafkamux/metrics"
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/route"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/storage"
	"github.com/CefBoud/kafkamux/types"
)

type consumerKey struct {
	group types.GroupID
	topic route.TopicKey
}

// ConsumerHandler serves CONSUMER streams. Initial DATA frames carry offset
// commits, which are stored and then announced to every stream of the same
// group and topic on the route.
type ConsumerHandler struct {
	bindings protocol.BindingLookup
	indexes  *route.Indexes
	offsets  *storage.OffsetStore
	fanouts  map[int64]*route.Fanouts[consumerKey, *consumerFanout]
}

// NewConsumerHandler creates a CONSUMER handler. Without an offset store every stream is refused.
func NewConsumerHandler(bindings protocol.BindingLookup, indexes *route.Indexes, offsets *storage.OffsetStore) *ConsumerHandler {
	return &ConsumerHandler{
		bindings: bindings,
		indexes:  indexes,
		offsets:  offsets,
		fanouts:  make(map[int64]*route.Fanouts[consumerKey, *consumerFanout]),
	}
}

// NewStream opens a CONSUMER stream for the group and topic in its extension.
func (h *ConsumerHandler) NewStream(raw []byte, sender protocol.Sender) protocol.Stream {
	if h.offsets == nil {
		return nil
	}
	o, ok := open(raw, types.KindConsumer, h.bindings)
	if !ok {
		return nil
	}
	ex, err := serde.DecodeConsumerBeginEx(o.payload)
	if err != nil || ex.GroupID == "" || ex.Topic == "" {
		return nil
	}
	r, ok := o.resolve(ex.Topic)
	if !ok {
		return nil
	}
	s := &consumerStream{
		stream:     newStream(o, sender),
		handler:    h,
		group:      ex.GroupID,
		topic:      ex.Topic,
		partitions: ex.Partitions,
	}
	s.fanout = h.supplyFanout(r.ID, ex.GroupID, ex.Topic)
	s.fanout.join(s)
	return s
}

func (h *ConsumerHandler) supplyFanout(routeID int64, group types.GroupID, topic string) *consumerFanout {
	fanouts, ok := h.fanouts[routeID]
	if !ok {
		fanouts = route.NewFanouts[consumerKey, *consumerFanout]()
		h.fanouts[routeID] = fanouts
	}
	key := consumerKey{group: group, topic: h.indexes.Supply(routeID).Topics.Intern(topic)}
	fanout, created := fanouts.GetOrInsert(key, func(key consumerKey) *consumerFanout {
		return &consumerFanout{handler: h, routeID: routeID, key: key}
	})
	if created {
		metrics.Incr(metrics.FanoutCreated, metrics.Label("kind", "consumer"))
	}
	return fanout
}

// Fanouts returns the number of live consumer fanouts on routeID.
func (h *ConsumerHandler) Fanouts(routeID int64) int {
	if fanouts, ok := h.fanouts[routeID]; ok {
		return fanouts.Len()
	}
	return 0
}

func (h *ConsumerHandler) evict(f *consumerFanout) {
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
	metrics.Incr(metrics.FanoutEvicted, metrics.Label("kind", "consumer"))
}

// consumerFanout groups the streams of one group and topic on a route.
type consumerFanout struct {
	handler *ConsumerHandler
	routeID int64
	key     consumerKey
	members []*consumerStream
}

func (f *consumerFanout) join(s *consumerStream) {
	f.members = append(f.members, s)
	s.doReplyBegin(nil)
}

func (f *consumerFanout) leave(s *consumerStream) {
	i := slices.Index(f.members, s)
	if i < 0 {
		return
	}
	f.members = slices.Delete(f.members, i, i+1)
	if len(f.members) == 0 {
		f.handler.evict(f)
	}
}

// committed announces offsets to the members assigned their partitions.
func (f *consumerFanout) committed(offsets []types.PartitionOffset) {
	for _, m := range slices.Clone(f.members) {
		var visible []types.PartitionOffset
		for _, o := range offsets {
			if m.assigned(o.PartitionID()) {
				visible = append(visible, o)
			}
		}
		if len(visible) > 0 {
			m.doReplyData(types.FlagInit|types.FlagFin, serde.EncodePartitionOffsets(visible), nil)
		}
	}
}

// consumerStream commits offsets of one group and topic. An empty partition
// list means every partition of the topic.
type consumerStream struct {
	stream
	handler    *ConsumerHandler
	fanout     *consumerFanout
	group      types.GroupID
	topic      string
	partitions []int32
}

func (s *consumerStream) assigned(partition int32) bool {
	return len(s.partitions) == 0 || slices.Contains(s.partitions, partition)
}

func (s *consumerStream) OnData(f types.Frame) {
	if s.lifecycle.InitialClosed() {
		return
	}
	offsets, err := serde.DecodePartitionOffsets(f.Payload)
	if err != nil {
		logger.Debug("bad offset commit", "stream", s.initialID, "error", err)
		s.fail(protocol.ErrCorruptMessage)
		return
	}
	for _, o := range offsets {
		if o.Topic() != s.topic || !s.assigned(o.PartitionID()) {
			s.fail(protocol.ErrUnknownTopicOrPartition)
			return
		}
	}
	for _, o := range offsets {
		if err := s.handler.offsets.Commit(s.group, o); err != nil {
			logger.Error("offset commit failed", "group", s.group, "topic", s.topic, "partition", o.PartitionID(), "error", err)
			s.fail(protocol.ErrUnknownServerError)
			return
		}
	}
	s.fanout.committed(offsets)
}

func (s *consumerStream) fail(err protocol.Error) {
	s.fanout.leave(s)
	s.cleanup(err)
}

func (s *consumerStream) OnEnd(f types.Frame) {
	s.onInitialEnd()
	s.fanout.leave(s)
	s.doReplyEnd()
}

func (s *consumerStream) OnAbort(f types.Frame) {
	s.onInitialEnd()
	s.fanout.leave(s)
	s.doReplyAbort(protocol.ErrNone)
}

func (s *consumerStream) OnReset(f types.Frame) {
	s.onReplyReset()
	s.fanout.leave(s)
	s.doInitialReset(protocol.ErrNone)
}
