package cache

import (
	"slices"

	"github.com/CefBoud/kafkamux/compress"
	"github.com/CefBoud/kafkamux/metrics"
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/route"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
)

// fetchMember is anything subscribed to a fetch fanout.
type fetchMember interface {
	fetchOffset() int64
	onFetchBegin()
	onFetchData(partition int32, offset int64, payload []byte)
	onFetchEnd()
	onFetchReset(err protocol.Error)
}

type fetchSubscription struct {
	member fetchMember
	next   int64
}

// FetchHandler serves FETCH streams. Streams of one route reading the same
// topic partition share a fetchFanout.
type FetchHandler struct {
	bindings protocol.BindingLookup
	indexes  *route.Indexes
	upstream Upstream
	fanouts  map[int64]*route.Fanouts[route.PartitionKey, *fetchFanout]
}

// NewFetchHandler creates a FETCH handler.
func NewFetchHandler(bindings protocol.BindingLookup, indexes *route.Indexes, upstream Upstream) *FetchHandler {
	return &FetchHandler{
		bindings: bindings,
		indexes:  indexes,
		upstream: upstream,
		fanouts:  make(map[int64]*route.Fanouts[route.PartitionKey, *fetchFanout]),
	}
}

// NewStream opens a FETCH stream on the topic partition named in its extension.
func (h *FetchHandler) NewStream(raw []byte, sender protocol.Sender) protocol.Stream {
	o, ok := open(raw, types.KindFetch, h.bindings)
	if !ok {
		return nil
	}
	ex, err := serde.DecodeFetchBeginEx(o.payload)
	if err != nil || ex.Topic == "" {
		return nil
	}
	r, ok := o.resolve(ex.Topic)
	if !ok {
		return nil
	}

	s := &fetchStream{
		stream:    newStream(o, sender),
		partition: ex.PartitionID,
		offset:    ex.PartitionOffset,
	}
	s.fanout = h.supplyFanout(r.ID, ex.Topic, ex.PartitionID, o.topicOptions(ex.Topic).Compression)
	s.fanout.join(s)
	return s
}

// supplyFanout returns the fanout of a topic partition on routeID, creating it if needed.
func (h *FetchHandler) supplyFanout(routeID int64, topic string, partition int32, codec compress.Codec) *fetchFanout {
	fanouts, ok := h.fanouts[routeID]
	if !ok {
		fanouts = route.NewFanouts[route.PartitionKey, *fetchFanout]()
		h.fanouts[routeID] = fanouts
	}
	index := h.indexes.Supply(routeID)
	key := index.Topics.PartitionKey(topic, partition)
	fanout, created := fanouts.GetOrInsert(key, func(key route.PartitionKey) *fetchFanout {
		topicKey, _ := key.Split()
		return &fetchFanout{
			handler:   h,
			index:     index,
			key:       key,
			topicKey:  topicKey,
			topic:     topic,
			partition: partition,
			codec:     codec,
			leader:    route.NoLeader,
			budget:    index.Budgets.Acquire(topicKey),
		}
	})
	if created {
		metrics.Incr(metrics.FanoutCreated, metrics.Label("kind", "fetch"))
	}
	return fanout
}

// Fanouts returns the number of live fetch fanouts on routeID.
func (h *FetchHandler) Fanouts(routeID int64) int {
	if fanouts, ok := h.fanouts[routeID]; ok {
		return fanouts.Len()
	}
	return 0
}

func (h *FetchHandler) evict(f *fetchFanout) {
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
	metrics.Incr(metrics.FanoutEvicted, metrics.Label("kind", "fetch"))
}

// fetchFanout is the one upstream subscription of a topic partition on a route.
type fetchFanout struct {
	handler   *FetchHandler
	index     *route.Index
	key       route.PartitionKey
	topicKey  route.TopicKey
	topic     string
	partition int32
	codec     compress.Codec
	leader    int32
	budget    route.BudgetID

	upstream    UpstreamHandle
	replyOpened bool
	nextOffset  int64
	subs        []*fetchSubscription
	evicted     bool
}

func (f *fetchFanout) currentLeader() int32 {
	if table, ok := f.index.Leaders.Lookup(f.topicKey); ok {
		if leader, ok := table.Leader(f.partition); ok {
			return leader
		}
	}
	return route.NoLeader
}

func (f *fetchFanout) join(member fetchMember) {
	leader := f.currentLeader()
	if leader != f.leader {
		f.leader = leader
		if len(f.subs) > 0 {
			logger.Debug("fetch leader changed", "topic", f.topic, "partition", f.partition, "leader", leader)
			f.resetAll(protocol.ErrNotLeaderOrFollower)
		}
	}

	sub := &fetchSubscription{member: member, next: member.fetchOffset()}
	switch {
	case sub.next == OffsetEarliest:
		sub.next = 0
	case sub.next == OffsetLatest && f.upstream != nil:
		sub.next = f.nextOffset
	case sub.next < 0:
		sub.next = 0
	}
	f.subs = append(f.subs, sub)

	if f.upstream == nil {
		f.openUpstream(member.fetchOffset())
	} else if f.replyOpened {
		member.onFetchBegin()
	}
}

func (f *fetchFanout) leave(member fetchMember) {
	i := slices.IndexFunc(f.subs, func(sub *fetchSubscription) bool { return sub.member == member })
	if i < 0 {
		return
	}
	f.subs = slices.Delete(f.subs, i, i+1)
	if len(f.subs) == 0 {
		f.evict()
	}
}

func (f *fetchFanout) openUpstream(offset int64) {
	f.replyOpened = false
	f.nextOffset = 0
	f.upstream = f.handler.upstream.Open(UpstreamRequest{
		RouteID:   f.index.RouteID,
		Kind:      types.KindFetch,
		Topic:     f.topic,
		Partition: f.partition,
		Offset:    offset,
		Leader:    f.leader,
		Budget:    f.budget,
		Codec:     f.codec,
	}, f)
}

func (f *fetchFanout) closeUpstream() {
	if f.upstream != nil {
		upstream := f.upstream
		f.upstream = nil
		upstream.Close()
	}
	f.replyOpened = false
}

// resetAll detaches every member and resets it with err. Members may rejoin.
func (f *fetchFanout) resetAll(err protocol.Error) {
	subs := f.subs
	f.subs = nil
	f.closeUpstream()
	for _, sub := range subs {
		sub.member.onFetchReset(err)
	}
}

// evict removes the empty fanout from its route synchronously.
func (f *fetchFanout) evict() {
	if f.evicted {
		return
	}
	f.evicted = true
	f.closeUpstream()
	f.index.Budgets.Release(f.topicKey)
	f.handler.evict(f)
}

func (f *fetchFanout) OnUpstreamBegin() {
	f.replyOpened = true
	for _, sub := range slices.Clone(f.subs) {
		sub.member.onFetchBegin()
	}
}

func (f *fetchFanout) OnUpstreamData(payload, extension []byte) {
	ex, err := serde.DecodeFetchDataEx(extension)
	if err != nil {
		logger.Warn("dropping fetch data with bad extension", "topic", f.topic, "error", err)
		return
	}
	if ex.Offset+1 > f.nextOffset {
		f.nextOffset = ex.Offset + 1
	}
	if c := compress.For(f.codec); c != nil && f.codec != compress.None {
		payload, err = c.Decompress(payload)
		if err != nil {
			logger.Warn("fetch data does not decompress", "topic", f.topic, "codec", f.codec, "error", err)
			f.resetAll(protocol.ErrCorruptMessage)
			f.evictIfEmpty()
			return
		}
	}
	for _, sub := range slices.Clone(f.subs) {
		if ex.Offset < sub.next {
			continue
		}
		sub.next = ex.Offset + 1
		sub.member.onFetchData(f.partition, ex.Offset, payload)
	}
}

func (f *fetchFanout) OnUpstreamEnd() {
	subs := slices.Clone(f.subs)
	f.closeUpstream()
	for _, sub := range subs {
		sub.member.onFetchEnd()
	}
}

func (f *fetchFanout) OnUpstreamReset(err protocol.Error) {
	f.resetAll(err)
	f.evictIfEmpty()
}

func (f *fetchFanout) evictIfEmpty() {
	if len(f.subs) == 0 {
		f.evict()
	}
}

// fetchStream is a FETCH stream on one topic partition.
type fetchStream struct {
	stream
	fanout    *fetchFanout
	partition int32
	offset    int64
}

func (s *fetchStream) fetchOffset() int64 { return s.offset }

func (s *fetchStream) onFetchBegin() {
	s.doReplyBegin(nil)
}

func (s *fetchStream) onFetchData(partition int32, offset int64, payload []byte) {
	s.offset = offset + 1
	s.doReplyData(types.FlagInit|types.FlagFin, payload,
		serde.EncodeFetchDataEx(types.FetchDataEx{PartitionID: partition, Offset: offset}))
}

func (s *fetchStream) onFetchEnd() {
	s.doReplyEnd()
}

func (s *fetchStream) onFetchReset(err protocol.Error) {
	s.fanout.leave(s)
	s.cleanup(err)
}

func (s *fetchStream) OnData(f types.Frame) {
	logger.Debug("ignoring data on fetch stream", "stream", s.initialID)
}

func (s *fetchStream) OnEnd(f types.Frame) {
	s.onInitialEnd()
	s.fanout.leave(s)
	s.doReplyEnd()
}

func (s *fetchStream) OnAbort(f types.Frame) {
	s.onInitialEnd()
	s.fanout.leave(s)
	s.doReplyAbort(protocol.ErrNone)
}

func (s *fetchStream) OnReset(f types.Frame) {
	s.onReplyReset()
	s.fanout.leave(s)
	s.doInitialReset(protocol.ErrNone)
}
