package cache

import (
	"slices"

	"github.com/CefBoud/kafkamux/checksum"
	"github.com/CefBoud/kafkamux/compress"
	"github.com/CefBoud/kafkamux/metrics"
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/route"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
)

// ProduceHandler serves PRODUCE streams. Streams of one route writing the
// same topic partition share a produceFanout.
type ProduceHandler struct {
	bindings protocol.BindingLookup
	indexes  *route.Indexes
	upstream Upstream
	fanouts  map[int64]*route.Fanouts[route.PartitionKey, *produceFanout]
}

// NewProduceHandler creates a PRODUCE handler.
func NewProduceHandler(bindings protocol.BindingLookup, indexes *route.Indexes, upstream Upstream) *ProduceHandler {
	return &ProduceHandler{
		bindings: bindings,
		indexes:  indexes,
		upstream: upstream,
		fanouts:  make(map[int64]*route.Fanouts[route.PartitionKey, *produceFanout]),
	}
}

// NewStream opens a PRODUCE stream on the topic partition named in its extension.
func (h *ProduceHandler) NewStream(raw []byte, sender protocol.Sender) protocol.Stream {
	o, ok := open(raw, types.KindProduce, h.bindings)
	if !ok {
		return nil
	}
	ex, err := serde.DecodeProduceBeginEx(o.payload)
	if err != nil || ex.Topic == "" {
		return nil
	}
	r, ok := o.resolve(ex.Topic)
	if !ok {
		return nil
	}

	s := &produceStream{stream: newStream(o, sender)}
	s.fanout = h.supplyFanout(r.ID, ex.Topic, ex.PartitionID, o.topicOptions(ex.Topic).Compression)
	s.fanout.join(s)
	return s
}

func (h *ProduceHandler) supplyFanout(routeID int64, topic string, partition int32, codec compress.Codec) *produceFanout {
	fanouts, ok := h.fanouts[routeID]
	if !ok {
		fanouts = route.NewFanouts[route.PartitionKey, *produceFanout]()
		h.fanouts[routeID] = fanouts
	}
	index := h.indexes.Supply(routeID)
	fanout, created := fanouts.GetOrInsert(index.Topics.PartitionKey(topic, partition), func(key route.PartitionKey) *produceFanout {
		return &produceFanout{
			handler:   h,
			routeID:   routeID,
			key:       key,
			topic:     topic,
			partition: partition,
			codec:     codec,
		}
	})
	if created {
		metrics.Incr(metrics.FanoutCreated, metrics.Label("kind", "produce"))
	}
	return fanout
}

// Fanouts returns the number of live produce fanouts on routeID.
func (h *ProduceHandler) Fanouts(routeID int64) int {
	if fanouts, ok := h.fanouts[routeID]; ok {
		return fanouts.Len()
	}
	return 0
}

func (h *ProduceHandler) evict(f *produceFanout) {
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
	metrics.Incr(metrics.FanoutEvicted, metrics.Label("kind", "produce"))
}

// produceFanout is the one upstream writer of a topic partition on a route.
type produceFanout struct {
	handler   *ProduceHandler
	routeID   int64
	key       route.PartitionKey
	topic     string
	partition int32
	codec     compress.Codec

	upstream    UpstreamHandle
	replyOpened bool
	members     []*produceStream
	evicted     bool
}

func (f *produceFanout) join(s *produceStream) {
	f.members = append(f.members, s)
	if f.upstream == nil {
		f.upstream = f.handler.upstream.Open(UpstreamRequest{
			RouteID:   f.routeID,
			Kind:      types.KindProduce,
			Topic:     f.topic,
			Partition: f.partition,
			Codec:     f.codec,
		}, f)
	} else if f.replyOpened {
		s.doReplyBegin(nil)
	}
}

func (f *produceFanout) leave(s *produceStream) {
	i := slices.Index(f.members, s)
	if i < 0 {
		return
	}
	f.members = slices.Delete(f.members, i, i+1)
	if len(f.members) == 0 {
		f.evict()
	}
}

func (f *produceFanout) evict() {
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

// write compresses a verified message with the topic codec and sends it upstream.
func (f *produceFanout) write(message []byte) error {
	payload := message
	if f.codec != compress.None {
		compressed, err := compress.For(f.codec).Compress(message)
		if err != nil {
			return err
		}
		payload = compressed
	}
	if f.upstream == nil {
		return ErrNotWritable
	}
	return f.upstream.Write(payload)
}

func (f *produceFanout) OnUpstreamBegin() {
	f.replyOpened = true
	for _, s := range slices.Clone(f.members) {
		s.doReplyBegin(nil)
	}
}

func (f *produceFanout) OnUpstreamData(payload, extension []byte) {}

func (f *produceFanout) OnUpstreamEnd() {
	f.OnUpstreamReset(protocol.ErrNetworkException)
}

func (f *produceFanout) OnUpstreamReset(err protocol.Error) {
	members := f.members
	f.members = nil
	for _, s := range members {
		s.cleanup(err)
	}
	f.evict()
}

// produceStream is a PRODUCE stream. A message may span several DATA frames:
// the first carries FlagInit and a ProduceDataEx with the checksum and length
// of the whole message, the last carries FlagFin. Each segment is checksummed
// once as it arrives and the segment checksums are combined.
type produceStream struct {
	stream
	fanout   *produceFanout
	expected types.ProduceDataEx
	acc      checksum.Accumulator
	message  []byte
	inflight bool
}

func (s *produceStream) OnData(f types.Frame) {
	if f.Init() {
		ex, err := serde.DecodeProduceDataEx(f.Extension)
		if err != nil {
			s.fail(protocol.ErrCorruptMessage)
			return
		}
		s.expected = ex
		s.acc.Reset()
		s.message = s.message[:0]
		s.inflight = true
	}
	if !s.inflight {
		s.fail(protocol.ErrCorruptMessage)
		return
	}

	if s.acc.Len()+int64(len(f.Payload)) > s.expected.Length {
		logger.Debug("produce message exceeds declared length", "stream", s.initialID, "expected", s.expected.Length)
		metrics.Incr(metrics.ProduceChecksumMismatch)
		s.inflight = false
		s.message = nil
		s.fail(protocol.ErrCorruptMessage)
		return
	}
	s.acc.Append(checksum.CRC32C(f.Payload), int64(len(f.Payload)))
	s.message = append(s.message, f.Payload...)
	if !f.Fin() {
		return
	}
	s.inflight = false

	if s.acc.Len() != s.expected.Length {
		logger.Debug("produce length mismatch", "stream", s.initialID, "expected", s.expected.Length, "got", s.acc.Len())
		metrics.Incr(metrics.ProduceChecksumMismatch)
		s.fail(protocol.ErrCorruptMessage)
		return
	}
	if err := s.acc.Verify(s.expected.CRC32C); err != nil {
		logger.Debug("produce checksum mismatch", "stream", s.initialID, "error", err)
		metrics.Incr(metrics.ProduceChecksumMismatch)
		s.fail(protocol.ErrCorruptMessage)
		return
	}
	if err := s.fanout.write(s.message); err != nil {
		logger.Warn("produce write failed", "topic", s.fanout.topic, "error", err)
		s.fail(protocol.ErrUnknownServerError)
	}
}

func (s *produceStream) fail(err protocol.Error) {
	s.fanout.leave(s)
	s.cleanup(err)
}

func (s *produceStream) OnEnd(f types.Frame) {
	s.onInitialEnd()
	s.fanout.leave(s)
	s.doReplyEnd()
}

func (s *produceStream) OnAbort(f types.Frame) {
	s.onInitialEnd()
	s.fanout.leave(s)
	s.doReplyAbort(protocol.ErrNone)
}

func (s *produceStream) OnReset(f types.Frame) {
	s.onReplyReset()
	s.fanout.leave(s)
	s.doInitialReset(protocol.ErrNone)
}
