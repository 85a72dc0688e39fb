package cache

import (
	"slices"

	"github.com/CefBoud/kafkamux/compress"
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
)

// maxRejoins bounds how often a partition follows a leader change before the
// merged stream gives up.
const maxRejoins = 3

// MergedHandler serves MERGED streams, which read several partitions of a
// topic through the shared FETCH fanouts. Without requested partitions the
// stream follows the topic metadata and reads every known partition.
type MergedHandler struct {
	bindings protocol.BindingLookup
	fetch    *FetchHandler
	meta     *MetaHandler
}

// NewMergedHandler creates a MERGED handler on top of the fetch and meta handlers.
func NewMergedHandler(bindings protocol.BindingLookup, fetch *FetchHandler, meta *MetaHandler) *MergedHandler {
	return &MergedHandler{bindings: bindings, fetch: fetch, meta: meta}
}

func (h *MergedHandler) NewStream(raw []byte, sender protocol.Sender) protocol.Stream {
	o, ok := open(raw, types.KindMerged, h.bindings)
	if !ok {
		return nil
	}
	ex, err := serde.DecodeMergedBeginEx(o.payload)
	if err != nil || ex.Topic == "" {
		return nil
	}
	r, ok := o.resolve(ex.Topic)
	if !ok {
		return nil
	}

	s := &mergedStream{
		stream:  newStream(o, sender),
		handler: h,
		route:   r.ID,
		topic:   ex.Topic,
		codec:   o.topicOptions(ex.Topic).Compression,
	}
	if len(ex.Partitions) > 0 {
		for _, p := range ex.Partitions {
			if !s.lifecycle.ReplyClosing() {
				s.join(p, OffsetLatest)
			}
		}
		return s
	}
	s.meta = h.meta.supplyFanout(r.ID, ex.Topic)
	s.meta.join(s)
	return s
}

// mergedPartition subscribes a merged stream to one partition fanout.
type mergedPartition struct {
	stream    *mergedStream
	partition int32
	offset    int64
	rejoins   int
	fanout    *fetchFanout
}

func (p *mergedPartition) fetchOffset() int64 { return p.offset }

func (p *mergedPartition) onFetchBegin() {
	p.stream.doReplyBegin(nil)
}

func (p *mergedPartition) onFetchData(partition int32, offset int64, payload []byte) {
	p.offset = offset + 1
	p.rejoins = 0
	p.stream.doReplyData(types.FlagInit|types.FlagFin, payload,
		serde.EncodeFetchDataEx(types.FetchDataEx{PartitionID: partition, Offset: offset}))
}

func (p *mergedPartition) onFetchEnd() {
	p.stream.partitionEnded(p)
}

func (p *mergedPartition) onFetchReset(err protocol.Error) {
	p.fanout.leave(p)
	if err == protocol.ErrNotLeaderOrFollower && p.rejoins < maxRejoins {
		p.rejoins++
		p.stream.rejoin(p)
		return
	}
	p.stream.fail(err)
}

// mergedStream is a MERGED stream. Data of every partition is sent as DATA
// frames carrying the partition and offset.
type mergedStream struct {
	stream
	handler    *MergedHandler
	route      int64
	topic      string
	codec      compress.Codec
	meta       *metaFanout
	partitions []*mergedPartition
}

// Partitions returns the partitions the stream currently reads.
func (s *mergedStream) Partitions() []int32 {
	ids := make([]int32, 0, len(s.partitions))
	for _, p := range s.partitions {
		ids = append(ids, p.partition)
	}
	return ids
}

func (s *mergedStream) joined(partition int32) bool {
	return slices.ContainsFunc(s.partitions, func(p *mergedPartition) bool { return p.partition == partition })
}

func (s *mergedStream) join(partition int32, offset int64) {
	p := &mergedPartition{stream: s, partition: partition, offset: offset}
	s.partitions = append(s.partitions, p)
	p.fanout = s.handler.fetch.supplyFanout(s.route, s.topic, partition, s.codec)
	p.fanout.join(p)
}

func (s *mergedStream) rejoin(p *mergedPartition) {
	p.fanout = s.handler.fetch.supplyFanout(s.route, s.topic, p.partition, s.codec)
	p.fanout.join(p)
}

func (s *mergedStream) drop(p *mergedPartition) {
	s.partitions = slices.DeleteFunc(s.partitions, func(other *mergedPartition) bool { return other == p })
	p.fanout.leave(p)
}

func (s *mergedStream) leaveAll() {
	partitions := s.partitions
	s.partitions = nil
	for _, p := range partitions {
		p.fanout.leave(p)
	}
	if s.meta != nil {
		meta := s.meta
		s.meta = nil
		meta.leave(s)
	}
}

// partitionEnded ends the reply once no partition is left and no metadata is followed.
func (s *mergedStream) partitionEnded(p *mergedPartition) {
	s.drop(p)
	if len(s.partitions) == 0 && s.meta == nil {
		s.doReplyEnd()
	}
}

func (s *mergedStream) fail(err protocol.Error) {
	s.leaveAll()
	s.cleanup(err)
}

func (s *mergedStream) onMetaBegin() {
	s.doReplyBegin(nil)
}

// onMetaPartitions joins partitions that appeared and drops those no longer reported.
func (s *mergedStream) onMetaPartitions(ex types.MetaDataEx) {
	reported := make([]int32, 0, len(ex.Partitions))
	for _, p := range ex.Partitions {
		reported = append(reported, p.PartitionID)
	}
	for _, p := range slices.Clone(s.partitions) {
		if !slices.Contains(reported, p.partition) {
			s.drop(p)
		}
	}
	for _, id := range reported {
		if s.lifecycle.ReplyClosing() {
			return
		}
		if !s.joined(id) {
			s.join(id, OffsetLatest)
		}
	}
}

func (s *mergedStream) onMetaEnd() {
	s.leaveAll()
	s.doReplyEnd()
}

func (s *mergedStream) onMetaReset(err protocol.Error) {
	s.meta = nil
	s.fail(err)
}

func (s *mergedStream) OnData(f types.Frame) {}

func (s *mergedStream) OnEnd(f types.Frame) {
	s.onInitialEnd()
	s.leaveAll()
	s.doReplyEnd()
}

func (s *mergedStream) OnAbort(f types.Frame) {
	s.onInitialEnd()
	s.leaveAll()
	s.doReplyAbort(protocol.ErrNone)
}

func (s *mergedStream) OnReset(f types.Frame) {
	s.onReplyReset()
	s.leaveAll()
	s.doInitialReset(protocol.ErrNone)
}
