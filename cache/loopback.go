package cache

import (
	"errors"
	"maps"
	"slices"
	"sort"

	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
)

// ErrNotWritable is returned when writing to a subscription that only reads.
var ErrNotWritable = errors.New("upstream subscription is not writable")

type loopbackPartition struct {
	route     int64
	topic     string
	partition int32
}

type loopbackTopic struct {
	route int64
	topic string
}

type loopbackRecord struct {
	offset  int64
	payload []byte
}

// Loopback is an in-memory Upstream. Produced records are appended to a
// per-partition log and delivered to fetch subscriptions of the same route,
// topic and partition. Partition leaders and topic configs are set directly.
type Loopback struct {
	logs       map[loopbackPartition][]loopbackRecord
	fetches    map[loopbackPartition][]*loopbackHandle
	metas      map[loopbackTopic][]*loopbackHandle
	describes  map[loopbackTopic][]*loopbackHandle
	partitions map[string][]types.PartitionLeader
	configs    map[string]map[string]string
}

// NewLoopback creates an empty loopback upstream.
func NewLoopback() *Loopback {
	return &Loopback{
		logs:       make(map[loopbackPartition][]loopbackRecord),
		fetches:    make(map[loopbackPartition][]*loopbackHandle),
		metas:      make(map[loopbackTopic][]*loopbackHandle),
		describes:  make(map[loopbackTopic][]*loopbackHandle),
		partitions: make(map[string][]types.PartitionLeader),
		configs:    make(map[string]map[string]string),
	}
}

type loopbackHandle struct {
	loopback *Loopback
	req      UpstreamRequest
	sink     UpstreamSink
	closed   bool
}

// Open subscribes sink according to req.
func (l *Loopback) Open(req UpstreamRequest, sink UpstreamSink) UpstreamHandle {
	h := &loopbackHandle{loopback: l, req: req, sink: sink}
	switch req.Kind {
	case types.KindFetch:
		key := loopbackPartition{req.RouteID, req.Topic, req.Partition}
		l.fetches[key] = append(l.fetches[key], h)
		sink.OnUpstreamBegin()
		for _, r := range l.logs[key] {
			if h.closed {
				break
			}
			if req.Offset == OffsetLatest || (req.Offset >= 0 && r.offset < req.Offset) {
				continue
			}
			sink.OnUpstreamData(r.payload, serde.EncodeFetchDataEx(types.FetchDataEx{PartitionID: req.Partition, Offset: r.offset}))
		}
	case types.KindMeta:
		key := loopbackTopic{req.RouteID, req.Topic}
		l.metas[key] = append(l.metas[key], h)
		sink.OnUpstreamBegin()
		if leaders, ok := l.partitions[req.Topic]; ok && !h.closed {
			sink.OnUpstreamData(nil, serde.EncodeMetaDataEx(types.MetaDataEx{Partitions: leaders}))
		}
	case types.KindDescribe:
		key := loopbackTopic{req.RouteID, req.Topic}
		l.describes[key] = append(l.describes[key], h)
		sink.OnUpstreamBegin()
		if configs, ok := l.configs[req.Topic]; ok && !h.closed {
			sink.OnUpstreamData(nil, serde.EncodeDescribeDataEx(describeData(configs)))
		}
	case types.KindProduce:
		sink.OnUpstreamBegin()
	default:
		sink.OnUpstreamReset(protocol.ErrUnknownServerError)
		h.closed = true
	}
	return h
}

func (h *loopbackHandle) Write(payload []byte) error {
	if h.closed {
		return ErrNotWritable
	}
	if h.req.Kind != types.KindProduce {
		return ErrNotWritable
	}
	h.loopback.append(loopbackPartition{h.req.RouteID, h.req.Topic, h.req.Partition}, payload)
	return nil
}

func (h *loopbackHandle) Close() {
	if h.closed {
		return
	}
	h.closed = true
	l := h.loopback
	switch h.req.Kind {
	case types.KindFetch:
		key := loopbackPartition{h.req.RouteID, h.req.Topic, h.req.Partition}
		l.fetches[key] = removeHandle(l.fetches[key], h)
		if len(l.fetches[key]) == 0 {
			delete(l.fetches, key)
		}
	case types.KindMeta:
		key := loopbackTopic{h.req.RouteID, h.req.Topic}
		l.metas[key] = removeHandle(l.metas[key], h)
		if len(l.metas[key]) == 0 {
			delete(l.metas, key)
		}
	case types.KindDescribe:
		key := loopbackTopic{h.req.RouteID, h.req.Topic}
		l.describes[key] = removeHandle(l.describes[key], h)
		if len(l.describes[key]) == 0 {
			delete(l.describes, key)
		}
	}
}

func removeHandle(handles []*loopbackHandle, h *loopbackHandle) []*loopbackHandle {
	return slices.DeleteFunc(handles, func(other *loopbackHandle) bool { return other == h })
}

func (l *Loopback) append(key loopbackPartition, payload []byte) {
	offset := int64(len(l.logs[key]))
	record := loopbackRecord{offset: offset, payload: slices.Clone(payload)}
	l.logs[key] = append(l.logs[key], record)

	ex := serde.EncodeFetchDataEx(types.FetchDataEx{PartitionID: key.partition, Offset: offset})
	for _, h := range slices.Clone(l.fetches[key]) {
		if !h.closed {
			h.sink.OnUpstreamData(record.payload, ex)
		}
	}
}

// SetPartitions replaces the partition leaders of topic and notifies META subscriptions on every route.
func (l *Loopback) SetPartitions(topic string, leaders []types.PartitionLeader) {
	l.partitions[topic] = slices.Clone(leaders)
	ex := serde.EncodeMetaDataEx(types.MetaDataEx{Partitions: leaders})
	for key, handles := range l.metas {
		if key.topic != topic {
			continue
		}
		for _, h := range slices.Clone(handles) {
			if !h.closed {
				h.sink.OnUpstreamData(nil, ex)
			}
		}
	}
}

// SetConfigs replaces the configs of topic and notifies DESCRIBE subscriptions on every route.
func (l *Loopback) SetConfigs(topic string, configs map[string]string) {
	l.configs[topic] = maps.Clone(configs)
	ex := serde.EncodeDescribeDataEx(describeData(configs))
	for key, handles := range l.describes {
		if key.topic != topic {
			continue
		}
		for _, h := range slices.Clone(handles) {
			if !h.closed {
				h.sink.OnUpstreamData(nil, ex)
			}
		}
	}
}

// Fail resets every subscription of route and topic with err.
func (l *Loopback) Fail(routeID int64, topic string, err protocol.Error) {
	var failed []*loopbackHandle
	for key, handles := range l.fetches {
		if key.route == routeID && key.topic == topic {
			failed = append(failed, handles...)
		}
	}
	failed = append(failed, l.metas[loopbackTopic{routeID, topic}]...)
	failed = append(failed, l.describes[loopbackTopic{routeID, topic}]...)
	for _, h := range failed {
		if h.closed {
			continue
		}
		h.Close()
		h.sink.OnUpstreamReset(err)
	}
}

// Records returns the number of records appended for a partition.
func (l *Loopback) Records(routeID int64, topic string, partition int32) int {
	return len(l.logs[loopbackPartition{routeID, topic, partition}])
}

// Subscriptions returns the number of open fetch subscriptions of a partition.
func (l *Loopback) Subscriptions(routeID int64, topic string, partition int32) int {
	return len(l.fetches[loopbackPartition{routeID, topic, partition}])
}

func describeData(configs map[string]string) types.DescribeDataEx {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)
	ex := types.DescribeDataEx{Configs: make([]types.ConfigEntry, 0, len(names))}
	for _, name := range names {
		ex.Configs = append(ex.Configs, types.ConfigEntry{Name: name, Value: configs[name]})
	}
	return ex
}
