package cache

import (
	"github.com/CefBoud/kafkamux/compress"
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/route"
	"github.com/CefBoud/kafkamux/types"
)

// Offsets a FETCH stream can start from
const (
	OffsetLatest   int64 = -1
	OffsetEarliest int64 = -2
)

// UpstreamRequest describes the upstream subscription a fanout needs.
type UpstreamRequest struct {
	RouteID   int64
	Kind      types.Kind
	Topic     string
	Partition int32
	Offset    int64
	Leader    int32
	Budget    route.BudgetID
	Codec     compress.Codec
}

// UpstreamSink receives what an upstream subscription delivers.
type UpstreamSink interface {
	OnUpstreamBegin()
	OnUpstreamData(payload, extension []byte)
	OnUpstreamEnd()
	OnUpstreamReset(err protocol.Error)
}

// UpstreamHandle is an open upstream subscription.
type UpstreamHandle interface {
	// Write sends payload upstream. Only PRODUCE subscriptions accept writes.
	Write(payload []byte) error
	Close()
}

// Upstream opens subscriptions towards the brokers. Open may call back into
// sink before it returns.
type Upstream interface {
	Open(req UpstreamRequest, sink UpstreamSink) UpstreamHandle
}
