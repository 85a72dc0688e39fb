// Package engine runs the stream handlers on a single worker goroutine and
// connects them to downstream clients over TCP.
package engine

import (
	"context"
	"errors"

	"github.com/CefBoud/kafkamux/cache"
	"github.com/CefBoud/kafkamux/logging"
	"github.com/CefBoud/kafkamux/metrics"
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/route"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/storage"
	"github.com/CefBoud/kafkamux/types"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

const eventQueueSize = 1024

// ErrStopped is returned when submitting to a worker that is no longer running.
var ErrStopped = errors.New("worker stopped")

// Conn is the downstream side of a client connection.
type Conn interface {
	ID() uuid.UUID
	Send(f types.Frame)
}

// WorkerConfig holds what the worker builds its handlers from.
type WorkerConfig struct {
	TypeID    int32
	Upstream  cache.Upstream
	Offsets   *storage.OffsetStore
	Allocator route.BudgetAllocator
}

type streamKey struct {
	conn uuid.UUID
	id   int64
}

// Worker owns the dispatcher, every stream and every route table. All of
// them are only touched from the goroutine running Run.
type Worker struct {
	dispatcher *protocol.Dispatcher
	handlers   *cache.Handlers
	indexes    *route.Indexes

	streams map[streamKey]protocol.Stream
	dirty   map[streamKey]struct{}

	events chan func()
	done   chan struct{}
	logger hclog.Logger
}

// NewWorker builds the handlers and the dispatcher.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	w := &Worker{
		indexes: route.NewIndexes(cfg.Allocator),
		streams: make(map[streamKey]protocol.Stream),
		dirty:   make(map[streamKey]struct{}),
		events:  make(chan func(), eventQueueSize),
		done:    make(chan struct{}),
		logger:  logging.Named("worker"),
	}
	w.handlers = cache.New(cache.Config{
		Bindings: w.binding,
		Indexes:  w.indexes,
		Upstream: cfg.Upstream,
		Offsets:  cfg.Offsets,
	})
	dispatcher, err := protocol.NewDispatcher(cfg.TypeID, w.handlers.Protocol())
	if err != nil {
		return nil, err
	}
	w.dispatcher = dispatcher
	return w, nil
}

func (w *Worker) binding(id int64) (*protocol.Binding, bool) {
	return w.dispatcher.Binding(id)
}

// Handlers returns the stream handlers.
func (w *Worker) Handlers() *cache.Handlers {
	return w.handlers
}

// Run processes events until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-w.events:
			fn()
		}
	}
}

func (w *Worker) submit(ctx context.Context, fn func()) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrStopped
	case w.events <- fn:
		return nil
	}
}

// Do runs fn on the worker and waits for it to complete.
func (w *Worker) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := w.submit(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrStopped
	case <-finished:
		return nil
	}
}

// Attach attaches a binding on the worker.
func (w *Worker) Attach(ctx context.Context, cfg types.BindingConfig) error {
	var err error
	if doErr := w.Do(ctx, func() {
		defer w.reap()
		err = w.dispatcher.Attach(cfg)
	}); doErr != nil {
		return doErr
	}
	return err
}

// Detach detaches a binding on the worker.
func (w *Worker) Detach(ctx context.Context, id int64) error {
	return w.Do(ctx, func() {
		defer w.reap()
		w.detach(id)
	})
}

// Frame queues a frame received from conn.
func (w *Worker) Frame(ctx context.Context, conn Conn, raw []byte) error {
	return w.submit(ctx, func() { w.handleFrame(conn, raw) })
}

// Disconnect queues the teardown of every stream of conn.
func (w *Worker) Disconnect(ctx context.Context, conn Conn) error {
	return w.submit(ctx, func() { w.disconnect(conn.ID()) })
}

// Streams returns the number of open streams.
func (w *Worker) Streams(ctx context.Context) (int, error) {
	var n int
	err := w.Do(ctx, func() { n = len(w.streams) })
	return n, err
}

// detach removes binding id and releases the registries of its routes that
// no fanout uses any more.
func (w *Worker) detach(id int64) {
	b, ok := w.dispatcher.Binding(id)
	if !ok {
		return
	}
	routes := b.Routes()
	if len(routes) == 0 {
		routes = []int64{b.ID}
	}
	w.dispatcher.Detach(id)
	for _, routeID := range routes {
		w.handlers.ReleaseRoute(routeID)
	}
}

func (w *Worker) handleFrame(conn Conn, raw []byte) {
	frame, err := serde.DecodeFrame(raw)
	if err != nil {
		w.logger.Warn("dropping malformed frame", "conn", conn.ID(), "error", err)
		return
	}
	defer w.reap()

	if frame.Type == types.FrameBegin {
		w.begin(conn, frame, raw)
		return
	}

	key := streamKey{conn.ID(), frame.StreamID | 1}
	s, ok := w.streams[key]
	if !ok {
		w.logger.Debug("frame for unknown stream", "conn", conn.ID(), "frame", frame)
		return
	}
	switch {
	case frame.Type == types.FrameData && !frame.Reply():
		s.OnData(frame)
	case frame.Type == types.FrameEnd && !frame.Reply():
		s.OnEnd(frame)
	case frame.Type == types.FrameAbort && !frame.Reply():
		s.OnAbort(frame)
	case frame.Type == types.FrameReset && frame.Reply():
		s.OnReset(frame)
	default:
		w.logger.Debug("unexpected frame direction", "conn", conn.ID(), "frame", frame)
		return
	}
	w.dirty[key] = struct{}{}
}

func (w *Worker) begin(conn Conn, frame types.Frame, raw []byte) {
	key := streamKey{conn.ID(), frame.StreamID}
	if frame.Reply() {
		w.logger.Debug("begin on a reply stream id", "conn", conn.ID(), "stream", frame.StreamID)
		w.refuse(conn, frame)
		return
	}
	if _, ok := w.streams[key]; ok {
		w.logger.Warn("duplicate stream id", "conn", conn.ID(), "stream", frame.StreamID)
		w.refuse(conn, frame)
		return
	}
	s := w.dispatcher.Dispatch(raw, &trackingSender{worker: w, conn: conn, key: key})
	if s == nil {
		w.refuse(conn, frame)
		return
	}
	w.streams[key] = s
	w.dirty[key] = struct{}{}
}

func (w *Worker) refuse(conn Conn, frame types.Frame) {
	conn.Send(types.Frame{
		Type:          types.FrameReset,
		RouteID:       frame.RouteID,
		StreamID:      frame.StreamID,
		TraceID:       frame.TraceID,
		Authorization: frame.Authorization,
	})
}

// reap drops the streams whose lifecycle closed since the last event.
func (w *Worker) reap() {
	for key := range w.dirty {
		if s, ok := w.streams[key]; ok && s.Lifecycle().Closed() {
			delete(w.streams, key)
			metrics.Incr(metrics.StreamsClosed, metrics.Label("kind", s.Kind().String()))
		}
	}
	clear(w.dirty)

	byKind := make(map[types.Kind]int, len(types.Kinds))
	for _, s := range w.streams {
		byKind[s.Kind()]++
	}
	for _, kind := range types.Kinds {
		metrics.Gauge(metrics.StreamsOpen, float32(byKind[kind]), metrics.Label("kind", kind.String()))
	}
}

func (w *Worker) disconnect(conn uuid.UUID) {
	defer w.reap()
	for key, s := range w.streams {
		if key.conn != conn {
			continue
		}
		if !s.Lifecycle().InitialClosed() {
			s.OnAbort(types.Frame{Type: types.FrameAbort, RouteID: s.RouteID(), StreamID: key.id})
		}
		if !s.Lifecycle().ReplyClosed() {
			s.OnReset(types.Frame{Type: types.FrameReset, RouteID: s.RouteID(), StreamID: types.ReplyStreamID(key.id)})
		}
		delete(w.streams, key)
	}
}

// trackingSender marks its stream for reaping whenever it sends a terminal frame.
type trackingSender struct {
	worker *Worker
	conn   Conn
	key    streamKey
}

func (t *trackingSender) Send(f types.Frame) {
	t.conn.Send(f)
	switch f.Type {
	case types.FrameEnd, types.FrameAbort, types.FrameReset:
		t.worker.dirty[t.key] = struct{}{}
	}
}
