package protocol

import (
	"errors"
	"fmt"

	"github.com/CefBoud/kafkamux/logging"
	"github.com/CefBoud/kafkamux/metrics"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// ErrMissingHandler is reported for each kind without a handler at construction.
var ErrMissingHandler = errors.New("missing handler")

// Refusal reasons, used as metric labels
const (
	refusedBadFrame     = "bad_frame"
	refusedNotBegin     = "not_begin"
	refusedNoExtension  = "no_extension"
	refusedTypeMismatch = "type_mismatch"
	refusedBadExtension = "bad_extension"
	refusedUnknownKind  = "unknown_kind"
	refusedByHandler    = "handler"
)

// Dispatcher routes new streams to the handler of their kind and owns the
// attached bindings. The kind table is fixed at construction.
type Dispatcher struct {
	typeID   int32
	handlers [256]Handler
	group    GroupHandler
	bindings map[int64]*Binding
	logger   hclog.Logger
}

// NewDispatcher builds the kind table for typeID. Every kind needs a handler.
func NewDispatcher(typeID int32, h Handlers) (*Dispatcher, error) {
	d := &Dispatcher{
		typeID:   typeID,
		bindings: make(map[int64]*Binding),
		logger:   logging.Named("dispatch"),
	}
	if err := d.registerHandlers(h); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) registerHandlers(h Handlers) error {
	var errs *multierror.Error
	register := func(kind types.Kind, handler Handler) {
		if handler == nil {
			errs = multierror.Append(errs, fmt.Errorf("%w for %s", ErrMissingHandler, kind))
			return
		}
		d.handlers[kind] = handler
	}

	register(types.KindMeta, h.Meta)
	register(types.KindDescribe, h.Describe)
	register(types.KindGroup, h.Group)
	register(types.KindConsumer, h.Consumer)
	register(types.KindOffsetFetch, h.OffsetFetch)
	register(types.KindFetch, h.Fetch)
	register(types.KindProduce, h.Produce)
	register(types.KindMerged, h.Merged)
	register(types.KindBootstrap, h.Bootstrap)

	d.group = h.Group
	return errs.ErrorOrNil()
}

// Attach parses cfg and stores it under its id, replacing any previous
// binding with the same id, then notifies the group handler.
func (d *Dispatcher) Attach(cfg types.BindingConfig) error {
	b, err := NewBinding(cfg)
	if err != nil {
		return err
	}
	_, replaced := d.bindings[b.ID]
	d.bindings[b.ID] = b
	d.logger.Debug("binding attached", "id", b.ID, "name", b.Name, "replaced", replaced)
	d.group.OnAttached(b)
	return nil
}

// Detach removes the binding id and notifies the group handler. Detaching an
// unknown id does nothing.
func (d *Dispatcher) Detach(id int64) {
	if _, ok := d.bindings[id]; !ok {
		return
	}
	delete(d.bindings, id)
	d.logger.Debug("binding detached", "id", id)
	d.group.OnDetached(id)
}

// Binding returns the attached binding id.
func (d *Dispatcher) Binding(id int64) (*Binding, bool) {
	b, ok := d.bindings[id]
	return b, ok
}

// Bindings returns the number of attached bindings.
func (d *Dispatcher) Bindings() int {
	return len(d.bindings)
}

// Dispatch hands the BEGIN frame raw to the handler of its kind. It returns
// nil when the frame is not routable here: no extension, a foreign extension
// type id, an unparseable extension, an unknown kind, or a handler refusal.
func (d *Dispatcher) Dispatch(raw []byte, sender Sender) Stream {
	frame, err := serde.DecodeFrame(raw)
	if err != nil {
		return d.refuse(refusedBadFrame, "error", err)
	}
	if frame.Type != types.FrameBegin {
		return d.refuse(refusedNotBegin, "type", frame.Type)
	}
	if len(frame.Extension) == 0 {
		return d.refuse(refusedNoExtension, "stream", frame.StreamID)
	}
	typeID, err := serde.BeginExTypeID(frame.Extension)
	if err != nil {
		return d.refuse(refusedBadExtension, "error", err)
	}
	if typeID != d.typeID {
		return d.refuse(refusedTypeMismatch, "typeId", typeID, "expected", d.typeID)
	}
	beginEx, err := serde.DecodeBeginEx(frame.Extension)
	if err != nil {
		return d.refuse(refusedBadExtension, "error", err)
	}

	if !beginEx.Kind.Known() {
		return d.refuse(refusedUnknownKind, "kind", beginEx.Kind)
	}
	stream := d.handlers[beginEx.Kind].NewStream(raw, sender)
	if stream == nil {
		return d.refuse(refusedByHandler, "kind", beginEx.Kind, "stream", frame.StreamID)
	}
	metrics.Incr(metrics.DispatchAccepted, metrics.Label("kind", beginEx.Kind.String()))
	return stream
}

func (d *Dispatcher) refuse(reason string, args ...any) Stream {
	if d.logger.IsDebug() {
		d.logger.Debug("stream refused", append([]any{"reason", reason}, args...)...)
	}
	metrics.Incr(metrics.DispatchRefused, metrics.Label("reason", reason))
	return nil
}
