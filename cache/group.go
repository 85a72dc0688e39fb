package cache

import (
	"slices"

	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
)

type groupKey struct {
	binding int64
	id      types.GroupID
}

// group is the in-process membership of one consumer group on a binding.
type group struct {
	key        groupKey
	generation int32
	members    []*groupStream
}

// GroupHandler serves GROUP streams and follows binding attachment: streams
// are only accepted on attached bindings and are aborted when their binding
// is detached.
type GroupHandler struct {
	bindings map[int64]*protocol.Binding
	groups   map[groupKey]*group
}

// NewGroupHandler creates a GROUP handler.
func NewGroupHandler() *GroupHandler {
	return &GroupHandler{
		bindings: make(map[int64]*protocol.Binding),
		groups:   make(map[groupKey]*group),
	}
}

// OnAttached records b, replacing a previous binding with the same id.
func (h *GroupHandler) OnAttached(b *protocol.Binding) {
	h.bindings[b.ID] = b
}

// OnDetached forgets the binding and aborts the streams of its groups.
func (h *GroupHandler) OnDetached(bindingID int64) {
	delete(h.bindings, bindingID)
	for key, g := range h.groups {
		if key.binding != bindingID {
			continue
		}
		delete(h.groups, key)
		for _, s := range g.members {
			s.group = nil
			s.cleanup(protocol.ErrCoordinatorNotAvailable)
		}
	}
}

func (h *GroupHandler) binding(id int64) (*protocol.Binding, bool) {
	b, ok := h.bindings[id]
	return b, ok
}

// Members returns the number of streams in a group of a binding.
func (h *GroupHandler) Members(bindingID int64, id types.GroupID) int {
	if g, ok := h.groups[groupKey{bindingID, id}]; ok {
		return len(g.members)
	}
	return 0
}

// NewStream joins the group named in the extension.
func (h *GroupHandler) NewStream(raw []byte, sender protocol.Sender) protocol.Stream {
	o, ok := open(raw, types.KindGroup, h.binding)
	if !ok {
		return nil
	}
	ex, err := serde.DecodeGroupBeginEx(o.payload)
	if err != nil || ex.GroupID == "" {
		return nil
	}

	key := groupKey{o.binding.ID, ex.GroupID}
	g, ok := h.groups[key]
	if !ok {
		g = &group{key: key}
		h.groups[key] = g
	}
	s := &groupStream{stream: newStream(o, sender), handler: h, group: g, timeoutMs: ex.TimeoutMs}
	g.members = append(g.members, s)
	s.doReplyBegin(nil)
	h.rebalance(g)
	return s
}

// rebalance starts a new generation and announces it to every member. The
// first member to have joined leads.
func (h *GroupHandler) rebalance(g *group) {
	g.generation++
	ex := types.GroupDataEx{GenerationID: g.generation}
	for _, m := range g.members {
		ex.Members = append(ex.Members, m.initialID)
	}
	if len(ex.Members) > 0 {
		ex.LeaderID = ex.Members[0]
	}
	extension := serde.EncodeGroupDataEx(ex)
	for _, m := range slices.Clone(g.members) {
		m.doReplyData(types.FlagInit|types.FlagFin, nil, extension)
	}
}

func (h *GroupHandler) leave(s *groupStream) {
	g := s.group
	if g == nil {
		return
	}
	s.group = nil
	i := slices.Index(g.members, s)
	if i < 0 {
		return
	}
	g.members = slices.Delete(g.members, i, i+1)
	if len(g.members) == 0 {
		delete(h.groups, g.key)
		return
	}
	h.rebalance(g)
}

// groupStream is one member of a group. Initial DATA frames are heartbeats.
type groupStream struct {
	stream
	handler   *GroupHandler
	group     *group
	timeoutMs int32
}

func (s *groupStream) OnData(f types.Frame) {}

func (s *groupStream) OnEnd(f types.Frame) {
	s.onInitialEnd()
	s.handler.leave(s)
	s.doReplyEnd()
}

func (s *groupStream) OnAbort(f types.Frame) {
	s.onInitialEnd()
	s.handler.leave(s)
	s.doReplyAbort(protocol.ErrNone)
}

func (s *groupStream) OnReset(f types.Frame) {
	s.onReplyReset()
	s.handler.leave(s)
	s.doInitialReset(protocol.ErrNone)
}
