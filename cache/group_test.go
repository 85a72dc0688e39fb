package cache

import (
	"testing"

	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
	"github.com/stretchr/testify/require"
)

func groupBegin(routeID, streamID int64, group types.GroupID) []byte {
	return beginFrame(routeID, streamID, types.KindGroup,
		serde.EncodeGroupBeginEx(types.GroupBeginEx{GroupID: group, Protocol: "range", TimeoutMs: 30000}))
}

func lastGeneration(t *testing.T, r *recorder) types.GroupDataEx {
	t.Helper()
	data := r.data()
	require.NotEmpty(t, data)
	ex, err := serde.DecodeGroupDataEx(data[len(data)-1].Extension)
	require.NoError(t, err)
	return ex
}

func TestGroupRequiresAttachedBinding(t *testing.T) {
	h := NewGroupHandler()
	r := &recorder{}
	require.Nil(t, h.NewStream(groupBegin(10, 1, "g"), r))

	b, err := protocol.NewBinding(types.BindingConfig{ID: 10})
	require.NoError(t, err)
	h.OnAttached(b)
	require.NotNil(t, h.NewStream(groupBegin(10, 1, "g"), r))
	require.Nil(t, h.NewStream(groupBegin(10, 3, ""), r), "empty group id")
}

func TestGroupGenerations(t *testing.T) {
	h := NewGroupHandler()
	b, err := protocol.NewBinding(types.BindingConfig{ID: 10})
	require.NoError(t, err)
	h.OnAttached(b)

	r1, r2 := &recorder{}, &recorder{}
	g1 := h.NewStream(groupBegin(10, 1, "g"), r1)
	require.Equal(t, types.GroupDataEx{GenerationID: 1, LeaderID: 1, Members: []int64{1}}, lastGeneration(t, r1))

	g2 := h.NewStream(groupBegin(10, 3, "g"), r2)
	require.Equal(t, 2, h.Members(10, "g"))
	want := types.GroupDataEx{GenerationID: 2, LeaderID: 1, Members: []int64{1, 3}}
	require.Equal(t, want, lastGeneration(t, r1))
	require.Equal(t, want, lastGeneration(t, r2))

	g1.OnEnd(endFrame(1))
	require.True(t, g1.Lifecycle().Closed())
	require.Equal(t, types.GroupDataEx{GenerationID: 3, LeaderID: 3, Members: []int64{3}}, lastGeneration(t, r2))

	g2.OnEnd(endFrame(3))
	require.Zero(t, h.Members(10, "g"))
}

func TestGroupDetachAbortsMembers(t *testing.T) {
	h := NewGroupHandler()
	b, err := protocol.NewBinding(types.BindingConfig{ID: 10})
	require.NoError(t, err)
	h.OnAttached(b)
	other, err := protocol.NewBinding(types.BindingConfig{ID: 11})
	require.NoError(t, err)
	h.OnAttached(other)

	r1, r2 := &recorder{}, &recorder{}
	g1 := h.NewStream(groupBegin(10, 1, "g"), r1)
	g2 := h.NewStream(groupBegin(11, 3, "g"), r2)

	h.OnDetached(10)
	require.Equal(t, types.FrameReset, r1.last().Type)
	require.Equal(t, protocol.ErrCoordinatorNotAvailable.Code, errorCode(t, r1.last()))
	require.True(t, g1.Lifecycle().Closed())
	require.Zero(t, h.Members(10, "g"))

	require.False(t, g2.Lifecycle().ReplyClosing())
	require.Equal(t, 1, h.Members(11, "g"))

	require.Nil(t, h.NewStream(groupBegin(10, 5, "g"), &recorder{}), "detached binding")

	g1.OnEnd(endFrame(1))
	require.Equal(t, 1, h.Members(11, "g"))
}
