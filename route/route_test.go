package route

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopicsInternIsStable(t *testing.T) {
	topics := NewTopics()
	a := topics.Intern("orders")
	b := topics.Intern("payments")
	require.Equal(t, TopicKey(1), a)
	require.Equal(t, TopicKey(2), b)
	require.Equal(t, a, topics.Intern("orders"))
	require.Equal(t, 2, topics.Len())

	name, ok := topics.Name(b)
	require.True(t, ok)
	require.Equal(t, "payments", name)

	_, ok = topics.Name(0)
	require.False(t, ok)
	_, ok = topics.Lookup("missing")
	require.False(t, ok)
}

func TestPartitionKeysAreDistinct(t *testing.T) {
	topics := NewTopics()
	seen := make(map[PartitionKey]struct{})
	for _, topic := range []string{"a", "b", "c"} {
		for _, partition := range []int32{0, 1, 2, 1 << 20, -1} {
			key := topics.PartitionKey(topic, partition)
			_, dup := seen[key]
			require.Falsef(t, dup, "duplicate key for %s-%d", topic, partition)
			seen[key] = struct{}{}

			topicKey, got := key.Split()
			require.Equal(t, partition, got)
			name, _ := topics.Name(topicKey)
			require.Equal(t, topic, name)
		}
	}
	require.Equal(t, topics.PartitionKey("a", 1), topics.PartitionKey("a", 1))
}

func TestGetOrInsertReturnsSameInstance(t *testing.T) {
	fanouts := NewFanouts[PartitionKey, *struct{ n int }]()
	calls := 0
	factory := func(PartitionKey) *struct{ n int } {
		calls++
		return &struct{ n int }{n: calls}
	}

	key := NewPartitionKey(1, 0)
	first, created := fanouts.GetOrInsert(key, factory)
	require.True(t, created)
	second, created := fanouts.GetOrInsert(key, factory)
	require.False(t, created)
	require.Same(t, first, second)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, fanouts.Len())

	require.True(t, fanouts.Remove(key))
	require.False(t, fanouts.Remove(key))
	_, ok := fanouts.Get(key)
	require.False(t, ok)

	third, created := fanouts.GetOrInsert(key, factory)
	require.True(t, created)
	require.NotSame(t, first, third)
}

func TestLeaderTableIsOrdered(t *testing.T) {
	table := NewLeaders().Supply(1)
	require.True(t, table.Set(2, 10))
	require.True(t, table.Set(0, 11))
	require.True(t, table.Set(1, 12))
	require.False(t, table.Set(1, 12), "same leader is not a change")
	require.True(t, table.Set(1, 13))

	require.Equal(t, []int32{0, 1, 2}, table.Partitions())
	leader, ok := table.Leader(1)
	require.True(t, ok)
	require.Equal(t, int32(13), leader)

	table.Delete(1)
	leader, ok = table.Leader(1)
	require.False(t, ok)
	require.Equal(t, NoLeader, leader)
	require.Equal(t, 2, table.Len())
}

func TestLeadersSupplyReusesTable(t *testing.T) {
	leaders := NewLeaders()
	table := leaders.Supply(3)
	require.Same(t, table, leaders.Supply(3))
	leaders.Remove(3)
	_, ok := leaders.Lookup(3)
	require.False(t, ok)
}

type recordingAllocator struct {
	next     BudgetID
	released []BudgetID
}

func (a *recordingAllocator) Acquire(int64, TopicKey) BudgetID {
	a.next++
	return a.next
}

func (a *recordingAllocator) Release(id BudgetID) {
	a.released = append(a.released, id)
}

func TestBudgetsAreRefCounted(t *testing.T) {
	allocator := &recordingAllocator{}
	budgets := NewBudgets(7, allocator)

	first := budgets.Acquire(1)
	require.Equal(t, first, budgets.Acquire(1))
	require.NotEqual(t, first, budgets.Acquire(2))

	budgets.Release(1)
	require.Empty(t, allocator.released)
	budgets.Release(1)
	require.Equal(t, []BudgetID{first}, allocator.released)

	budgets.Release(1)
	require.Len(t, allocator.released, 1, "release without a user is ignored")
	require.NotEqual(t, first, budgets.Acquire(1), "a released budget is not reused")

	nilBudgets := NewBudgets(7, nil)
	require.Equal(t, NoBudget, nilBudgets.Acquire(1))
	nilBudgets.Release(1)
}

func TestIndexesSupplyPerRoute(t *testing.T) {
	indexes := NewIndexes(nil)
	a := indexes.Supply(1)
	require.Same(t, a, indexes.Supply(1))
	require.NotSame(t, a, indexes.Supply(2))
	require.Equal(t, 2, indexes.Len())

	indexes.Remove(1)
	_, ok := indexes.Lookup(1)
	require.False(t, ok)
}

func TestLocalAllocator(t *testing.T) {
	allocator := NewLocalAllocator()
	budgets := NewBudgets(7, allocator)

	a := budgets.Acquire(1)
	b := budgets.Acquire(2)
	require.NotEqual(t, NoBudget, a)
	require.NotEqual(t, a, b)
	require.Equal(t, 2, allocator.Held())

	budgets.Acquire(1)
	budgets.Release(1)
	require.Equal(t, 2, allocator.Held())
	budgets.Release(1)
	budgets.Release(2)
	require.Zero(t, allocator.Held())

	allocator.Release(a)
	require.Zero(t, allocator.Held())
}
