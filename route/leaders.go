package route

import "github.com/google/btree"

const leaderTableDegree = 8

// NoLeader is returned for a partition without a known leader.
const NoLeader int32 = -1

type partitionLeader struct {
	partition int32
	leader    int32
}

// LeaderTable maps the partitions of one topic to their leader ids, ordered by partition.
type LeaderTable struct {
	tree *btree.BTreeG[partitionLeader]
}

// NewLeaderTable creates an empty table.
func NewLeaderTable() *LeaderTable {
	return &LeaderTable{
		tree: btree.NewG[partitionLeader](leaderTableDegree, func(a, b partitionLeader) bool {
			return a.partition < b.partition
		}),
	}
}

// Leader returns the leader of partition, or NoLeader.
func (t *LeaderTable) Leader(partition int32) (int32, bool) {
	item, ok := t.tree.Get(partitionLeader{partition: partition})
	if !ok {
		return NoLeader, false
	}
	return item.leader, true
}

// Set records leader for partition and reports whether it changed.
func (t *LeaderTable) Set(partition, leader int32) bool {
	old, replaced := t.tree.ReplaceOrInsert(partitionLeader{partition: partition, leader: leader})
	return !replaced || old.leader != leader
}

// Delete forgets partition.
func (t *LeaderTable) Delete(partition int32) {
	t.tree.Delete(partitionLeader{partition: partition})
}

// Partitions returns the known partitions in ascending order.
func (t *LeaderTable) Partitions() []int32 {
	partitions := make([]int32, 0, t.tree.Len())
	t.tree.Ascend(func(item partitionLeader) bool {
		partitions = append(partitions, item.partition)
		return true
	})
	return partitions
}

// Len returns the number of known partitions.
func (t *LeaderTable) Len() int {
	return t.tree.Len()
}

// Leaders holds one LeaderTable per topic of a route.
type Leaders struct {
	tables map[TopicKey]*LeaderTable
}

// NewLeaders creates an empty set of tables.
func NewLeaders() *Leaders {
	return &Leaders{tables: make(map[TopicKey]*LeaderTable)}
}

// Supply returns the table for topic, creating an empty one if needed.
func (l *Leaders) Supply(topic TopicKey) *LeaderTable {
	table, ok := l.tables[topic]
	if !ok {
		table = NewLeaderTable()
		l.tables[topic] = table
	}
	return table
}

// Lookup returns the table for topic without creating it.
func (l *Leaders) Lookup(topic TopicKey) (*LeaderTable, bool) {
	table, ok := l.tables[topic]
	return table, ok
}

// Remove drops the table for topic.
func (l *Leaders) Remove(topic TopicKey) {
	delete(l.tables, topic)
}
