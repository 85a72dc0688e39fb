package types

import "fmt"

// GroupID represents the identifier of a consumer group.
type GroupID string

// TopicPartition identifies a partition of a topic by name.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}
