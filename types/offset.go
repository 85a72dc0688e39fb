package types

import "fmt"

// NoCorrelationID marks a PartitionOffset that is not tied to a request.
const NoCorrelationID int64 = -1

// PartitionOffset is an immutable offset commit record for one topic partition.
type PartitionOffset struct {
	topic           string
	partitionID     int32
	partitionOffset int64
	generationID    int32
	leaderEpoch     int32
	metadata        string
	correlationID   int64
}

// NewPartitionOffset creates a record without a correlation id.
func NewPartitionOffset(topic string, partitionID int32, partitionOffset int64, generationID, leaderEpoch int32, metadata string) PartitionOffset {
	return PartitionOffset{
		topic:           topic,
		partitionID:     partitionID,
		partitionOffset: partitionOffset,
		generationID:    generationID,
		leaderEpoch:     leaderEpoch,
		metadata:        metadata,
		correlationID:   NoCorrelationID,
	}
}

// WithCorrelationID returns a copy of o carrying id.
func (o PartitionOffset) WithCorrelationID(id int64) PartitionOffset {
	o.correlationID = id
	return o
}

func (o PartitionOffset) Topic() string { return o.topic }
func (o PartitionOffset) PartitionID() int32 { return o.partitionID }
func (o PartitionOffset) PartitionOffset() int64 { return o.partitionOffset }
func (o PartitionOffset) GenerationID() int32 { return o.generationID }
func (o PartitionOffset) LeaderEpoch() int32 { return o.leaderEpoch }
func (o PartitionOffset) Metadata() string { return o.metadata }
func (o PartitionOffset) CorrelationID() int64 { return o.correlationID }

// TopicPartition returns the partition the record refers to.
func (o PartitionOffset) TopicPartition() TopicPartition {
	return TopicPartition{Topic: o.topic, Partition: o.partitionID}
}

func (o PartitionOffset) String() string {
	return fmt.Sprintf("%s-%d@%d gen=%d epoch=%d corr=%d", o.topic, o.partitionID, o.partitionOffset, o.generationID, o.leaderEpoch, o.correlationID)
}
