package types

// BeginEx is the extension of a BEGIN frame. Payload holds the encoded
// kind-specific extension.
type BeginEx struct {
	TypeID  int32
	Kind    Kind
	Payload []byte
}

// MetaBeginEx opens a META stream for the partitions and leaders of a topic.
type MetaBeginEx struct {
	Topic string
}

// DescribeBeginEx opens a DESCRIBE stream for topic configs.
type DescribeBeginEx struct {
	Topic   string
	Configs []string
}

// GroupBeginEx opens a GROUP stream.
type GroupBeginEx struct {
	GroupID   GroupID
	Protocol  string
	TimeoutMs int32
}

// ConsumerBeginEx opens a CONSUMER stream that commits offsets.
type ConsumerBeginEx struct {
	GroupID    GroupID
	Topic      string
	Partitions []int32
}

// OffsetFetchBeginEx opens an OFFSET_FETCH stream.
type OffsetFetchBeginEx struct {
	GroupID    GroupID
	Topic      string
	Partitions []int32
}

// FetchBeginEx opens a FETCH stream on one topic partition.
type FetchBeginEx struct {
	Topic           string
	PartitionID     int32
	PartitionOffset int64
}

// ProduceBeginEx opens a PRODUCE stream on one topic partition.
type ProduceBeginEx struct {
	Topic       string
	PartitionID int32
}

// MergedBeginEx opens a MERGED stream over several partitions. No partitions means all known.
type MergedBeginEx struct {
	Topic      string
	Partitions []int32
}

// BootstrapBeginEx opens a BOOTSTRAP stream that keeps topic metadata warm.
type BootstrapBeginEx struct {
	Topic string
}

// ProduceDataEx is carried by the first segment of a produced message.
type ProduceDataEx struct {
	CRC32C uint32
	Length int64
}

// FetchDataEx is carried by fetched data frames.
type FetchDataEx struct {
	PartitionID int32
	Offset      int64
}

// MetaDataEx lists the partition leaders of a topic.
type MetaDataEx struct {
	Partitions []PartitionLeader
}

// PartitionLeader pairs a partition with its current leader.
type PartitionLeader struct {
	PartitionID int32
	LeaderID    int32
}

// ConfigEntry is one topic config value.
type ConfigEntry struct {
	Name  string
	Value string
}

// DescribeDataEx carries the configs of a topic.
type DescribeDataEx struct {
	Configs []ConfigEntry
}

// GroupDataEx announces a new generation of group membership.
type GroupDataEx struct {
	GenerationID int32
	LeaderID     int64
	Members      []int64
}

// ResetEx carries the error that caused a RESET or ABORT.
type ResetEx struct {
	ErrorCode int16
}
