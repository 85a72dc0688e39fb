package serde

import (
	"errors"
	"fmt"

	"github.com/CefBoud/kafkamux/types"
)

// ErrEmptyExtension is returned when an extension is required but absent
var ErrEmptyExtension = errors.New("serde: empty extension")

// EncodeBeginEx encodes typeId(int32) kind(uint8) followed by the raw kind payload.
func EncodeBeginEx(ex types.BeginEx) []byte {
	e := NewEncoder()
	e.PutInt32(uint32(ex.TypeID))
	e.PutInt8(uint8(ex.Kind))
	e.PutBytes(ex.Payload)
	return e.Bytes()
}

// DecodeBeginEx decodes the extension header of a BEGIN frame.
func DecodeBeginEx(b []byte) (types.BeginEx, error) {
	if len(b) == 0 {
		return types.BeginEx{}, ErrEmptyExtension
	}
	d := NewDecoder(b)
	ex := types.BeginEx{
		TypeID: d.Int32(),
		Kind:   types.Kind(d.UInt8()),
	}
	if err := d.Err(); err != nil {
		return types.BeginEx{}, fmt.Errorf("decoding begin extension: %w", err)
	}
	ex.Payload = d.GetNBytes(d.Remaining())
	return ex, nil
}

// BeginExTypeID returns the type id of a begin extension.
func BeginExTypeID(b []byte) (int32, error) {
	if len(b) == 0 {
		return 0, ErrEmptyExtension
	}
	d := NewDecoder(b)
	typeID := d.Int32()
	return typeID, d.Err()
}

func finish[T any](d *Decoder, v T, what string) (T, error) {
	if err := d.Err(); err != nil {
		var zero T
		return zero, fmt.Errorf("decoding %s: %w", what, err)
	}
	return v, nil
}

// EncodeMetaBeginEx encodes a META begin payload
func EncodeMetaBeginEx(ex types.MetaBeginEx) []byte {
	e := NewEncoder()
	e.PutCompactString(ex.Topic)
	return e.Bytes()
}

// DecodeMetaBeginEx decodes a META begin payload
func DecodeMetaBeginEx(b []byte) (types.MetaBeginEx, error) {
	d := NewDecoder(b)
	return finish(&d, types.MetaBeginEx{Topic: d.CompactString()}, "meta begin")
}

// EncodeDescribeBeginEx encodes a DESCRIBE begin payload
func EncodeDescribeBeginEx(ex types.DescribeBeginEx) []byte {
	e := NewEncoder()
	e.PutCompactString(ex.Topic)
	e.PutCompactArrayLen(len(ex.Configs))
	for _, c := range ex.Configs {
		e.PutCompactString(c)
	}
	return e.Bytes()
}

// DecodeDescribeBeginEx decodes a DESCRIBE begin payload
func DecodeDescribeBeginEx(b []byte) (types.DescribeBeginEx, error) {
	d := NewDecoder(b)
	ex := types.DescribeBeginEx{Topic: d.CompactString()}
	n := d.CompactArrayLen()
	for i := 0; i < n && d.Err() == nil; i++ {
		ex.Configs = append(ex.Configs, d.CompactString())
	}
	return finish(&d, ex, "describe begin")
}

// EncodeGroupBeginEx encodes a GROUP begin payload
func EncodeGroupBeginEx(ex types.GroupBeginEx) []byte {
	e := NewEncoder()
	e.PutCompactString(string(ex.GroupID))
	e.PutCompactString(ex.Protocol)
	e.PutInt32(uint32(ex.TimeoutMs))
	return e.Bytes()
}

// DecodeGroupBeginEx decodes a GROUP begin payload
func DecodeGroupBeginEx(b []byte) (types.GroupBeginEx, error) {
	d := NewDecoder(b)
	ex := types.GroupBeginEx{
		GroupID:   types.GroupID(d.CompactString()),
		Protocol:  d.CompactString(),
		TimeoutMs: d.Int32(),
	}
	return finish(&d, ex, "group begin")
}

// EncodeConsumerBeginEx encodes a CONSUMER begin payload
func EncodeConsumerBeginEx(ex types.ConsumerBeginEx) []byte {
	e := NewEncoder()
	e.PutCompactString(string(ex.GroupID))
	e.PutCompactString(ex.Topic)
	e.PutCompactInt32Array(ex.Partitions)
	return e.Bytes()
}

// DecodeConsumerBeginEx decodes a CONSUMER begin payload
func DecodeConsumerBeginEx(b []byte) (types.ConsumerBeginEx, error) {
	d := NewDecoder(b)
	ex := types.ConsumerBeginEx{
		GroupID:    types.GroupID(d.CompactString()),
		Topic:      d.CompactString(),
		Partitions: d.CompactInt32Array(),
	}
	return finish(&d, ex, "consumer begin")
}

// EncodeOffsetFetchBeginEx encodes an OFFSET_FETCH begin payload
func EncodeOffsetFetchBeginEx(ex types.OffsetFetchBeginEx) []byte {
	e := NewEncoder()
	e.PutCompactString(string(ex.GroupID))
	e.PutCompactString(ex.Topic)
	e.PutCompactInt32Array(ex.Partitions)
	return e.Bytes()
}

// DecodeOffsetFetchBeginEx decodes an OFFSET_FETCH begin payload
func DecodeOffsetFetchBeginEx(b []byte) (types.OffsetFetchBeginEx, error) {
	d := NewDecoder(b)
	ex := types.OffsetFetchBeginEx{
		GroupID:    types.GroupID(d.CompactString()),
		Topic:      d.CompactString(),
		Partitions: d.CompactInt32Array(),
	}
	return finish(&d, ex, "offset fetch begin")
}

// EncodeFetchBeginEx encodes a FETCH begin payload
func EncodeFetchBeginEx(ex types.FetchBeginEx) []byte {
	e := NewEncoder()
	e.PutCompactString(ex.Topic)
	e.PutInt32(uint32(ex.PartitionID))
	e.PutInt64(uint64(ex.PartitionOffset))
	return e.Bytes()
}

// DecodeFetchBeginEx decodes a FETCH begin payload
func DecodeFetchBeginEx(b []byte) (types.FetchBeginEx, error) {
	d := NewDecoder(b)
	ex := types.FetchBeginEx{
		Topic:           d.CompactString(),
		PartitionID:     d.Int32(),
		PartitionOffset: d.Int64(),
	}
	return finish(&d, ex, "fetch begin")
}

// EncodeProduceBeginEx encodes a PRODUCE begin payload
func EncodeProduceBeginEx(ex types.ProduceBeginEx) []byte {
	e := NewEncoder()
	e.PutCompactString(ex.Topic)
	e.PutInt32(uint32(ex.PartitionID))
	return e.Bytes()
}

// DecodeProduceBeginEx decodes a PRODUCE begin payload
func DecodeProduceBeginEx(b []byte) (types.ProduceBeginEx, error) {
	d := NewDecoder(b)
	ex := types.ProduceBeginEx{
		Topic:       d.CompactString(),
		PartitionID: d.Int32(),
	}
	return finish(&d, ex, "produce begin")
}

// EncodeMergedBeginEx encodes a MERGED begin payload
func EncodeMergedBeginEx(ex types.MergedBeginEx) []byte {
	e := NewEncoder()
	e.PutCompactString(ex.Topic)
	e.PutCompactInt32Array(ex.Partitions)
	return e.Bytes()
}

// DecodeMergedBeginEx decodes a MERGED begin payload
func DecodeMergedBeginEx(b []byte) (types.MergedBeginEx, error) {
	d := NewDecoder(b)
	ex := types.MergedBeginEx{
		Topic:      d.CompactString(),
		Partitions: d.CompactInt32Array(),
	}
	return finish(&d, ex, "merged begin")
}

// EncodeBootstrapBeginEx encodes a BOOTSTRAP begin payload
func EncodeBootstrapBeginEx(ex types.BootstrapBeginEx) []byte {
	e := NewEncoder()
	e.PutCompactString(ex.Topic)
	return e.Bytes()
}

// DecodeBootstrapBeginEx decodes a BOOTSTRAP begin payload
func DecodeBootstrapBeginEx(b []byte) (types.BootstrapBeginEx, error) {
	d := NewDecoder(b)
	return finish(&d, types.BootstrapBeginEx{Topic: d.CompactString()}, "bootstrap begin")
}

// EncodeProduceDataEx encodes the extension of the first segment of a produced message
func EncodeProduceDataEx(ex types.ProduceDataEx) []byte {
	e := NewEncoder()
	e.PutInt32(ex.CRC32C)
	e.PutInt64(uint64(ex.Length))
	return e.Bytes()
}

// DecodeProduceDataEx decodes a produce data extension
func DecodeProduceDataEx(b []byte) (types.ProduceDataEx, error) {
	d := NewDecoder(b)
	ex := types.ProduceDataEx{
		CRC32C: d.UInt32(),
		Length: d.Int64(),
	}
	return finish(&d, ex, "produce data")
}

// EncodeFetchDataEx encodes a fetch data extension
func EncodeFetchDataEx(ex types.FetchDataEx) []byte {
	e := NewEncoder()
	e.PutInt32(uint32(ex.PartitionID))
	e.PutInt64(uint64(ex.Offset))
	return e.Bytes()
}

// DecodeFetchDataEx decodes a fetch data extension
func DecodeFetchDataEx(b []byte) (types.FetchDataEx, error) {
	d := NewDecoder(b)
	ex := types.FetchDataEx{
		PartitionID: d.Int32(),
		Offset:      d.Int64(),
	}
	return finish(&d, ex, "fetch data")
}

// EncodeMetaDataEx encodes the partition leaders of a topic
func EncodeMetaDataEx(ex types.MetaDataEx) []byte {
	e := NewEncoder()
	e.PutCompactArrayLen(len(ex.Partitions))
	for _, p := range ex.Partitions {
		e.PutInt32(uint32(p.PartitionID))
		e.PutInt32(uint32(p.LeaderID))
	}
	return e.Bytes()
}

// DecodeMetaDataEx decodes the partition leaders of a topic
func DecodeMetaDataEx(b []byte) (types.MetaDataEx, error) {
	d := NewDecoder(b)
	var ex types.MetaDataEx
	n := d.CompactArrayLen()
	for i := 0; i < n && d.Err() == nil; i++ {
		ex.Partitions = append(ex.Partitions, types.PartitionLeader{
			PartitionID: d.Int32(),
			LeaderID:    d.Int32(),
		})
	}
	return finish(&d, ex, "meta data")
}

// EncodeDescribeDataEx encodes topic configs
func EncodeDescribeDataEx(ex types.DescribeDataEx) []byte {
	e := NewEncoder()
	e.PutCompactArrayLen(len(ex.Configs))
	for _, c := range ex.Configs {
		e.PutCompactString(c.Name)
		e.PutCompactString(c.Value)
	}
	return e.Bytes()
}

// DecodeDescribeDataEx decodes topic configs
func DecodeDescribeDataEx(b []byte) (types.DescribeDataEx, error) {
	d := NewDecoder(b)
	var ex types.DescribeDataEx
	n := d.CompactArrayLen()
	for i := 0; i < n && d.Err() == nil; i++ {
		ex.Configs = append(ex.Configs, types.ConfigEntry{
			Name:  d.CompactString(),
			Value: d.CompactString(),
		})
	}
	return finish(&d, ex, "describe data")
}

// EncodeGroupDataEx encodes a group membership generation
func EncodeGroupDataEx(ex types.GroupDataEx) []byte {
	e := NewEncoder()
	e.PutInt32(uint32(ex.GenerationID))
	e.PutInt64(uint64(ex.LeaderID))
	e.PutCompactArrayLen(len(ex.Members))
	for _, m := range ex.Members {
		e.PutInt64(uint64(m))
	}
	return e.Bytes()
}

// DecodeGroupDataEx decodes a group membership generation
func DecodeGroupDataEx(b []byte) (types.GroupDataEx, error) {
	d := NewDecoder(b)
	ex := types.GroupDataEx{
		GenerationID: d.Int32(),
		LeaderID:     d.Int64(),
	}
	n := d.CompactArrayLen()
	for i := 0; i < n && d.Err() == nil; i++ {
		ex.Members = append(ex.Members, d.Int64())
	}
	return finish(&d, ex, "group data")
}

// EncodeResetEx encodes a reset or abort extension
func EncodeResetEx(ex types.ResetEx) []byte {
	e := NewEncoder()
	e.PutInt16(uint16(ex.ErrorCode))
	return e.Bytes()
}

// DecodeResetEx decodes a reset or abort extension
func DecodeResetEx(b []byte) (types.ResetEx, error) {
	d := NewDecoder(b)
	return finish(&d, types.ResetEx{ErrorCode: d.Int16()}, "reset")
}

func putPartitionOffset(e *Encoder, o types.PartitionOffset) {
	e.PutCompactString(o.Topic())
	e.PutInt32(uint32(o.PartitionID()))
	e.PutInt64(uint64(o.PartitionOffset()))
	e.PutInt32(uint32(o.GenerationID()))
	e.PutInt32(uint32(o.LeaderEpoch()))
	e.PutCompactString(o.Metadata())
	e.PutInt64(uint64(o.CorrelationID()))
}

func partitionOffset(d *Decoder) types.PartitionOffset {
	topic := d.CompactString()
	partitionID := d.Int32()
	offset := d.Int64()
	generationID := d.Int32()
	leaderEpoch := d.Int32()
	metadata := d.CompactString()
	correlationID := d.Int64()
	return types.NewPartitionOffset(topic, partitionID, offset, generationID, leaderEpoch, metadata).
		WithCorrelationID(correlationID)
}

// EncodePartitionOffset encodes a single offset record
func EncodePartitionOffset(o types.PartitionOffset) []byte {
	e := NewEncoder()
	putPartitionOffset(&e, o)
	return e.Bytes()
}

// DecodePartitionOffset decodes a single offset record
func DecodePartitionOffset(b []byte) (types.PartitionOffset, error) {
	d := NewDecoder(b)
	return finish(&d, partitionOffset(&d), "partition offset")
}

// EncodePartitionOffsets encodes a compact array of offset records
func EncodePartitionOffsets(offsets []types.PartitionOffset) []byte {
	e := NewEncoder()
	e.PutCompactArrayLen(len(offsets))
	for _, o := range offsets {
		putPartitionOffset(&e, o)
	}
	return e.Bytes()
}

// DecodePartitionOffsets decodes a compact array of offset records
func DecodePartitionOffsets(b []byte) ([]types.PartitionOffset, error) {
	d := NewDecoder(b)
	n := d.CompactArrayLen()
	offsets := make([]types.PartitionOffset, 0, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		offsets = append(offsets, partitionOffset(&d))
	}
	return finish(&d, offsets, "partition offsets")
}
