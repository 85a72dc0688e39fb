// Package storage persists committed consumer group offsets.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/CefBoud/kafkamux/serde"
	"github.com/CefBoud/kafkamux/types"
	"github.com/CefBoud/kafkamux/utils"
	"github.com/boltdb/bolt"
)

const (
	offsetsFile  = "offsets.db"
	keyVersion   = 1
	valueVersion = 1
)

// NoOffset is reported for a partition without a committed offset.
const NoOffset int64 = -1

var (
	// ErrClosed is returned by a store that was closed
	ErrClosed = errors.New("offset store closed")
	// ErrBadRecord is returned for a stored record that cannot be decoded
	ErrBadRecord = errors.New("malformed offset record")
)

// OffsetStore keeps the latest committed offset of every group, topic and
// partition in a bolt database, one bucket per group.
type OffsetStore struct {
	db *bolt.DB
}

// OpenOffsetStore opens or creates the offsets database under dir.
func OpenOffsetStore(dir string) (*OffsetStore, error) {
	path, err := utils.DataFile(dir, offsetsFile)
	if err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &OffsetStore{db: db}, nil
}

// the version prefixed key is group scoped by the bucket: version, topic, partition
func offsetKey(topic string, partition int32) []byte {
	e := serde.NewEncoder()
	e.PutInt16(keyVersion)
	e.PutCompactString(topic)
	e.PutInt32(uint32(partition))
	return e.Bytes()
}

func topicPrefix(topic string) []byte {
	e := serde.NewEncoder()
	e.PutInt16(keyVersion)
	e.PutCompactString(topic)
	return e.Bytes()
}

func offsetValue(o types.PartitionOffset) []byte {
	e := serde.NewEncoder()
	e.PutInt16(valueVersion)
	e.PutInt64(uint64(o.PartitionOffset()))
	e.PutInt32(uint32(o.GenerationID()))
	e.PutInt32(uint32(o.LeaderEpoch()))
	e.PutCompactString(o.Metadata())
	e.PutInt64(utils.NowAsUnixMilli()) // commitTimestamp
	return e.Bytes()
}

func decodeOffset(topic string, key, value []byte) (types.PartitionOffset, error) {
	kd := serde.NewDecoder(key)
	_ = kd.UInt16() // version
	_ = kd.CompactString()
	partition := kd.Int32()

	vd := serde.NewDecoder(value)
	_ = vd.UInt16() // version
	offset := vd.Int64()
	generation := vd.Int32()
	epoch := vd.Int32()
	metadata := vd.CompactString()
	if kd.Err() != nil || vd.Err() != nil {
		return types.PartitionOffset{}, fmt.Errorf("%w: %s", ErrBadRecord, topic)
	}
	return types.NewPartitionOffset(topic, partition, offset, generation, epoch, metadata), nil
}

// Commit stores o as the latest offset of its partition for group.
func (s *OffsetStore) Commit(group types.GroupID, o types.PartitionOffset) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(group))
		if err != nil {
			return err
		}
		return bucket.Put(offsetKey(o.Topic(), o.PartitionID()), offsetValue(o))
	})
}

// Fetch returns the committed offsets of group for topic. When partitions is
// empty every committed partition of topic is returned in partition order;
// otherwise one record per requested partition, with NoOffset where nothing
// was committed.
func (s *OffsetStore) Fetch(group types.GroupID, topic string, partitions []int32) ([]types.PartitionOffset, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var offsets []types.PartitionOffset
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(group))
		if len(partitions) > 0 {
			for _, p := range partitions {
				var value []byte
				if bucket != nil {
					value = bucket.Get(offsetKey(topic, p))
				}
				if value == nil {
					offsets = append(offsets, types.NewPartitionOffset(topic, p, NoOffset, -1, -1, ""))
					continue
				}
				o, err := decodeOffset(topic, offsetKey(topic, p), value)
				if err != nil {
					return err
				}
				offsets = append(offsets, o)
			}
			return nil
		}
		if bucket == nil {
			return nil
		}
		prefix := topicPrefix(topic)
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			o, err := decodeOffset(topic, k, v)
			if err != nil {
				return err
			}
			offsets = append(offsets, o)
		}
		return nil
	})
	return offsets, err
}

// Groups returns the ids of every group with committed offsets.
func (s *OffsetStore) Groups() ([]types.GroupID, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var groups []types.GroupID
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			groups = append(groups, types.GroupID(name))
			return nil
		})
	})
	return groups, err
}

// Close closes the database.
func (s *OffsetStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
