package route

import "fmt"

// TopicKey is the interned id of a topic name. Zero is never assigned.
type TopicKey uint32

// PartitionKey packs a topic key and a partition id into one 64-bit key:
// the topic key in the upper 32 bits, the partition id in the lower 32 bits.
type PartitionKey uint64

// NewPartitionKey combines topic and partitionID.
func NewPartitionKey(topic TopicKey, partitionID int32) PartitionKey {
	return PartitionKey(uint64(topic)<<32 | uint64(uint32(partitionID)))
}

// Split returns the topic key and partition id packed in k.
func (k PartitionKey) Split() (TopicKey, int32) {
	return TopicKey(k >> 32), int32(uint32(k))
}

func (k PartitionKey) String() string {
	topic, partition := k.Split()
	return fmt.Sprintf("%d:%d", topic, partition)
}

// Topics interns topic names. Equal names always map to the same key for the
// lifetime of the interner.
type Topics struct {
	keys  map[string]TopicKey
	names []string
}

// NewTopics creates an empty interner.
func NewTopics() *Topics {
	return &Topics{
		keys:  make(map[string]TopicKey),
		names: []string{""},
	}
}

// Intern returns the key of topic, assigning the next key on first sight.
func (t *Topics) Intern(topic string) TopicKey {
	if key, ok := t.keys[topic]; ok {
		return key
	}
	key := TopicKey(len(t.names))
	t.keys[topic] = key
	t.names = append(t.names, topic)
	return key
}

// Lookup returns the key of topic without interning it.
func (t *Topics) Lookup(topic string) (TopicKey, bool) {
	key, ok := t.keys[topic]
	return key, ok
}

// Name returns the topic interned as key.
func (t *Topics) Name(key TopicKey) (string, bool) {
	if key == 0 || int(key) >= len(t.names) {
		return "", false
	}
	return t.names[key], true
}

// Len returns the number of interned topics.
func (t *Topics) Len() int {
	return len(t.keys)
}

// PartitionKey interns topic and returns its key for partitionID.
func (t *Topics) PartitionKey(topic string, partitionID int32) PartitionKey {
	return NewPartitionKey(t.Intern(topic), partitionID)
}
