package types

import "fmt"

// Kind is the discriminator carried in the opening message of every stream.
// Values match the Kafka api keys where one exists.
type Kind uint8

// Stream kinds
const (
	KindProduce     Kind = 0
	KindFetch       Kind = 1
	KindMeta        Kind = 3
	KindOffsetFetch Kind = 9
	KindDescribe    Kind = 32
	KindConsumer    Kind = 252
	KindGroup       Kind = 253
	KindBootstrap   Kind = 254
	KindMerged      Kind = 255
)

// Kinds lists every known kind in ascending order.
var Kinds = []Kind{
	KindProduce,
	KindFetch,
	KindMeta,
	KindOffsetFetch,
	KindDescribe,
	KindConsumer,
	KindGroup,
	KindBootstrap,
	KindMerged,
}

var kindNames = map[Kind]string{
	KindProduce:     "PRODUCE",
	KindFetch:       "FETCH",
	KindMeta:        "META",
	KindOffsetFetch: "OFFSET_FETCH",
	KindDescribe:    "DESCRIBE",
	KindConsumer:    "CONSUMER",
	KindGroup:       "GROUP",
	KindBootstrap:   "BOOTSTRAP",
	KindMerged:      "MERGED",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
}

// Known reports whether k is one of the nine stream kinds.
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}
