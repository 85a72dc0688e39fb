// Package compress holds the codecs a topic can be configured with.
package compress

import (
	"fmt"
	"strings"
)

// Codec represents one of the supported compression types
type Codec uint8

// Kafka compression types
const (
	None   Codec = 0
	Gzip   Codec = 1
	Snappy Codec = 2
	LZ4    Codec = 3
	ZSTD   Codec = 4
)

var codecNames = [...]string{"none", "gzip", "snappy", "lz4", "zstd"}

func (c Codec) String() string {
	if int(c) < len(codecNames) {
		return codecNames[c]
	}
	return fmt.Sprintf("codec(%d)", c)
}

// ParseCodec returns the codec named name. An empty name means None.
func ParseCodec(name string) (Codec, error) {
	if name == "" {
		return None, nil
	}
	lower := strings.ToLower(name)
	for i, n := range codecNames {
		if n == lower {
			return Codec(i), nil
		}
	}
	return None, fmt.Errorf("unknown compression codec %q", name)
}

var compressors = map[Codec]Compressor{
	None:   noneCompressor{},
	Gzip:   &GzipCompressor{},
	Snappy: &SnappyCompressor{},
	LZ4:    &LZ4Compressor{},
	ZSTD:   &ZSTDCompressor{},
}

// For returns the Compressor of codec, or nil for an unknown codec
func For(codec Codec) Compressor {
	return compressors[codec]
}

// Compressor represents one of the supported compressors
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

type noneCompressor struct{}

func (noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
