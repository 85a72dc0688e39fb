package compress

import (
	"bytes"
	"sync"

	log "github.com/CefBoud/kafkamux/logging"
	"github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements Compressor interface
type LZ4Compressor struct{}

var (
	lz4WriterPool = sync.Pool{
		New: func() any {
			return lz4.NewWriter(nil)
		},
	}
	lz4ReaderPool = sync.Pool{
		New: func() any {
			return lz4.NewReader(nil)
		},
	}
)

// Compress takes in data and applies LZ4 framing to it
func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	return compressPooled(&lz4WriterPool, data, "lz4")
}

// Decompress decompresses LZ4-compressed data
func (c *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	reader := lz4ReaderPool.Get().(*lz4.Reader)
	defer lz4ReaderPool.Put(reader)
	reader.Reset(bytes.NewReader(data))

	var decompressedData bytes.Buffer
	if _, err := decompressedData.ReadFrom(reader); err != nil {
		log.Error("Failed to decompress data: %v", err)
		return nil, err
	}
	return decompressedData.Bytes(), nil
}
