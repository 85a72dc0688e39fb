package compress

import (
	"bytes"
	"io"
	"sync"

	log "github.com/CefBoud/kafkamux/logging"
	"github.com/klauspost/compress/gzip"
)

// GzipCompressor implements Compressor interface with the default level
type GzipCompressor struct{}

var (
	gzipWriterPool = sync.Pool{
		New: func() any {
			return gzip.NewWriter(nil)
		},
	}
	// gzip.NewReader needs a valid header, so readers are only created on demand
	gzipReaderPool sync.Pool
)

// resetWriter is a pooled streaming compressor
type resetWriter interface {
	io.WriteCloser
	Reset(w io.Writer)
}

func compressPooled(pool *sync.Pool, data []byte, name string) ([]byte, error) {
	var buf bytes.Buffer
	writer := pool.Get().(resetWriter)
	defer pool.Put(writer)
	writer.Reset(&buf)

	if _, err := writer.Write(data); err != nil {
		log.Error("Failed to compress data with %s: %v", name, err)
		return nil, err
	}
	if err := writer.Close(); err != nil {
		log.Error("Failed to close %s writer: %v", name, err)
		return nil, err
	}
	return buf.Bytes(), nil
}

// Compress takes in data and applies gzip to it
func (c *GzipCompressor) Compress(data []byte) ([]byte, error) {
	return compressPooled(&gzipWriterPool, data, "gzip")
}

// Decompress decompresses gzip-compressed data
func (c *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	var err error
	bytesReader := bytes.NewReader(data)
	gzipReader, found := gzipReaderPool.Get().(*gzip.Reader)
	if found {
		err = gzipReader.Reset(bytesReader)
	} else {
		gzipReader, err = gzip.NewReader(bytesReader)
	}
	if err != nil {
		return nil, err
	}
	defer gzipReaderPool.Put(gzipReader)

	decompressedData, err := io.ReadAll(gzipReader)
	if err != nil {
		log.Error("Failed to decompress data: %v", err)
		return nil, err
	}
	return decompressedData, gzipReader.Close()
}
