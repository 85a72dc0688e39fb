package compress

// Kafka clients frame snappy blocks the way the Java xerial library does,
// which plain github.com/golang/snappy cannot read.
import snappy "github.com/eapache/go-xerial-snappy"

// SnappyCompressor implements Compressor interface with xerial framing
type SnappyCompressor struct{}

// Compress takes in data and applies framed snappy to it
func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.EncodeStream(nil, data), nil
}

// Decompress decompresses framed or raw snappy data
func (c *SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(data)
}
