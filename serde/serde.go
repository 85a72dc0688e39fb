package serde

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
)

// Encoding is Big Endian as per the protocol
var Encoding = binary.BigEndian

// ErrShortBuffer is reported when a read runs past the end of the input
var ErrShortBuffer = errors.New("serde: short buffer")

// Encoder is a byte slice with an offset
type Encoder struct {
	b      []byte // Buffer to hold encoded data
	offset int    // Current position in the buffer
}

// BufferIncrement is the initial buffer size and the minimum growth step
const BufferIncrement = 1024

// NewEncoder creates a new Encoder with an initial buffer
func NewEncoder() Encoder {
	return Encoder{b: make([]byte, BufferIncrement)}
}

// ensureBufferSpace ensures the buffer has enough space to accommodate the new data
func (e *Encoder) ensureBufferSpace(n int) {
	if e.offset+n <= len(e.b) {
		return
	}
	grow := max(BufferIncrement, len(e.b), e.offset+n-len(e.b))
	newBuffer := make([]byte, len(e.b)+grow)
	copy(newBuffer, e.b[:e.offset])
	e.b = newBuffer
}

// PutInt32 encodes a uint32 value into the buffer
func (e *Encoder) PutInt32(i uint32) {
	e.ensureBufferSpace(4)
	Encoding.PutUint32(e.b[e.offset:], i)
	e.offset += 4
}

// PutInt64 encodes a uint64 value into the buffer
func (e *Encoder) PutInt64(i uint64) {
	e.ensureBufferSpace(8)
	Encoding.PutUint64(e.b[e.offset:], i)
	e.offset += 8
}

// PutInt16 encodes a uint16 value into the buffer
func (e *Encoder) PutInt16(i uint16) {
	e.ensureBufferSpace(2)
	Encoding.PutUint16(e.b[e.offset:], i)
	e.offset += 2
}

// PutInt8 encodes a uint8 value into the buffer
func (e *Encoder) PutInt8(i uint8) {
	e.ensureBufferSpace(1)
	e.b[e.offset] = i
	e.offset++
}

// PutUvarint encodes an unsigned varint
func (e *Encoder) PutUvarint(v uint64) {
	e.ensureBufferSpace(binary.MaxVarintLen64)
	e.offset += binary.PutUvarint(e.b[e.offset:], v)
}

// PutCompactString encodes a string using a compact length format
func (e *Encoder) PutCompactString(s string) {
	e.PutUvarint(uint64(len(s) + 1))
	e.ensureBufferSpace(len(s))
	copy(e.b[e.offset:], s)
	e.offset += len(s)
}

// PutBytes encodes a byte slice into the buffer
func (e *Encoder) PutBytes(b []byte) {
	e.ensureBufferSpace(len(b))
	copy(e.b[e.offset:], b)
	e.offset += len(b)
}

// PutCompactBytes encodes a byte slice using a compact length format. A nil slice is encoded as null.
func (e *Encoder) PutCompactBytes(b []byte) {
	if b == nil {
		e.PutUvarint(0)
		return
	}
	e.PutUvarint(uint64(len(b) + 1))
	e.PutBytes(b)
}

// PutCompactArrayLen encodes the length of a compact array
func (e *Encoder) PutCompactArrayLen(l int) {
	// nil arrays should give -1
	e.PutUvarint(uint64(l + 1))
}

// PutCompactInt32Array encodes a compact array of int32
func (e *Encoder) PutCompactInt32Array(values []int32) {
	e.PutCompactArrayLen(len(values))
	for _, v := range values {
		e.PutInt32(uint32(v))
	}
}

// PutLen encodes the total length of the buffer at the start
func (e *Encoder) PutLen() {
	lengthBytes := Encoding.AppendUint32([]byte{}, uint32(e.offset))
	e.b = slices.Insert(e.b[:e.offset], 0, lengthBytes...)
	e.offset += len(lengthBytes)
}

// Bytes returns the encoded data as a byte slice
func (e *Encoder) Bytes() []byte {
	return e.b[:e.offset]
}

// Decoder is a byte slice and offset. The first out of bounds read sets Err
// and every later read returns zero values.
type Decoder struct {
	b      []byte
	Offset int
	err    error
}

// NewDecoder creates a new Decoder from a byte slice
func NewDecoder(b []byte) Decoder {
	return Decoder{b: b}
}

// Err returns the first decoding error, if any
func (d *Decoder) Err() error {
	return d.err
}

// Remaining returns the number of unread bytes
func (d *Decoder) Remaining() int {
	if d.err != nil {
		return 0
	}
	return len(d.b) - d.Offset
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.Offset+n > len(d.b) {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, d.Offset, len(d.b)-d.Offset)
		return nil
	}
	res := d.b[d.Offset : d.Offset+n]
	d.Offset += n
	return res
}

// UInt32 decodes a uint32 value from the buffer
func (d *Decoder) UInt32() uint32 {
	if b := d.take(4); b != nil {
		return Encoding.Uint32(b)
	}
	return 0
}

// UInt64 decodes a uint64 value from the buffer
func (d *Decoder) UInt64() uint64 {
	if b := d.take(8); b != nil {
		return Encoding.Uint64(b)
	}
	return 0
}

// UInt16 decodes a uint16 value from the buffer
func (d *Decoder) UInt16() uint16 {
	if b := d.take(2); b != nil {
		return Encoding.Uint16(b)
	}
	return 0
}

// UInt8 decodes a uint8 value from the buffer
func (d *Decoder) UInt8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

// Int32 decodes a signed int32
func (d *Decoder) Int32() int32 { return int32(d.UInt32()) }

// Int64 decodes a signed int64
func (d *Decoder) Int64() int64 { return int64(d.UInt64()) }

// Int16 decodes a signed int16
func (d *Decoder) Int16() int16 { return int16(d.UInt16()) }

// Int8 decodes a signed int8
func (d *Decoder) Int8() int8 { return int8(d.UInt8()) }

// Uvarint decodes an unsigned varint
func (d *Decoder) Uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.b[d.Offset:])
	if n <= 0 {
		d.err = fmt.Errorf("%w: bad uvarint at offset %d", ErrShortBuffer, d.Offset)
		return 0
	}
	d.Offset += n
	return v
}

// CompactString decodes a string with a compact format
func (d *Decoder) CompactString() string {
	stringLen := d.Uvarint()
	if stringLen == 0 { // nullable string
		return ""
	}
	return string(d.take(int(stringLen - 1)))
}

// CompactBytes decodes a byte slice with a compact length format. Null decodes to nil.
func (d *Decoder) CompactBytes() []byte {
	bytesLen := d.Uvarint()
	if bytesLen == 0 {
		return nil
	}
	res := d.take(int(bytesLen - 1))
	if res == nil && d.err == nil {
		return []byte{}
	}
	return res
}

// GetNBytes decodes `n` bytes from the buffer
func (d *Decoder) GetNBytes(n int) []byte {
	return d.take(n)
}

// CompactArrayLen decodes the length of a compact array; null decodes to 0
func (d *Decoder) CompactArrayLen() int {
	arrayLen := d.Uvarint()
	if arrayLen == 0 {
		return 0
	}
	if arrayLen-1 > uint64(d.Remaining()) {
		d.err = fmt.Errorf("%w: array of %d elements at offset %d", ErrShortBuffer, arrayLen-1, d.Offset)
		return 0
	}
	return int(arrayLen - 1)
}

// CompactInt32Array decodes a compact array of int32
func (d *Decoder) CompactInt32Array() []int32 {
	n := d.CompactArrayLen()
	if n == 0 {
		return nil
	}
	res := make([]int32, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		res = append(res, d.Int32())
	}
	return res
}
