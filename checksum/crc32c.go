// Package checksum computes CRC-32C (Castagnoli) values and combines the
// checksums of adjacent byte ranges without re-reading the bytes.
package checksum

import (
	"errors"
	"fmt"
	"hash/crc32"
)

// Castagnoli is the reversed CRC-32C polynomial.
const Castagnoli = 0x82F63B78

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// ErrChecksumMismatch is returned when an accumulated checksum differs from the expected one.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// CRC32C returns the CRC-32C checksum of b.
func CRC32C(b []byte) uint32 {
	return crc32.Checksum(b, castagnoliTable)
}

// CombineCRC32C returns the CRC-32C of the concatenation A ++ B given
// crc1 = CRC32C(A), crc2 = CRC32C(B) and len2 = len(B).
// A non-positive len2 returns crc1 unchanged.
func CombineCRC32C(crc1, crc2 uint32, len2 int64) uint32 {
	if len2 <= 0 {
		return crc1
	}

	var even, odd [32]uint32

	// operator for one zero bit in odd
	odd[0] = Castagnoli
	row := uint32(1)
	for n := 1; n < 32; n++ {
		odd[n] = row
		row <<= 1
	}

	gf2MatrixSquare(&even, &odd) // two zero bits
	gf2MatrixSquare(&odd, &even) // four zero bits

	// first squaring puts the operator for one zero byte in even
	for {
		gf2MatrixSquare(&even, &odd)
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(&even, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}

		gf2MatrixSquare(&odd, &even)
		if len2&1 != 0 {
			crc1 = gf2MatrixTimes(&odd, crc1)
		}
		len2 >>= 1
		if len2 == 0 {
			break
		}
	}

	return crc1 ^ crc2
}

func gf2MatrixTimes(mat *[32]uint32, vec uint32) uint32 {
	var sum uint32
	for i := 0; vec != 0; i++ {
		if vec&1 != 0 {
			sum ^= mat[i]
		}
		vec >>= 1
	}
	return sum
}

func gf2MatrixSquare(square, mat *[32]uint32) {
	for n := 0; n < 32; n++ {
		square[n] = gf2MatrixTimes(mat, mat[n])
	}
}

// Accumulator folds checksums of consecutive segments into the checksum of
// their concatenation. The zero value is an empty accumulator.
type Accumulator struct {
	crc    uint32
	length int64
}

// Append folds in a segment of n bytes whose checksum is segmentCRC.
func (a *Accumulator) Append(segmentCRC uint32, n int64) {
	if n <= 0 {
		return
	}
	if a.length == 0 {
		a.crc = segmentCRC
	} else {
		a.crc = CombineCRC32C(a.crc, segmentCRC, n)
	}
	a.length += n
}

// Write checksums p and appends it. It never fails.
func (a *Accumulator) Write(p []byte) (int, error) {
	a.Append(CRC32C(p), int64(len(p)))
	return len(p), nil
}

// Sum32 returns the checksum of everything appended so far.
func (a *Accumulator) Sum32() uint32 {
	return a.crc
}

// Len returns the number of bytes appended so far.
func (a *Accumulator) Len() int64 {
	return a.length
}

// Reset empties the accumulator.
func (a *Accumulator) Reset() {
	a.crc, a.length = 0, 0
}

// Verify checks the accumulated checksum against expected.
func (a *Accumulator) Verify(expected uint32) error {
	if a.crc != expected {
		return fmt.Errorf("%w: expected 0x%08X, got 0x%08X over %d bytes", ErrChecksumMismatch, expected, a.crc, a.length)
	}
	return nil
}
