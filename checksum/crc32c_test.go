package checksum

import (
	"bytes"
	"hash/crc32"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCombineNonPositiveLengthIsIdentity(t *testing.T) {
	for _, len2 := range []int64{0, -1, -4096} {
		require.Equal(t, uint32(0xDEADBEEF), CombineCRC32C(0xDEADBEEF, 0x12345678, len2))
	}
}

func TestCombineZeroAndOnes(t *testing.T) {
	zeros := make([]byte, 32)
	ones := bytes.Repeat([]byte{0xFF}, 32)

	require.Equal(t, uint32(0x8A9136AA), CRC32C(zeros))
	require.Equal(t, uint32(0x62A8AB43), CRC32C(ones))

	whole := append(append([]byte{}, zeros...), ones...)
	require.Equal(t, CRC32C(whole), CombineCRC32C(CRC32C(zeros), CRC32C(ones), int64(len(ones))))
}

func TestCombineMatchesStdlib(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	table := crc32.MakeTable(crc32.Castagnoli)

	for i := 0; i < 200; i++ {
		a := make([]byte, rng.Intn(300))
		b := make([]byte, 1+rng.Intn(5000))
		rng.Read(a)
		rng.Read(b)

		expected := crc32.Checksum(append(append([]byte{}, a...), b...), table)
		got := CombineCRC32C(crc32.Checksum(a, table), crc32.Checksum(b, table), int64(len(b)))
		require.Equalf(t, expected, got, "len(a)=%d len(b)=%d", len(a), len(b))
	}
}

func TestAccumulatorAcrossSegments(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	payload := make([]byte, 10_000)
	rng.Read(payload)

	var acc Accumulator
	for off := 0; off < len(payload); {
		n := 1 + rng.Intn(700)
		if off+n > len(payload) {
			n = len(payload) - off
		}
		_, err := acc.Write(payload[off : off+n])
		require.NoError(t, err)
		off += n
	}

	require.Equal(t, int64(len(payload)), acc.Len())
	require.Equal(t, CRC32C(payload), acc.Sum32())
	require.NoError(t, acc.Verify(CRC32C(payload)))
	require.ErrorIs(t, acc.Verify(0), ErrChecksumMismatch)

	acc.Reset()
	require.Zero(t, acc.Len())
	acc.Append(0xFFFFFFFF, 0)
	require.Zero(t, acc.Sum32())
}
