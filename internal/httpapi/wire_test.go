package httpapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// S6: the header's own declared length must always equal the byte offset
// where the header actually ends, regardless of how many digits L itself
// needs -- this is the self-balancing property the original's size_info
// construction exists for, and is a stronger check than matching any one
// worked example's literal numbers.
func TestEncodeDealsTopHeaderLengthIsSelfConsistent(t *testing.T) {
	cases := [][][]byte{
		{{0: 1, 1: 2, 2: 3, 3: 4, 4: 5, 5: 6, 6: 7, 7: 8, 8: 9, 9: 10}},
		make([][]byte, 11),
		make([][]byte, 150), // pushes the sizes block length across a power of ten
	}
	for _, blobs := range cases {
		for i := range blobs {
			if blobs[i] == nil {
				blobs[i] = make([]byte, 10)
			}
		}
		encoded := EncodeDealsTop(blobs)

		semi := indexByte(encoded, ';')
		require.GreaterOrEqual(t, semi, 0)
		l := atoi(t, encoded[:semi])
		require.LessOrEqual(t, l, len(encoded))

		header := encoded[:l]
		require.Equal(t, byte(';'), header[len(header)-1], "header must end on the final size-field separator")
		require.Equal(t, blobs[0], encoded[l:l+len(blobs[0])], "first blob must start right where the declared header ends")
	}
}

func TestEncodeDecodeDealsTopRoundTrip(t *testing.T) {
	blobs := [][]byte{[]byte("hello"), []byte("a"), []byte("flight deal payload")}
	encoded := EncodeDealsTop(blobs)

	decoded, err := DecodeDealsTop(encoded)
	require.NoError(t, err)
	require.Equal(t, blobs, decoded)
}

func TestEncodeDealsTopEmpty(t *testing.T) {
	encoded := EncodeDealsTop(nil)
	decoded, err := DecodeDealsTop(encoded)
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestDecodeDealsTopRejectsTruncatedBody(t *testing.T) {
	_, err := DecodeDealsTop([]byte("5;10;x"))
	require.Error(t, err)
}

func TestDecodeDealsTopRejectsMissingHeader(t *testing.T) {
	_, err := DecodeDealsTop([]byte("garbage"))
	require.Error(t, err)
}

func atoi(t *testing.T, b []byte) int {
	t.Helper()
	n := 0
	for _, c := range b {
		require.True(t, c >= '0' && c <= '9')
		n = n*10 + int(c-'0')
	}
	return n
}
