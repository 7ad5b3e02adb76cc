package httpapi

import (
	"strconv"
	"strings"

	"github.com/flightdeals/dealsindex/internal/dealerrs"
)

// EncodeDealsTop packs blobs into spec.md §6.2's self-describing wire
// format:
//
//	<L>;<s1>;<s2>;...;<sN>;<blob1><blob2>...<blobN>
//
// L is the decimal length, in bytes, of the header up to and including the
// final ";" before blob1, grounded on DealsServer::getTop's size_info
// construction (src/deals_server.cpp): first guess L's digit width from the
// sizes block alone, then re-check once, since adding L's own digits can
// push the sizes block length past a power of ten and grow L's digit width
// again.
func EncodeDealsTop(blobs [][]byte) []byte {
	var sizes strings.Builder
	for _, b := range blobs {
		sizes.WriteString(strconv.Itoa(len(b)))
		sizes.WriteByte(';')
	}
	sizesLen := sizes.Len()

	sizesStrlen := len(strconv.Itoa(sizesLen))
	if len(strconv.Itoa(sizesLen+sizesStrlen+1)) != sizesStrlen {
		sizesStrlen++
	}
	l := sizesLen + sizesStrlen + 1

	out := make([]byte, 0, l+totalLen(blobs))
	out = append(out, strconv.Itoa(l)...)
	out = append(out, ';')
	out = append(out, sizes.String()...)
	for _, b := range blobs {
		out = append(out, b...)
	}
	return out
}

func totalLen(blobs [][]byte) int {
	n := 0
	for _, b := range blobs {
		n += len(b)
	}
	return n
}

// DecodeDealsTop is EncodeDealsTop's inverse, used by dealsctl and by the
// wire format's own round-trip tests.
func DecodeDealsTop(data []byte) ([][]byte, error) {
	semi := indexByte(data, ';')
	if semi < 0 {
		return nil, dealerrs.New(dealerrs.KindBadParameter, "deals/top body: missing header length field")
	}
	l, err := strconv.Atoi(string(data[:semi]))
	if err != nil || l < 0 || l > len(data) {
		return nil, dealerrs.New(dealerrs.KindBadParameter, "deals/top body: bad header length %q", data[:semi])
	}

	header := data[:l]
	body := data[l:]

	rest := header[semi+1:]
	var sizes []int
	for len(rest) > 0 {
		i := indexByte(rest, ';')
		if i < 0 {
			return nil, dealerrs.New(dealerrs.KindBadParameter, "deals/top body: unterminated size field")
		}
		n, err := strconv.Atoi(string(rest[:i]))
		if err != nil || n < 0 {
			return nil, dealerrs.New(dealerrs.KindBadParameter, "deals/top body: bad blob size %q", rest[:i])
		}
		sizes = append(sizes, n)
		rest = rest[i+1:]
	}

	blobs := make([][]byte, 0, len(sizes))
	off := 0
	for _, n := range sizes {
		if off+n > len(body) {
			return nil, dealerrs.New(dealerrs.KindBadParameter, "deals/top body: truncated blob")
		}
		blobs = append(blobs, body[off:off+n])
		off += n
	}
	return blobs, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
