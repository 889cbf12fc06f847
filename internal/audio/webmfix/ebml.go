package webmfix

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// Element IDs of the Matroska subset this package understands. IDs are
// stored with their marker bits, as they appear on the wire.
const (
	idEBML          = 0x1A45DFA3
	idSegment       = 0x18538067
	idInfo          = 0x1549A966
	idTimecodeScale = 0x2AD7B1
	idDuration      = 0x4489
	idCluster       = 0x1F43B675
	idTimecode      = 0xE7
	idSimpleBlock   = 0xA3
	idBlockGroup    = 0xA0
	idBlock         = 0xA1
)

// defaultTimecodeScale is one millisecond in nanoseconds, the Matroska
// default and what media recorders emit in practice.
const defaultTimecodeScale = 1_000_000

var errTruncated = errors.New("truncated EBML data")

// readID decodes an EBML element ID starting at data[pos]. The returned
// value keeps the length-marker bits, matching the id constants above.
func readID(data []byte, pos int) (id uint32, n int, err error) {
	if pos >= len(data) {
		return 0, 0, errTruncated
	}
	b := data[pos]
	if b == 0 {
		return 0, 0, fmt.Errorf("invalid EBML ID byte 0x00 at %d", pos)
	}
	n = bits.LeadingZeros8(b) + 1
	if n > 4 || pos+n > len(data) {
		return 0, 0, errTruncated
	}
	for i := range n {
		id = id<<8 | uint32(data[pos+i])
	}
	return id, n, nil
}

// readSize decodes an EBML size vint starting at data[pos]. unknown is
// true for the all-ones "size unknown" encoding used by streaming muxers.
func readSize(data []byte, pos int) (size int64, n int, unknown bool, err error) {
	if pos >= len(data) {
		return 0, 0, false, errTruncated
	}
	b := data[pos]
	if b == 0 {
		return 0, 0, false, fmt.Errorf("invalid EBML size byte 0x00 at %d", pos)
	}
	n = bits.LeadingZeros8(b) + 1
	if n > 8 || pos+n > len(data) {
		return 0, 0, false, errTruncated
	}

	size = int64(b &^ (0x80 >> (n - 1)))
	allOnes := size == int64(0x7F>>(n-1))
	for i := 1; i < n; i++ {
		size = size<<8 | int64(data[pos+i])
		allOnes = allOnes && data[pos+i] == 0xFF
	}
	return size, n, allOnes, nil
}

// appendSize encodes size as a minimal-length EBML vint.
func appendSize(dst []byte, size int64) []byte {
	length := 1
	for length < 8 && size >= int64(1)<<(7*length)-1 {
		length++
	}
	marker := int64(0x80) >> (length - 1) << (8 * (length - 1))
	v := size | marker
	for i := length - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// appendID encodes an element ID (marker bits included) back to bytes.
func appendID(dst []byte, id uint32) []byte {
	switch {
	case id > 0xFFFFFF:
		return append(dst, byte(id>>24), byte(id>>16), byte(id>>8), byte(id))
	case id > 0xFFFF:
		return append(dst, byte(id>>16), byte(id>>8), byte(id))
	case id > 0xFF:
		return append(dst, byte(id>>8), byte(id))
	default:
		return append(dst, byte(id))
	}
}

// readUint reads a big-endian unsigned integer element payload.
func readUint(data []byte) uint64 {
	var v uint64
	for _, b := range data {
		v = v<<8 | uint64(b)
	}
	return v
}

// readFloat reads a 4- or 8-byte big-endian float element payload.
func readFloat(data []byte) (float64, bool) {
	switch len(data) {
	case 4:
		return float64(math.Float32frombits(uint32(readUint(data)))), true
	case 8:
		return math.Float64frombits(readUint(data)), true
	}
	return 0, false
}

// appendFloat64 writes an 8-byte big-endian float payload.
func appendFloat64(dst []byte, v float64) []byte {
	u := math.Float64bits(v)
	for i := 7; i >= 0; i-- {
		dst = append(dst, byte(u>>(8*i)))
	}
	return dst
}
