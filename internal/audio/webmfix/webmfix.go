// Package webmfix patches the missing Duration element in WebM
// containers produced by live capture. Streaming muxers write the
// Segment with an unknown size and never go back to fill in the Info
// Duration, so players report the file as endless. Fix measures the
// real length from the cluster timeline and rewrites the Info section.
package webmfix

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrNotWebM reports input that does not start with an EBML header.
var ErrNotWebM = errors.New("webmfix: not an EBML/WebM stream")

type segmentInfo struct {
	// Info element location within the full input.
	infoHeaderOfs int // offset of the Info ID byte
	infoDataOfs   int
	infoDataLen   int

	// Segment size field location, for rewriting known-size segments.
	segSizeOfs      int
	segSizeLen      int
	segDataLen      int64
	segSizeUnknown  bool
	timecodeScale   uint64
	durationOfs     int // offset of an existing Duration payload, -1 if absent
	durationLen     int
	durationPresent bool

	lastTimecode int64 // last cluster timecode + last block offset, in scale units
	sawCluster   bool
}

// Fix returns a copy of data with the Info Duration element set to
// measured, the stream length derived from the final cluster timeline.
// When the container already carries a plausible duration the input is
// returned unchanged. Inputs that are not WebM yield ErrNotWebM.
func Fix(data []byte) ([]byte, error) {
	si, err := parse(data)
	if err != nil {
		return nil, err
	}
	if si.durationPresent {
		if v, ok := readFloat(data[si.durationOfs : si.durationOfs+si.durationLen]); ok && v > 0 {
			return data, nil
		}
	}
	if !si.sawCluster {
		return nil, errors.New("webmfix: no clusters, cannot measure duration")
	}
	return rewrite(data, si, float64(si.lastTimecode)), nil
}

// FixDuration is like Fix but stamps an externally measured length
// instead of deriving one from the cluster timeline. Capture pipelines
// that track elapsed wall time use this when the container carries no
// clusters worth trusting.
func FixDuration(data []byte, d time.Duration) ([]byte, error) {
	si, err := parse(data)
	if err != nil {
		return nil, err
	}
	if si.durationPresent {
		if v, ok := readFloat(data[si.durationOfs : si.durationOfs+si.durationLen]); ok && v > 0 {
			return data, nil
		}
	}
	units := float64(d) / float64(si.timecodeScale)
	return rewrite(data, si, units), nil
}

// Duration measures the stream length without modifying it. It prefers
// a recorded Info Duration and falls back to the cluster timeline.
func Duration(data []byte) (time.Duration, error) {
	si, err := parse(data)
	if err != nil {
		return 0, err
	}
	scale := si.timecodeScale
	if si.durationPresent {
		if v, ok := readFloat(data[si.durationOfs : si.durationOfs+si.durationLen]); ok && v > 0 {
			return time.Duration(v * float64(scale)), nil
		}
	}
	if !si.sawCluster {
		return 0, errors.New("webmfix: no clusters, cannot measure duration")
	}
	return time.Duration(si.lastTimecode) * time.Duration(scale), nil
}

func parse(data []byte) (*segmentInfo, error) {
	si := &segmentInfo{timecodeScale: defaultTimecodeScale, durationOfs: -1}

	pos := 0
	id, n, err := readID(data, pos)
	if err != nil || id != idEBML {
		return nil, ErrNotWebM
	}
	pos += n
	size, n, unknown, err := readSize(data, pos)
	if err != nil || unknown {
		return nil, ErrNotWebM
	}
	pos += n + int(size)

	id, n, err = readID(data, pos)
	if err != nil || id != idSegment {
		return nil, ErrNotWebM
	}
	pos += n
	si.segSizeOfs = pos
	segSize, n, unknown, err := readSize(data, pos)
	if err != nil {
		return nil, ErrNotWebM
	}
	si.segSizeLen = n
	si.segSizeUnknown = unknown
	pos += n
	end := len(data)
	if !unknown {
		si.segDataLen = segSize
		if e := pos + int(segSize); e < end {
			end = e
		}
	}

	for pos < end {
		elemOfs := pos
		id, n, err := readID(data, pos)
		if err != nil {
			break // tolerate a truncated tail, common for interrupted captures
		}
		pos += n
		size, n, unknown, err := readSize(data, pos)
		if err != nil {
			break
		}
		pos += n

		switch id {
		case idInfo:
			if unknown {
				return nil, fmt.Errorf("webmfix: Info element with unknown size")
			}
			si.infoHeaderOfs = elemOfs
			si.infoDataOfs = pos
			si.infoDataLen = int(size)
			if err := si.scanInfo(data, pos, pos+int(size)); err != nil {
				return nil, err
			}
			pos += int(size)
		case idCluster:
			cend := end
			if !unknown {
				cend = pos + int(size)
			}
			pos = si.scanCluster(data, pos, cend, unknown)
		default:
			if unknown {
				return nil, fmt.Errorf("webmfix: element %#x with unknown size", id)
			}
			pos += int(size)
		}
	}

	if si.infoDataOfs == 0 {
		return nil, errors.New("webmfix: missing Segment Info")
	}
	return si, nil
}

func (si *segmentInfo) scanInfo(data []byte, pos, end int) error {
	for pos < end {
		id, n, err := readID(data, pos)
		if err != nil {
			return err
		}
		pos += n
		size, n, _, err := readSize(data, pos)
		if err != nil {
			return err
		}
		pos += n
		if pos+int(size) > end {
			return errTruncated
		}
		switch id {
		case idTimecodeScale:
			si.timecodeScale = readUint(data[pos : pos+int(size)])
		case idDuration:
			si.durationPresent = true
			si.durationOfs = pos
			si.durationLen = int(size)
		}
		pos += int(size)
	}
	return nil
}

// scanCluster walks one cluster and records the highest block timecode.
// For unknown-size clusters the walk stops at the next cluster ID.
func (si *segmentInfo) scanCluster(data []byte, pos, end int, openEnded bool) int {
	si.sawCluster = true
	var clusterTC int64
	for pos < end {
		if openEnded && startsCluster(data, pos) {
			return pos
		}
		id, n, err := readID(data, pos)
		if err != nil {
			return end
		}
		pos += n
		size, n, _, err := readSize(data, pos)
		if err != nil {
			return end
		}
		pos += n
		if pos+int(size) > len(data) {
			return len(data)
		}
		switch id {
		case idTimecode:
			clusterTC = int64(readUint(data[pos : pos+int(size)]))
		case idSimpleBlock, idBlock:
			if rel, ok := blockTimecode(data[pos : pos+int(size)]); ok {
				if tc := clusterTC + int64(rel); tc > si.lastTimecode {
					si.lastTimecode = tc
				}
			}
		case idBlockGroup:
			// The Block child sits at the head of the group.
			inner := pos
			if bid, bn, err := readID(data, inner); err == nil && bid == idBlock {
				inner += bn
				if bsz, bn2, _, err := readSize(data, inner); err == nil {
					inner += bn2
					if inner+int(bsz) <= len(data) {
						if rel, ok := blockTimecode(data[inner : inner+int(bsz)]); ok {
							if tc := clusterTC + int64(rel); tc > si.lastTimecode {
								si.lastTimecode = tc
							}
						}
					}
				}
			}
		}
		pos += int(size)
	}
	return pos
}

func startsCluster(data []byte, pos int) bool {
	return pos+4 <= len(data) && binary.BigEndian.Uint32(data[pos:]) == idCluster
}

// blockTimecode extracts the signed 16-bit relative timecode that
// follows the track-number vint at the head of a (Simple)Block payload.
func blockTimecode(block []byte) (int16, bool) {
	if len(block) == 0 {
		return 0, false
	}
	_, n, _, err := readSize(block, 0)
	if err != nil || n+2 > len(block) {
		return 0, false
	}
	return int16(binary.BigEndian.Uint16(block[n:])), true
}

// rewrite produces a new stream with Duration set inside the Info
// element, adjusting the Info size and, for known-size segments, the
// Segment size to match.
func rewrite(data []byte, si *segmentInfo, duration float64) []byte {
	if si.durationPresent && si.durationLen == 8 {
		// In-place overwrite, no sizes change.
		out := make([]byte, len(data))
		copy(out, data)
		appendFloat64(out[:si.durationOfs], duration)
		return out
	}

	// Rebuild the Info payload: keep every child except a stale
	// Duration and append a fresh 8-byte one.
	oldInfo := data[si.infoDataOfs : si.infoDataOfs+si.infoDataLen]
	newInfo := make([]byte, 0, len(oldInfo)+12)
	pos := 0
	for pos < len(oldInfo) {
		elemOfs := pos
		id, n, err := readID(oldInfo, pos)
		if err != nil {
			break
		}
		pos += n
		size, n, _, err := readSize(oldInfo, pos)
		if err != nil {
			break
		}
		pos += n + int(size)
		if id == idDuration {
			continue
		}
		newInfo = append(newInfo, oldInfo[elemOfs:min(pos, len(oldInfo))]...)
	}
	newInfo = appendID(newInfo, idDuration)
	newInfo = appendSize(newInfo, 8)
	newInfo = appendFloat64(newInfo, duration)

	infoEnd := si.infoDataOfs + si.infoDataLen
	out := make([]byte, 0, len(data)+16)
	out = append(out, data[:si.segSizeOfs]...)
	if si.segSizeUnknown {
		out = append(out, data[si.segSizeOfs:si.segSizeOfs+si.segSizeLen]...)
	} else {
		grown := si.segDataLen + int64(len(newInfo)-si.infoDataLen)
		grown += int64(sizeLen(int64(len(newInfo))) - (si.infoDataOfs - si.infoHeaderOfs - idLen(idInfo)))
		out = appendSize(out, grown)
	}
	out = append(out, data[si.segSizeOfs+si.segSizeLen:si.infoHeaderOfs]...)
	out = appendID(out, idInfo)
	out = appendSize(out, int64(len(newInfo)))
	out = append(out, newInfo...)
	out = append(out, data[infoEnd:]...)
	return out
}

func sizeLen(size int64) int {
	n := 1
	for n < 8 && size >= int64(1)<<(7*n)-1 {
		n++
	}
	return n
}

func idLen(id uint32) int {
	switch {
	case id > 0xFFFFFF:
		return 4
	case id > 0xFFFF:
		return 3
	case id > 0xFF:
		return 2
	default:
		return 1
	}
}
