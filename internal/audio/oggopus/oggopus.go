// Package oggopus reads Opus audio out of Ogg containers: duration
// probing from page granule positions and full decode to PCM for
// in-memory playback.
package oggopus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"layeh.com/gopus"
)

// Opus always runs its granule clock at 48 kHz regardless of the
// original capture rate.
const granuleRate = 48000

// maxFrameSize is the largest Opus frame, 120 ms per channel at 48 kHz.
const maxFrameSize = 5760

// ErrNotOggOpus reports input that is not an Ogg stream carrying Opus.
var ErrNotOggOpus = errors.New("oggopus: not an Ogg Opus stream")

var oggMagic = []byte("OggS")

type page struct {
	granule   uint64
	packets   [][]byte
	partial   bool // last packet continues on the next page
	continued bool // first segment continues the previous page's packet
}

// Stream is a demuxed Ogg Opus stream.
type Stream struct {
	Channels int
	PreSkip  int
	Packets  [][]byte // audio packets, header packets stripped
	granule  uint64   // granule position of the final page
}

// Parse demuxes data into an Opus packet stream. The first packet must
// be an OpusHead header; it and the OpusTags packet are consumed here.
func Parse(data []byte) (*Stream, error) {
	s := &Stream{}
	var pending []byte
	var all [][]byte

	pos := 0
	for pos < len(data) {
		p, next, err := readPage(data, pos)
		if err != nil {
			if len(all) > 0 {
				break // interrupted capture, keep what decoded cleanly
			}
			return nil, err
		}
		pos = next
		s.granule = p.granule

		for i, pkt := range p.packets {
			if i == 0 && p.continued {
				pending = append(pending, pkt...)
				if i == len(p.packets)-1 && p.partial {
					continue
				}
				all = append(all, pending)
				pending = nil
				continue
			}
			if i == len(p.packets)-1 && p.partial {
				pending = append([]byte(nil), pkt...)
				continue
			}
			all = append(all, pkt)
		}
	}

	if len(all) < 1 || len(all[0]) < 19 || string(all[0][:8]) != "OpusHead" {
		return nil, ErrNotOggOpus
	}
	head := all[0]
	s.Channels = int(head[9])
	s.PreSkip = int(binary.LittleEndian.Uint16(head[10:12]))
	if s.Channels < 1 || s.Channels > 2 {
		return nil, fmt.Errorf("oggopus: unsupported channel count %d", s.Channels)
	}

	// Skip OpusHead and, when present, OpusTags.
	rest := all[1:]
	if len(rest) > 0 && len(rest[0]) >= 8 && string(rest[0][:8]) == "OpusTags" {
		rest = rest[1:]
	}
	s.Packets = rest
	return s, nil
}

// Duration reports the stream length from the final granule position.
func (s *Stream) Duration() time.Duration {
	samples := int64(s.granule) - int64(s.PreSkip)
	if samples < 0 {
		samples = 0
	}
	return time.Duration(samples) * time.Second / granuleRate
}

// Duration probes the play length of an Ogg Opus blob.
func Duration(data []byte) (time.Duration, error) {
	s, err := Parse(data)
	if err != nil {
		return 0, err
	}
	return s.Duration(), nil
}

// Decode demuxes and decodes data to interleaved little-endian int16
// PCM at 48 kHz. The channel count comes from the stream header.
func Decode(data []byte) (pcm []int16, sampleRate, channels int, err error) {
	s, err := Parse(data)
	if err != nil {
		return nil, 0, 0, err
	}
	dec, err := gopus.NewDecoder(granuleRate, s.Channels)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("oggopus: create decoder: %w", err)
	}
	for _, pkt := range s.Packets {
		frame, err := dec.Decode(pkt, maxFrameSize, false)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("oggopus: decode packet: %w", err)
		}
		pcm = append(pcm, frame...)
	}
	skip := s.PreSkip * s.Channels
	if skip > len(pcm) {
		skip = len(pcm)
	}
	return pcm[skip:], granuleRate, s.Channels, nil
}

// readPage parses one Ogg page starting at data[pos].
func readPage(data []byte, pos int) (*page, int, error) {
	if pos+27 > len(data) || string(data[pos:pos+4]) != string(oggMagic) {
		return nil, 0, ErrNotOggOpus
	}
	hdr := data[pos:]
	p := &page{
		granule:   binary.LittleEndian.Uint64(hdr[6:14]),
		continued: hdr[5]&0x01 != 0,
	}
	nsegs := int(hdr[26])
	if pos+27+nsegs > len(data) {
		return nil, 0, ErrNotOggOpus
	}
	segs := hdr[27 : 27+nsegs]

	body := pos + 27 + nsegs
	var cur []byte
	for _, l := range segs {
		if body+int(l) > len(data) {
			return nil, 0, ErrNotOggOpus
		}
		cur = append(cur, data[body:body+int(l)]...)
		body += int(l)
		if l < 255 {
			p.packets = append(p.packets, cur)
			cur = nil
		}
	}
	if cur != nil {
		p.packets = append(p.packets, cur)
		p.partial = true
	}
	return p, body, nil
}
