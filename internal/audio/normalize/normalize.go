// Package normalize turns freshly captured audio blobs into
// playback-correct buffers. Live captures frequently land with broken
// or missing duration metadata: streaming WebM muxers never fill in the
// segment duration, and WAV writers interrupted mid-capture leave zero
// chunk sizes. Normalize inspects the container and repairs only what
// the format actually needs, so already well-formed blobs pass through
// byte-identical.
package normalize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"github.com/vocalise-app/vocalise/internal/audio/oggopus"
	"github.com/vocalise-app/vocalise/internal/audio/webmfix"
)

// ErrDecode reports a blob that cannot be decoded at all. Callers must
// discard the capture instead of persisting it.
var ErrDecode = errors.New("normalize: undecodable audio data")

// container formats Normalize understands.
type format int

const (
	formatUnknown format = iota
	formatWebM
	formatOgg
	formatWAV
)

// Normalize repairs the duration metadata of a captured blob. captured
// is the wall-clock length measured during capture; pass zero to have
// the true length derived from the audio data itself. The returned
// buffer reports the correct duration to any standard player.
func Normalize(data []byte, mimeType string, captured time.Duration) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrDecode)
	}

	switch detect(mimeType, data) {
	case formatWebM:
		var out []byte
		var err error
		if captured > 0 {
			out, err = webmfix.FixDuration(data, captured)
		} else {
			out, err = webmfix.Fix(data)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return out, nil

	case formatOgg:
		// Ogg pages carry absolute granule positions, so the duration
		// is intrinsic. Probing doubles as decode validation.
		if _, err := oggopus.Duration(data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return data, nil

	case formatWAV:
		return fixWAV(data)

	default:
		return nil, fmt.Errorf("%w: unrecognized container (mime %q)", ErrDecode, mimeType)
	}
}

// Probe reports the decoded duration of a blob without modifying it.
func Probe(data []byte, mimeType string) (time.Duration, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty blob", ErrDecode)
	}
	switch detect(mimeType, data) {
	case formatWebM:
		d, err := webmfix.Duration(data)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return d, nil
	case formatOgg:
		d, err := oggopus.Duration(data)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return d, nil
	case formatWAV:
		dec := wav.NewDecoder(bytes.NewReader(data))
		if !dec.IsValidFile() {
			return 0, fmt.Errorf("%w: invalid WAV", ErrDecode)
		}
		d, err := dec.Duration()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized container (mime %q)", ErrDecode, mimeType)
	}
}

// detect picks the container format from the MIME type, falling back
// to magic-byte sniffing when the type is absent or generic.
func detect(mimeType string, data []byte) format {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "webm"), strings.Contains(mt, "matroska"):
		return formatWebM
	case strings.Contains(mt, "ogg"), strings.Contains(mt, "opus"):
		return formatOgg
	case strings.Contains(mt, "wav"), strings.Contains(mt, "wave"):
		return formatWAV
	}
	switch {
	case len(data) >= 4 && binary.BigEndian.Uint32(data) == 0x1A45DFA3:
		return formatWebM
	case bytes.HasPrefix(data, []byte("OggS")):
		return formatOgg
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return formatWAV
	}
	return formatUnknown
}

// fixWAV validates a WAV blob and repairs zero-length RIFF and data
// chunk sizes left behind by interrupted writers.
func fixWAV(data []byte) ([]byte, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("%w: WAV too short", ErrDecode)
	}

	riffSize := binary.LittleEndian.Uint32(data[4:8])
	dataOfs := findDataChunk(data)
	if dataOfs < 0 {
		return nil, fmt.Errorf("%w: WAV missing data chunk", ErrDecode)
	}
	dataSize := binary.LittleEndian.Uint32(data[dataOfs+4 : dataOfs+8])

	wantRiff := uint32(len(data) - 8)
	wantData := uint32(len(data) - dataOfs - 8)
	if riffSize == wantRiff && dataSize == wantData {
		if !wav.NewDecoder(bytes.NewReader(data)).IsValidFile() {
			return nil, fmt.Errorf("%w: invalid WAV", ErrDecode)
		}
		return data, nil
	}

	out := make([]byte, len(data))
	copy(out, data)
	binary.LittleEndian.PutUint32(out[4:8], wantRiff)
	binary.LittleEndian.PutUint32(out[dataOfs+4:dataOfs+8], wantData)
	if !wav.NewDecoder(bytes.NewReader(out)).IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV", ErrDecode)
	}
	return out, nil
}

// findDataChunk walks the RIFF chunk list and returns the offset of
// the data chunk header, or -1.
func findDataChunk(data []byte) int {
	pos := 12
	for pos+8 <= len(data) {
		if bytes.Equal(data[pos:pos+4], []byte("data")) {
			return pos
		}
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		if size <= 0 {
			return -1
		}
		pos += 8 + size + size%2
	}
	return -1
}
