package playback

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-audio/wav"

	"github.com/vocalise-app/vocalise/internal/audio/oggopus"
	"github.com/vocalise-app/vocalise/pkg/audio"
)

// decoded is the result of a successful buffer decode.
type decoded struct {
	pcm    []int16
	format audio.Format
}

// tryDecode decodes a stored blob fully into PCM. Containers outside
// the supported set (PCM WAV, Ogg Opus) return an error so the caller
// can fall back to an external player.
func tryDecode(data []byte, mimeType string) (*decoded, error) {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "wav"), strings.Contains(mt, "wave"),
		bytes.HasPrefix(data, []byte("RIFF")):
		return decodeWAV(data)
	case strings.Contains(mt, "ogg"), strings.Contains(mt, "opus"),
		bytes.HasPrefix(data, []byte("OggS")):
		return decodeOgg(data)
	default:
		return nil, fmt.Errorf("playback: no buffer decoder for %q", mimeType)
	}
}

func decodeWAV(data []byte) (*decoded, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("playback: decode wav: %w", err)
	}
	if buf.Format == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("playback: decode wav: empty stream")
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("playback: unsupported wav bit depth %d", dec.BitDepth)
	}

	pcm := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		pcm[i] = int16(s)
	}
	return &decoded{
		pcm: pcm,
		format: audio.Format{
			SampleRate: buf.Format.SampleRate,
			Channels:   buf.Format.NumChannels,
		},
	}, nil
}

func decodeOgg(data []byte) (*decoded, error) {
	pcm, rate, channels, err := oggopus.Decode(data)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("playback: decode ogg: empty stream")
	}
	return &decoded{
		pcm:    pcm,
		format: audio.Format{SampleRate: rate, Channels: channels},
	}, nil
}
