package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/vocalise-app/vocalise/pkg/audio"
)

// speakerChunk is the per-write frame count handed to the device.
const speakerChunk = 1024

// Speaker plays PCM through the default PortAudio output device. One
// playback runs at a time; concurrent Play calls serialize.
type Speaker struct {
	mu sync.Mutex
}

var _ Sink = (*Speaker)(nil)

// NewSpeaker initializes PortAudio for output. Call Close to release
// it again.
func NewSpeaker() (*Speaker, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("playback: portaudio init: %w", err)
	}
	return &Speaker{}, nil
}

// Open acquires the default output device for the given format. The
// device lock is held until the returned stream's Close.
func (s *Speaker) Open(format audio.Format) (SinkStream, error) {
	if format.Channels < 1 || format.SampleRate <= 0 {
		return nil, errors.New("playback: invalid output format")
	}
	s.mu.Lock()
	buf := make([]int16, speakerChunk*format.Channels)
	stream, err := portaudio.OpenDefaultStream(
		0, format.Channels, float64(format.SampleRate), speakerChunk, buf)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("playback: open output device: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		s.mu.Unlock()
		return nil, fmt.Errorf("playback: start output stream: %w", err)
	}
	return &speakerStream{owner: s, stream: stream, buf: buf}, nil
}

type speakerStream struct {
	owner  *Speaker
	stream *portaudio.Stream
	buf    []int16
}

func (ss *speakerStream) Play(ctx context.Context, pcm []int16, stop <-chan struct{}) error {
	for pos := 0; pos < len(pcm); pos += len(ss.buf) {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n := copy(ss.buf, pcm[pos:])
		for i := n; i < len(ss.buf); i++ {
			ss.buf[i] = 0 // pad the final chunk with silence
		}
		if err := ss.stream.Write(); err != nil {
			return fmt.Errorf("playback: write output: %w", err)
		}
	}
	return nil
}

func (ss *speakerStream) Close() error {
	ss.stream.Stop()
	err := ss.stream.Close()
	ss.owner.mu.Unlock()
	if err != nil {
		return fmt.Errorf("playback: close output stream: %w", err)
	}
	return nil
}

// Close releases PortAudio.
func (s *Speaker) Close() error {
	return portaudio.Terminate()
}
