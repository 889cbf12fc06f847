package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/vocalise-app/vocalise/pkg/audio"
)

// Microphone reads mono PCM from the default PortAudio input device.
// The stream is opened on Start and fully released on Stop, so the
// device is only held while a session is live.
type Microphone struct {
	format    audio.Format
	chunkSize int

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

var _ Source = (*Microphone)(nil)

// DefaultChunkSize is the per-read frame count, 20 ms at 16 kHz.
const DefaultChunkSize = 320

// NewMicrophone initializes PortAudio and prepares an input source for
// the given format. Call Close to release PortAudio itself.
func NewMicrophone(f audio.Format, chunkSize int) (*Microphone, error) {
	if f.Channels != 1 {
		return nil, fmt.Errorf("capture: microphone capture is mono, got %d channels", f.Channels)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture: portaudio init: %w", err)
	}
	return &Microphone{
		format:    f,
		chunkSize: chunkSize,
		buf:       make([]int16, chunkSize),
	}, nil
}

func (m *Microphone) Format() audio.Format { return m.format }

func (m *Microphone) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return errors.New("capture: input stream already open")
	}
	stream, err := portaudio.OpenDefaultStream(
		1, 0, float64(m.format.SampleRate), m.chunkSize, m.buf)
	if err != nil {
		return fmt.Errorf("%w: open input device: %v", ErrPermission, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: start input stream: %v", ErrPermission, err)
	}
	m.stream = stream
	return nil
}

func (m *Microphone) Read() ([]int16, error) {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream == nil {
		return nil, errors.New("capture: input stream closed")
	}
	if err := stream.Read(); err != nil {
		return nil, fmt.Errorf("capture: read input: %w", err)
	}
	chunk := make([]int16, m.chunkSize)
	copy(chunk, m.buf)
	return chunk, nil
}

func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	err := m.stream.Stop()
	if cerr := m.stream.Close(); err == nil {
		err = cerr
	}
	m.stream = nil
	return err
}

// Close releases PortAudio. The microphone must not be used afterward.
func (m *Microphone) Close() error {
	if err := m.Stop(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
