// Package capture manages the microphone recording lifecycle: a
// controller owns the single hardware input, buffers PCM while a
// session is live, and on stop runs the result through duration
// normalization before persisting it.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vocalise-app/vocalise/internal/audio/normalize"
	"github.com/vocalise-app/vocalise/internal/notify"
	"github.com/vocalise-app/vocalise/internal/observe"
	"github.com/vocalise-app/vocalise/internal/recordkey"
	"github.com/vocalise-app/vocalise/internal/storage"
	"github.com/vocalise-app/vocalise/pkg/audio"
)

var (
	// ErrPermission reports that the microphone could not be acquired.
	ErrPermission = errors.New("capture: microphone access denied")
	// ErrAlreadyRecording reports a start while a session is live.
	ErrAlreadyRecording = errors.New("capture: session already recording")
)

// DefaultMaxDuration is the hard capture limit armed at start.
const DefaultMaxDuration = 20 * time.Second

// Source is a microphone input. Start acquires the hardware and Read
// blocks until one chunk of mono PCM samples is available. Stop
// releases the hardware; after Stop, Read returns an error.
type Source interface {
	Start() error
	Read() ([]int16, error)
	Stop() error
	Format() audio.Format
}

// State is the controller lifecycle state.
type State int

const (
	Idle State = iota
	Capturing
)

func (s State) String() string {
	if s == Capturing {
		return "capturing"
	}
	return "idle"
}

// session is the per-recording state, replaced wholesale on each start
// so a late timeout from a previous session can never touch a new one.
type session struct {
	key     string
	limit   time.Duration
	started time.Time
	timer   *time.Timer
	done    chan struct{} // closed to ask the read loop to exit
	flushed chan struct{} // closed by the read loop after its final append

	mu  sync.Mutex
	pcm []int16
}

// Controller drives capture sessions against one Source. All methods
// are safe for concurrent use; at most one session is live at a time.
type Controller struct {
	src       Source
	store     storage.Store
	notifier  notify.Notifier
	log       *slog.Logger
	maxDur    time.Duration
	domainDur map[recordkey.Domain]time.Duration
	storeFmt  audio.Format
	metrics   *observe.Metrics

	mu   sync.Mutex
	cur  *session
	shut bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxDuration overrides the hard capture limit.
func WithMaxDuration(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.maxDur = d
		}
	}
}

// WithDomainMaxDurations overrides the hard capture limit per content
// domain, resolved from the session key at start. Domains not listed
// keep the controller-wide limit.
func WithDomainMaxDurations(m map[string]time.Duration) Option {
	return func(c *Controller) {
		for domain, d := range m {
			if d <= 0 {
				continue
			}
			if c.domainDur == nil {
				c.domainDur = make(map[recordkey.Domain]time.Duration)
			}
			c.domainDur[recordkey.Domain(domain)] = d
		}
	}
}

// WithStoreFormat converts finished recordings to f before saving.
// Without it, recordings keep the source format. Lets the microphone
// run at whatever rate the hardware prefers while stored takes stay
// uniform.
func WithStoreFormat(f audio.Format) Option {
	return func(c *Controller) {
		if f.SampleRate > 0 && f.Channels > 0 {
			c.storeFmt = f
		}
	}
}

// WithMetrics records session gauges and timings on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithNotifier routes warnings to n instead of the log-backed default.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// NewController creates a controller persisting finished recordings to
// store.
func NewController(src Source, store storage.Store, opts ...Option) *Controller {
	c := &Controller{
		src:    src,
		store:  store,
		log:    slog.Default(),
		maxDur: DefaultMaxDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = notify.NewLogNotifier(c.log)
	}
	return c
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		return Capturing
	}
	return Idle
}

// Start acquires the microphone and begins buffering under key. It
// fails with ErrAlreadyRecording while a session is live and with
// ErrPermission when the hardware cannot be acquired. The session
// force-stops and saves after the configured maximum duration.
func (c *Controller) Start(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shut {
		return errors.New("capture: controller closed")
	}
	if c.cur != nil {
		return ErrAlreadyRecording
	}

	if err := c.src.Start(); err != nil {
		if errors.Is(err, ErrPermission) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}

	s := &session{
		key:     key,
		limit:   c.limitFor(key),
		started: time.Now(),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
	}
	// The deadline must fire off wall time alone, independent of chunk
	// cadence.
	s.timer = time.AfterFunc(s.limit, func() { c.timeout(s) })
	c.cur = s

	go c.readLoop(s)
	if c.metrics != nil {
		c.metrics.ActiveCaptures.Add(ctx, 1)
	}
	c.log.InfoContext(ctx, "capture started", "key", key, "max_duration", s.limit)
	return nil
}

// limitFor resolves the hard deadline for a session key: the domain
// override when the key carries a known domain, the controller-wide
// limit otherwise.
func (c *Controller) limitFor(key string) time.Duration {
	if d, ok := recordkey.DomainOf(key); ok {
		if dur, ok := c.domainDur[d]; ok {
			return dur
		}
	}
	return c.maxDur
}

func (c *Controller) readLoop(s *session) {
	defer close(s.flushed)
	for {
		select {
		case <-s.done:
			return
		default:
		}
		chunk, err := c.src.Read()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.pcm = append(s.pcm, chunk...)
		s.mu.Unlock()
	}
}

// Stop ends the live session, normalizes the buffered audio and saves
// it under the session key. Calling Stop while idle is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	s := c.cur
	if s == nil {
		c.mu.Unlock()
		return nil
	}
	c.cur = nil
	c.mu.Unlock()

	s.timer.Stop()
	elapsed := c.teardown(s)
	return c.persist(ctx, s, elapsed)
}

// timeout is the hard-deadline path: force-stop, save the partial
// recording and surface a warning.
func (c *Controller) timeout(s *session) {
	c.mu.Lock()
	if c.cur != s {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	c.mu.Unlock()

	elapsed := c.teardown(s)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if c.metrics != nil {
		c.metrics.CaptureTimeouts.Add(ctx, 1)
	}

	if err := c.persist(ctx, s, elapsed); err != nil {
		c.notifier.Notify(ctx, notify.LevelError,
			fmt.Sprintf("recording stopped at the %v limit but could not be saved: %v", s.limit, err))
		return
	}
	c.notifier.Notify(ctx, notify.LevelWarn,
		fmt.Sprintf("recording stopped: maximum duration of %v exceeded, partial audio saved", s.limit))
}

// teardown stops the read loop and releases the hardware, returning
// the wall-clock session length. Stop comes first: a Read blocked on
// the device only returns once the stream is stopped, so waiting on
// flushed before stopping could hang forever.
func (c *Controller) teardown(s *session) time.Duration {
	close(s.done)
	if err := c.src.Stop(); err != nil {
		c.log.Warn("capture: stop input stream", "error", err)
	}
	<-s.flushed
	if c.metrics != nil {
		c.metrics.ActiveCaptures.Add(context.Background(), -1)
	}
	return time.Since(s.started)
}

func (c *Controller) persist(ctx context.Context, s *session, elapsed time.Duration) error {
	s.mu.Lock()
	pcm := s.pcm
	s.pcm = nil
	s.mu.Unlock()

	if len(pcm) == 0 {
		return fmt.Errorf("capture: no audio captured: %w", normalize.ErrDecode)
	}

	data := audio.Int16sToBytes(pcm)
	format := c.src.Format()
	if c.storeFmt != (audio.Format{}) {
		data = audio.Convert(data, format, c.storeFmt)
		format = c.storeFmt
	}
	blob := audio.EncodeWAV(data, format)
	normStart := time.Now()
	fixed, err := normalize.Normalize(blob, "audio/wav", elapsed)
	if c.metrics != nil {
		c.metrics.NormalizeDuration.Record(ctx, time.Since(normStart).Seconds())
	}
	if err != nil {
		return fmt.Errorf("capture: normalize recording: %w", err)
	}
	rec := storage.Recording{ID: s.key, Data: fixed, MimeType: "audio/wav"}
	if err := c.store.SaveRecording(ctx, rec); err != nil {
		return fmt.Errorf("capture: save recording %q: %w", s.key, err)
	}
	c.log.InfoContext(ctx, "recording saved",
		"key", s.key, "bytes", len(fixed), "duration", elapsed.Round(time.Millisecond))
	return nil
}

// Close tears down the controller. A live session is aborted and its
// buffered audio discarded; the hardware is released either way.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.shut {
		c.mu.Unlock()
		return nil
	}
	c.shut = true
	s := c.cur
	c.cur = nil
	c.mu.Unlock()

	if s != nil {
		s.timer.Stop()
		c.teardown(s)
	}
	return nil
}
