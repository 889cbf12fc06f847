// Package playback turns stored recordings into audible output. The
// arbiter fetches a blob from storage, prefers a full in-memory decode
// driven through the audio sink, and falls back to handing a temporary
// file to an external player for containers it cannot decode itself.
// Callers observe the lifecycle through an Events value; exactly one of
// Started or Failed fires per Play call, and Ended fires exactly once
// after Started.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vocalise-app/vocalise/internal/observe"
	"github.com/vocalise-app/vocalise/internal/storage"
	"github.com/vocalise-app/vocalise/pkg/audio"
)

// ErrNotFound reports playback of a key with no stored recording.
var ErrNotFound = storage.ErrNotFound

// Handle controls one in-flight playback. Stop is idempotent and safe
// to call after playback already ended.
type Handle interface {
	Stop()
}

// Events receives playback lifecycle callbacks. Nil fields are skipped.
// Callbacks run on the playback goroutine and should return quickly.
type Events struct {
	Started func(Handle)
	Failed  func(error)
	Ended   func()
}

// Sink acquires the output device for decoded PCM. Open fails when no
// device can take the format, which the arbiter treats the same as an
// undecodable blob: the recording goes to the fallback player instead.
type Sink interface {
	Open(format audio.Format) (SinkStream, error)
}

// SinkStream is one open output stream. Play blocks until the audio is
// fully played, stop is closed, or an error occurs. Close releases the
// device.
type SinkStream interface {
	Play(ctx context.Context, pcm []int16, stop <-chan struct{}) error
	Close() error
}

// FallbackPlayer plays an on-disk audio file through an external
// facility. Play blocks until done or stop is closed.
type FallbackPlayer interface {
	Play(ctx context.Context, path string, stop <-chan struct{}) error
}

// Arbiter coordinates playback of stored recordings.
type Arbiter struct {
	store    storage.Store
	sink     Sink
	fallback FallbackPlayer
	log      *slog.Logger
	tmpDir   string
	metrics  *observe.Metrics
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Arbiter) { a.log = log }
}

// WithTempDir overrides where fallback playback stages its files.
func WithTempDir(dir string) Option {
	return func(a *Arbiter) { a.tmpDir = dir }
}

// WithMetrics records playback runs and the in-flight gauge on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Arbiter) { a.metrics = m }
}

// New creates an arbiter reading recordings from store. fallback may
// be nil, in which case undecodable blobs fail instead of falling back.
func New(store storage.Store, sink Sink, fallback FallbackPlayer, opts ...Option) *Arbiter {
	a := &Arbiter{
		store:    store,
		sink:     sink,
		fallback: fallback,
		log:      slog.Default(),
		tmpDir:   os.TempDir(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// handle implements Handle over a close-once stop channel.
type handle struct {
	once sync.Once
	stop chan struct{}
}

func newHandle() *handle { return &handle{stop: make(chan struct{})} }

func (h *handle) Stop() { h.once.Do(func() { close(h.stop) }) }

// guard enforces the event discipline: one of Started/Failed, then at
// most one Ended and only after Started.
type guard struct {
	ev      Events
	mu      sync.Mutex
	settled bool
	started bool
	ended   bool
}

func (g *guard) Started(h Handle) bool {
	g.mu.Lock()
	if g.settled {
		g.mu.Unlock()
		return false
	}
	g.settled = true
	g.started = true
	g.mu.Unlock()
	if g.ev.Started != nil {
		g.ev.Started(h)
	}
	return true
}

func (g *guard) Failed(err error) {
	g.mu.Lock()
	if g.settled {
		g.mu.Unlock()
		return
	}
	g.settled = true
	g.mu.Unlock()
	if g.ev.Failed != nil {
		g.ev.Failed(err)
	}
}

func (g *guard) Ended() {
	g.mu.Lock()
	if !g.started || g.ended {
		g.mu.Unlock()
		return
	}
	g.ended = true
	g.mu.Unlock()
	if g.ev.Ended != nil {
		g.ev.Ended()
	}
}

// Play starts playback of the recording stored under key and returns
// immediately; lifecycle events arrive through ev. The caller owns the
// handle passed to ev.Started and stops early playback through it.
func (a *Arbiter) Play(ctx context.Context, key string, ev Events) {
	go a.run(ctx, key, &guard{ev: ev})
}

func (a *Arbiter) run(ctx context.Context, key string, g *guard) {
	start := time.Now()
	if a.metrics != nil {
		a.metrics.ActivePlaybacks.Add(ctx, 1)
	}
	path, err := a.dispatch(ctx, key, g)
	if a.metrics != nil {
		a.metrics.ActivePlaybacks.Add(ctx, -1)
		status := "ok"
		if err != nil {
			status = "failed"
		}
		a.metrics.RecordPlayback(ctx, path, status, time.Since(start).Seconds())
	}
}

// dispatch picks the decode path and reports it alongside the outcome
// for metrics.
func (a *Arbiter) dispatch(ctx context.Context, key string, g *guard) (string, error) {
	rec, err := a.store.GetRecording(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = fmt.Errorf("playback: %w: %q", ErrNotFound, key)
		} else {
			err = fmt.Errorf("playback: load %q: %w", key, err)
		}
		g.Failed(err)
		return "store", err
	}

	dec, derr := tryDecode(rec.Data, rec.MimeType)
	if derr == nil {
		return a.playDecoded(ctx, key, dec, rec, g)
	}
	if a.fallback == nil {
		err := fmt.Errorf("playback: decode %q: %w", key, derr)
		g.Failed(err)
		return "decoded", err
	}
	a.log.DebugContext(ctx, "buffer decode failed, using fallback player",
		"key", key, "error", derr)
	return "fallback", a.playFallback(ctx, key, rec, g)
}

// playDecoded drives the sink. Started fires only once the output
// device is actually open; an open failure routes to the fallback
// player when one is configured.
func (a *Arbiter) playDecoded(ctx context.Context, key string, dec *decoded, rec storage.Recording, g *guard) (string, error) {
	stream, err := a.sink.Open(dec.format)
	if err != nil {
		if a.fallback != nil {
			a.log.WarnContext(ctx, "output device unavailable, using fallback player",
				"key", key, "error", err)
			return "fallback", a.playFallback(ctx, key, rec, g)
		}
		err = fmt.Errorf("playback: open output for %q: %w", key, err)
		g.Failed(err)
		return "decoded", err
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			a.log.Warn("playback: close output stream", "key", key, "error", cerr)
		}
	}()

	h := newHandle()
	if !g.Started(h) {
		return "decoded", nil
	}
	if err := stream.Play(ctx, dec.pcm, h.stop); err != nil {
		a.log.WarnContext(ctx, "playback sink error", "key", key, "error", err)
		g.Ended()
		return "decoded", err
	}
	g.Ended()
	return "decoded", nil
}

// playFallback stages the blob as a temporary file, plays it through
// the external player and always removes the file again.
func (a *Arbiter) playFallback(ctx context.Context, key string, rec storage.Recording, g *guard) error {
	path := filepath.Join(a.tmpDir, "vocalise-"+uuid.NewString()+extFor(rec.MimeType))
	if err := os.WriteFile(path, rec.Data, 0o600); err != nil {
		err = fmt.Errorf("playback: stage fallback file: %w", err)
		g.Failed(err)
		return err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			a.log.Warn("playback: remove fallback file", "path", path, "error", err)
		}
	}()

	h := newHandle()
	if !g.Started(h) {
		return nil
	}
	if err := a.fallback.Play(ctx, path, h.stop); err != nil {
		a.log.WarnContext(ctx, "fallback playback error", "key", key, "error", err)
		g.Ended()
		return err
	}
	g.Ended()
	return nil
}

// extFor picks a file extension so external players can sniff the
// container.
func extFor(mimeType string) string {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "wav"), strings.Contains(mt, "wave"):
		return ".wav"
	case strings.Contains(mt, "webm"):
		return ".webm"
	case strings.Contains(mt, "ogg"), strings.Contains(mt, "opus"):
		return ".ogg"
	case strings.Contains(mt, "mp3"), strings.Contains(mt, "mpeg"):
		return ".mp3"
	default:
		return ".bin"
	}
}
