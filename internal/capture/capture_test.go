package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/vocalise-app/vocalise/internal/notify"
	"github.com/vocalise-app/vocalise/internal/observe"
	"github.com/vocalise-app/vocalise/internal/storage/storagetest"
	"github.com/vocalise-app/vocalise/pkg/audio"
)

// fakeSource emits a small chunk of silence per read with a short
// delay, standing in for the microphone.
type fakeSource struct {
	mu         sync.Mutex
	open       bool
	startCalls int
	startErr   error
}

func (f *fakeSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	f.open = true
	return nil
}

func (f *fakeSource) Read() ([]int16, error) {
	f.mu.Lock()
	open := f.open
	f.mu.Unlock()
	if !open {
		return nil, errors.New("fake: closed")
	}
	time.Sleep(2 * time.Millisecond)
	return make([]int16, 64), nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *fakeSource) Format() audio.Format {
	return audio.Format{SampleRate: 16000, Channels: 1}
}

func (f *fakeSource) isOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func TestStartStopSavesNormalizedRecording(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	store := storagetest.New()
	c := NewController(src, store)
	defer c.Close()

	ctx := context.Background()
	if err := c.Start(ctx, "british-sound-th01-2"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.State(); got != Capturing {
		t.Fatalf("state = %v, want capturing", got)
	}
	time.Sleep(30 * time.Millisecond)
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := c.State(); got != Idle {
		t.Fatalf("state = %v, want idle", got)
	}
	if src.isOpen() {
		t.Fatal("hardware still open after stop")
	}

	rec, err := store.GetRecording(ctx, "british-sound-th01-2")
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if rec.MimeType != "audio/wav" {
		t.Fatalf("mime = %q, want audio/wav", rec.MimeType)
	}
	if len(rec.Data) <= 44 {
		t.Fatalf("saved blob has no samples (%d bytes)", len(rec.Data))
	}
}

// blockingSource parks Read until Stop is called, the way a real
// input stream blocks waiting for the next hardware buffer.
type blockingSource struct {
	fakeSource
	unblock chan struct{}
	once    sync.Once
}

func (b *blockingSource) Read() ([]int16, error) {
	b.mu.Lock()
	open := b.open
	b.mu.Unlock()
	if !open {
		return nil, errors.New("fake: closed")
	}
	<-b.unblock
	return nil, errors.New("fake: stopped")
}

func (b *blockingSource) Stop() error {
	b.once.Do(func() { close(b.unblock) })
	return b.fakeSource.Stop()
}

func TestStopUnblocksParkedRead(t *testing.T) {
	t.Parallel()
	src := &blockingSource{unblock: make(chan struct{})}
	c := NewController(src, storagetest.New())
	defer c.Close()

	ctx := context.Background()
	if err := c.Start(ctx, "british-word-w01"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Stop(ctx) }()
	select {
	case err := <-done:
		// No chunks ever arrived, so the save legitimately fails.
		if err == nil {
			t.Fatal("Stop saved a recording with no audio")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung behind a blocked Read")
	}
	if got := c.State(); got != Idle {
		t.Fatalf("state = %v, want idle", got)
	}
}

func TestStartWhileCapturing(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	c := NewController(src, storagetest.New())
	defer c.Close()

	ctx := context.Background()
	if err := c.Start(ctx, "k1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(ctx, "k2"); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start: err = %v, want ErrAlreadyRecording", err)
	}
	if got := c.State(); got != Capturing {
		t.Fatalf("state = %v, want capturing", got)
	}
	if src.startCalls != 1 {
		t.Fatalf("hardware opened %d times, want 1", src.startCalls)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	t.Parallel()
	c := NewController(&fakeSource{}, storagetest.New())
	defer c.Close()
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("idle Stop: %v", err)
	}
}

func TestStartPermissionDenied(t *testing.T) {
	t.Parallel()
	src := &fakeSource{startErr: errors.New("device busy")}
	c := NewController(src, storagetest.New())
	defer c.Close()

	err := c.Start(context.Background(), "k")
	if !errors.Is(err, ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
	if got := c.State(); got != Idle {
		t.Fatalf("state = %v, want idle", got)
	}
}

func TestTimeoutForcesSaveAndWarns(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	store := storagetest.New()

	warned := make(chan string, 1)
	n := notify.Func(func(ctx context.Context, level notify.Level, msg string) {
		if level == notify.LevelWarn {
			select {
			case warned <- msg:
			default:
			}
		}
	})

	c := NewController(src, store, WithMaxDuration(40*time.Millisecond), WithNotifier(n))
	defer c.Close()

	if err := c.Start(context.Background(), "timed-key"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case msg := <-warned:
		if !strings.Contains(msg, "maximum duration") {
			t.Fatalf("warning = %q, want duration-exceeded wording", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}

	if got := c.State(); got != Idle {
		t.Fatalf("state = %v, want idle", got)
	}
	if src.isOpen() {
		t.Fatal("hardware still open after forced stop")
	}
	if !store.RecordingExists(context.Background(), "timed-key") {
		t.Fatal("partial recording was not saved")
	}
}

func TestStoreFormatResamplesBeforeSave(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	store := storagetest.New()
	c := NewController(src, store,
		WithStoreFormat(audio.Format{SampleRate: 8000, Channels: 1}))
	defer c.Close()

	ctx := context.Background()
	if err := c.Start(ctx, "british-word-w01"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	rec, err := store.GetRecording(ctx, "british-word-w01")
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if len(rec.Data) < 28 {
		t.Fatalf("saved blob too short: %d bytes", len(rec.Data))
	}
	rate := uint32(rec.Data[24]) | uint32(rec.Data[25])<<8 |
		uint32(rec.Data[26])<<16 | uint32(rec.Data[27])<<24
	if rate != 8000 {
		t.Fatalf("saved sample rate = %d, want 8000", rate)
	}
}

func TestDomainMaxDurationOverride(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	store := storagetest.New()
	c := NewController(src, store,
		WithMaxDuration(time.Hour),
		WithDomainMaxDurations(map[string]time.Duration{"sound": 40 * time.Millisecond}))
	defer c.Close()

	ctx := context.Background()
	if err := c.Start(ctx, "british-sound-th01"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != Idle {
		if time.Now().After(deadline) {
			t.Fatal("sound-domain limit never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !store.RecordingExists(ctx, "british-sound-th01") {
		t.Fatal("timed-out recording was not saved")
	}

	// A key outside the override keeps the controller-wide limit.
	if err := c.Start(ctx, "british-word-w02"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if got := c.State(); got != Capturing {
		t.Fatalf("state = %v, want capturing under the hour-long limit", got)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestMetricsTrackSessions(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	src := &fakeSource{}
	store := storagetest.New()
	c := NewController(src, store,
		WithMaxDuration(40*time.Millisecond), WithMetrics(m))
	defer c.Close()

	if err := c.Start(context.Background(), "british-word-w03"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != Idle {
		if time.Now().After(deadline) {
			t.Fatal("capture limit never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := sumInt64(rm, "vocalise.active_captures"); got != 0 {
		t.Fatalf("active captures = %d after the session, want 0", got)
	}
	if got := sumInt64(rm, "vocalise.capture.timeouts"); got != 1 {
		t.Fatalf("capture timeouts = %d, want 1", got)
	}
	if n := histCount(rm, "vocalise.normalize.duration"); n == 0 {
		t.Fatal("normalize duration never recorded")
	}
}

func sumInt64(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func histCount(rm metricdata.ResourceMetrics, name string) uint64 {
	var total uint64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			if h, ok := md.Data.(metricdata.Histogram[float64]); ok {
				for _, dp := range h.DataPoints {
					total += dp.Count
				}
			}
		}
	}
	return total
}

func TestCloseMidCapture(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	store := storagetest.New()
	c := NewController(src, store)

	if err := c.Start(context.Background(), "k"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if src.isOpen() {
		t.Fatal("hardware still open after close")
	}
	if store.RecordingExists(context.Background(), "k") {
		t.Fatal("aborted session must not be saved")
	}
	if err := c.Start(context.Background(), "k2"); err == nil {
		t.Fatal("Start after Close must fail")
	}
}
