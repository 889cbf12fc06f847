// Package app wires all vocalise subsystems into a running backend.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the UI-facing API until the context is
// cancelled, and Shutdown tears everything down in reverse order.
//
// For testing, inject doubles via functional options (WithStore,
// WithSource, WithSink, ...). When an option is not provided, New
// creates the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vocalise-app/vocalise/internal/api"
	"github.com/vocalise-app/vocalise/internal/capture"
	"github.com/vocalise-app/vocalise/internal/config"
	"github.com/vocalise-app/vocalise/internal/content"
	"github.com/vocalise-app/vocalise/internal/health"
	"github.com/vocalise-app/vocalise/internal/notify"
	"github.com/vocalise-app/vocalise/internal/observe"
	"github.com/vocalise-app/vocalise/internal/platform"
	"github.com/vocalise-app/vocalise/internal/playback"
	"github.com/vocalise-app/vocalise/internal/review"
	"github.com/vocalise-app/vocalise/internal/storage"
	"github.com/vocalise-app/vocalise/internal/storage/badgerstore"
	"github.com/vocalise-app/vocalise/internal/storage/bridgestore"
	"github.com/vocalise-app/vocalise/pkg/audio"
)

// shutdownTimeout bounds how long Shutdown waits for the HTTP server
// to drain before closing subsystems anyway.
const shutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Subsystems — initialised in New, torn down in Shutdown.
	store    storage.Store
	source   capture.Source
	sink     playback.Sink
	fallback playback.FallbackPlayer
	rec      *capture.Controller
	player   *playback.Arbiter
	reviews  *review.FileStore
	content  *content.Client
	api      *api.Server
	metrics  *observe.Metrics
	registry *prometheus.Registry

	httpSrv *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a storage backend instead of opening one from config.
func WithStore(s storage.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSource injects a capture source instead of opening the microphone.
func WithSource(s capture.Source) Option {
	return func(a *App) { a.source = s }
}

// WithSink injects a playback sink instead of opening the speaker.
func WithSink(s playback.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithFallback injects a fallback player instead of building one from config.
func WithFallback(p playback.FallbackPlayer) Option {
	return func(a *App) { a.fallback = p }
}

// New creates an App by wiring all subsystems together. Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if err := a.initObserve(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	if err := a.initCapture(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	if err := a.initPlayback(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init playback: %w", err)
	}

	if err := a.initExtras(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init extras: %w", err)
	}

	a.initHTTP()
	return a, nil
}

// initObserve sets up the OTel providers and the metrics instruments.
// Each App gets its own Prometheus registry so tests can build several
// instances without collector collisions.
func (a *App) initObserve(ctx context.Context) error {
	a.registry = prometheus.NewRegistry()
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		MetricsRegistry: a.registry,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return shutdown(sctx)
	})
	a.metrics = observe.DefaultMetrics()
	return nil
}

// initStore opens the persistence backend. With backend "auto" the
// environment decides: a desktop profile talks to the host process over
// the bridge, a browser profile uses the embedded database. The choice
// is made once here and holds for the process lifetime.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		a.store = meterStore(a.store, a.metrics, "injected")
		return nil
	}

	backend := a.cfg.Storage.Backend
	if backend == config.BackendAuto || backend == "" {
		if platform.IsDesktop() {
			backend = config.BackendBridge
		} else {
			backend = config.BackendEmbedded
		}
	}

	switch backend {
	case config.BackendEmbedded:
		s, err := badgerstore.Open(a.cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("open embedded store at %q: %w", a.cfg.Storage.DataDir, err)
		}
		a.store = meterStore(s, a.metrics, "embedded")
		a.closers = append(a.closers, s.Close)

	case config.BackendBridge:
		s, err := bridgestore.DialResilient(ctx, a.cfg.Storage.Bridge.URL, a.cfg.Storage.Bridge.CallTimeout)
		if err != nil {
			return fmt.Errorf("dial host bridge %q: %w", a.cfg.Storage.Bridge.URL, err)
		}
		a.metrics.BridgeConnections.Add(ctx, 1)
		a.store = meterStore(s, a.metrics, "bridge")
		a.closers = append(a.closers, func() error {
			a.metrics.BridgeConnections.Add(context.Background(), -1)
			return s.Close()
		})

	default:
		return fmt.Errorf("unknown storage backend %q", backend)
	}

	slog.Info("storage backend selected", "backend", backend)
	return nil
}

// initCapture opens the microphone (unless injected) and builds the
// recording controller. Capture failures reach the user through the
// notifier relay, which forwards to whatever frontends are connected.
func (a *App) initCapture() error {
	if a.source == nil {
		mic, err := capture.NewMicrophone(
			audio.Format{SampleRate: a.cfg.Capture.SampleRate, Channels: 1},
			a.cfg.Capture.ChunkSize,
		)
		if err != nil {
			return fmt.Errorf("open microphone: %w", err)
		}
		a.source = mic
		a.closers = append(a.closers, mic.Close)
	}

	a.rec = capture.NewController(a.source, a.store,
		capture.WithMaxDuration(a.cfg.Capture.MaxDuration),
		capture.WithDomainMaxDurations(a.cfg.Capture.DomainMaxDurations),
		capture.WithStoreFormat(audio.Format{SampleRate: a.cfg.Capture.StoreSampleRate, Channels: 1}),
		capture.WithMetrics(a.metrics),
		capture.WithNotifier(notify.Func(a.notifyUI)),
	)
	a.closers = append(a.closers, a.rec.Close)
	return nil
}

// initPlayback builds the speaker sink (unless injected) and the
// playback arbiter. The fallback player comes from config; without one,
// undecodable recordings fail playback instead of shelling out.
func (a *App) initPlayback() error {
	if a.sink == nil {
		spk, err := playback.NewSpeaker()
		if err != nil {
			return fmt.Errorf("open speaker: %w", err)
		}
		a.sink = spk
		a.closers = append(a.closers, spk.Close)
	}

	if a.fallback == nil && a.cfg.Playback.FallbackPlayer != "" {
		a.fallback = &playback.ExecPlayer{
			Command: a.cfg.Playback.FallbackPlayer,
			Args:    a.cfg.Playback.FallbackArgs,
		}
	}

	opts := []playback.Option{playback.WithMetrics(a.metrics)}
	if a.cfg.Playback.TempDir != "" {
		opts = append(opts, playback.WithTempDir(a.cfg.Playback.TempDir))
	}
	a.player = playback.New(a.store, a.sink, a.fallback, opts...)
	return nil
}

// initExtras wires the optional subsystems: the self-review store and
// the practice-content client.
func (a *App) initExtras() error {
	if a.cfg.Review.Path != "" {
		a.reviews = review.NewFileStore(a.cfg.Review.Path)
	}

	if a.cfg.Content.BaseURL != "" {
		c, err := content.NewClient(a.cfg.Content.BaseURL, a.cfg.Content.Timeout)
		if err != nil {
			return fmt.Errorf("content client: %w", err)
		}
		a.content = c
	}
	return nil
}

// initHTTP assembles the API server and the HTTP mux around it.
func (a *App) initHTTP() {
	var apiOpts []api.Option
	if a.reviews != nil {
		apiOpts = append(apiOpts, api.WithReviews(a.reviews))
	}
	a.api = api.NewServer(a.store, a.rec, a.player, apiOpts...)

	mux := http.NewServeMux()
	mux.Handle("/ws", a.api.Handler())
	health.New(
		health.Storage(a.store),
		health.Capture(a.captureReady),
	).Register(mux)
	if a.cfg.Server.MetricsPath != "" {
		mux.Handle(a.cfg.Server.MetricsPath, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// captureReady reports whether the audio input path is usable.
func (a *App) captureReady() error {
	if a.source == nil {
		return errors.New("no capture source")
	}
	f := a.source.Format()
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("capture source reports invalid format %d/%d", f.SampleRate, f.Channels)
	}
	return nil
}

// notifyUI forwards a notice to connected frontends and mirrors it to
// the log, so nothing user-facing is lost when no frontend is attached.
func (a *App) notifyUI(ctx context.Context, level notify.Level, message string) {
	notify.NewLogNotifier(slog.Default()).Notify(ctx, level, message)
	if a.api != nil {
		a.api.Notify(ctx, level, message)
	}
}

// Content returns the practice-content client, or nil when no content
// source is configured.
func (a *App) Content() *content.Client { return a.content }

// Run serves the UI-facing API and blocks until ctx is cancelled or the
// server fails. The listener is bound before Run returns control to the
// serve loop, so a bad address fails fast.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen on %q: %w", a.cfg.Server.ListenAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpSrv.Shutdown(sctx)
	})

	slog.Info("vocalise backend running", "addr", ln.Addr())
	return g.Wait()
}

// Shutdown stops any active capture, then closes all subsystems in
// reverse initialisation order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		// Flush an in-progress take before the store goes away.
		if a.rec != nil {
			if err := a.rec.Stop(ctx); err != nil {
				slog.Warn("final capture stop failed", "err", err)
			}
		}
		a.stopErr = a.closeAll()
	})
	return a.stopErr
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
