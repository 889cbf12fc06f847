// Package api exposes the backend to local frontends over a websocket
// JSON command surface. The UI opens one connection and issues commands
// (record, play, text notes, reviews); the server answers each command
// with exactly one result frame and pushes unsolicited frames for
// playback lifecycle events and user-facing notices.
//
// The surface is local-only by design: the listener binds loopback and
// there is no authentication. Anything that can open the socket is the
// user's own frontend.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vocalise-app/vocalise/internal/capture"
	"github.com/vocalise-app/vocalise/internal/notify"
	"github.com/vocalise-app/vocalise/internal/playback"
	"github.com/vocalise-app/vocalise/internal/review"
	"github.com/vocalise-app/vocalise/internal/storage"
)

// writeTimeout bounds each frame write so one stuck frontend cannot
// wedge the broadcast path for everyone else.
const writeTimeout = 5 * time.Second

// Server handles UI connections and dispatches their commands to the
// capture controller, playback arbiter, storage backend, and review
// store. It also implements [notify.Notifier]: notices are broadcast to
// every connected frontend as toast-style frames.
type Server struct {
	store   storage.Store
	rec     *capture.Controller
	player  *playback.Arbiter
	reviews *review.FileStore
	log     *slog.Logger

	mu    sync.Mutex
	conns map[*session]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithReviews enables the self-review commands.
func WithReviews(r *review.FileStore) Option {
	return func(s *Server) { s.reviews = r }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// NewServer creates a Server over the given subsystems.
func NewServer(store storage.Store, rec *capture.Controller, player *playback.Arbiter, opts ...Option) *Server {
	s := &Server{
		store:  store,
		rec:    rec,
		player: player,
		log:    slog.Default(),
		conns:  make(map[*session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ notify.Notifier = (*Server)(nil)

// Notify broadcasts a notice frame to every connected frontend. The
// frontends render these as toasts; a frontend that is not connected
// simply misses the notice, matching how transient alerts behave.
func (s *Server) Notify(ctx context.Context, level notify.Level, message string) {
	frame := Frame{Type: FrameNotice, Level: string(level), Message: message}

	s.mu.Lock()
	conns := make([]*session, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.write(ctx, frame); err != nil {
			s.log.Debug("notice dropped", "err", err)
		}
	}
}

// Handler returns the websocket upgrade handler for the command surface.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// Local-only surface; the listener binds loopback.
			InsecureSkipVerify: true,
		})
		if err != nil {
			s.log.Warn("websocket accept failed", "err", err)
			return
		}

		c := newSession(s, conn)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.log.Debug("frontend connected", "remote", r.RemoteAddr)
		c.serve(r.Context())

		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		s.log.Debug("frontend disconnected", "remote", r.RemoteAddr)
	})
}
