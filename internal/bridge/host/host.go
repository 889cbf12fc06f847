// Package host implements the privileged desktop-side service that owns
// the on-disk recording folder. The app backend never touches these files
// directly; every operation arrives as a bridge.Request over a local
// websocket and is answered only once the filesystem work has finished.
//
// Layout under the save folder:
//
//	saved_recordings/<key>.wav   one file per recording key
//	saved_recordings/<key>.mime  container type, only for non-WAV takes
//	saved_texts/<key>.json       one file per text note
//
// Writes go through an atomic rename so a crash mid-save never leaves a
// truncated recording behind.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/vocalise-app/vocalise/internal/bridge"
)

const (
	recordingDir = "saved_recordings"
	textDir      = "saved_texts"

	// recordingExt is fixed: the host stores every take under a .wav
	// name, matching the layout user data has always lived in. Takes
	// saved in another container keep their bytes as-is and get a
	// mimeExt sidecar recording the real type.
	recordingExt = ".wav"
	mimeExt      = ".mime"

	// defaultMimeType is assumed for takes without a sidecar.
	defaultMimeType = "audio/wav"
)

// Service answers bridge requests against a save folder.
type Service struct {
	saveDir string
}

// New creates a Service rooted at saveDir. The recording and text
// directories are created on first use, not here, so pointing at a fresh
// profile folder is cheap.
func New(saveDir string) *Service {
	return &Service{saveDir: saveDir}
}

// Handler returns the websocket upgrade handler serving the bridge
// protocol. Each accepted connection is processed until the peer
// disconnects; requests within a connection are answered in arrival order.
func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// The bridge only ever binds to loopback.
			InsecureSkipVerify: true,
		})
		if err != nil {
			slog.Warn("host: websocket accept failed", "err", err)
			return
		}
		conn.SetReadLimit(bridge.MaxMessageBytes)
		s.handleConn(r.Context(), conn)
	})
}

// Serve accepts websocket connections on l until ctx is cancelled.
func (s *Service) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("host: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// handleConn processes requests until the peer disconnects or ctx ends.
func (s *Service) handleConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				slog.Debug("host: connection read ended", "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var req bridge.Request
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Warn("host: malformed request", "err", err)
			continue
		}

		resp := s.dispatch(req)
		out, err := json.Marshal(resp)
		if err != nil {
			slog.Error("host: marshal response", "op", req.Op, "err", err)
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			slog.Warn("host: write response failed", "op", req.Op, "err", err)
			return
		}
	}
}
