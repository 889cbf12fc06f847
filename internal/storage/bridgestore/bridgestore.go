// Package bridgestore implements storage.Store by delegating every
// operation to the desktop host process over the bridge protocol. It backs
// the desktop profile, where the host — not this process — owns the
// recording folder.
//
// A save resolves only once the host confirms the bytes are on disk;
// existence checks fail open to false on any transport or host error.
package bridgestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/vocalise-app/vocalise/internal/bridge"
	"github.com/vocalise-app/vocalise/internal/observe"
	"github.com/vocalise-app/vocalise/internal/storage"
)

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// ErrBridgeClosed is returned for calls made after Close, or when the host
// connection drops with requests still in flight.
var ErrBridgeClosed = errors.New("bridge connection closed")

// DefaultCallTimeout bounds one round trip when the caller's context
// carries no deadline of its own.
const DefaultCallTimeout = 10 * time.Second

// Store is a bridge-backed storage.Store.
type Store struct {
	conn    *websocket.Conn
	timeout time.Duration
	metrics *observe.Metrics

	mu      sync.Mutex
	pending map[string]chan bridge.Response
	closed  bool

	done chan struct{}
}

// Dial connects to the host bridge at url (e.g. "ws://127.0.0.1:42719")
// and starts the response dispatcher. callTimeout <= 0 selects
// [DefaultCallTimeout].
func Dial(ctx context.Context, url string, callTimeout time.Duration) (*Store, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("bridgestore: dial %q: %w", url, err)
	}
	// Recordings ride base64-encoded in single frames; the websocket
	// default read limit would sever the connection on the first real take.
	conn.SetReadLimit(bridge.MaxMessageBytes)
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	s := &Store{
		conn:    conn,
		timeout: callTimeout,
		metrics: observe.DefaultMetrics(),
		pending: make(map[string]chan bridge.Response),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// readLoop dispatches host responses to their waiting callers until the
// connection ends, then fails every pending call.
func (s *Store) readLoop() {
	defer close(s.done)
	ctx := context.Background()

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.failPending()
			return
		}
		var resp bridge.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Warn("bridgestore: malformed host response", "err", err)
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// failPending wakes every in-flight caller after the connection dropped.
func (s *Store) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

// call performs one round trip to the host, timing it per operation.
func (s *Store) call(ctx context.Context, req bridge.Request) (bridge.Response, error) {
	start := time.Now()
	resp, err := s.roundTrip(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordBridgeCall(ctx, string(req.Op), status, time.Since(start).Seconds())
	return resp, err
}

func (s *Store) roundTrip(ctx context.Context, req bridge.Request) (bridge.Response, error) {
	req.ID = uuid.NewString()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ch := make(chan bridge.Response, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return bridge.Response{}, fmt.Errorf("bridgestore: %s: %w", req.Op, ErrBridgeClosed)
	}
	s.pending[req.ID] = ch
	s.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		s.abandon(req.ID)
		return bridge.Response{}, fmt.Errorf("bridgestore: marshal %s: %w", req.Op, err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.abandon(req.ID)
		// A failed write means the connection is gone.
		return bridge.Response{}, fmt.Errorf("bridgestore: send %s: %w: %v", req.Op, ErrBridgeClosed, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return bridge.Response{}, fmt.Errorf("bridgestore: %s: %w", req.Op, ErrBridgeClosed)
		}
		return resp, nil
	case <-ctx.Done():
		s.abandon(req.ID)
		return bridge.Response{}, fmt.Errorf("bridgestore: %s: %w", req.Op, ctx.Err())
	}
}

// abandon forgets an in-flight request after a local failure.
func (s *Store) abandon(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// SaveRecording sends the take to the host and waits for the on-disk
// write to be confirmed.
func (s *Store) SaveRecording(ctx context.Context, rec storage.Recording) error {
	if err := storage.ValidateRecording(rec); err != nil {
		return fmt.Errorf("bridgestore: save %q: %w", rec.ID, err)
	}
	resp, err := s.call(ctx, bridge.Request{
		Op:       bridge.OpSaveRecording,
		Key:      rec.ID,
		MimeType: rec.MimeType,
		Data:     rec.Data,
	})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("bridgestore: save %q: host: %s", rec.ID, resp.Error)
	}
	return nil
}

// GetRecording fetches the take stored under key.
func (s *Store) GetRecording(ctx context.Context, key string) (storage.Recording, error) {
	resp, err := s.call(ctx, bridge.Request{Op: bridge.OpPlayRecording, Key: key})
	if err != nil {
		return storage.Recording{}, err
	}
	if resp.NotFound {
		return storage.Recording{}, fmt.Errorf("bridgestore: get %q: %w", key, storage.ErrNotFound)
	}
	if !resp.OK {
		return storage.Recording{}, fmt.Errorf("bridgestore: get %q: host: %s", key, resp.Error)
	}
	return storage.Recording{ID: key, Data: resp.Data, MimeType: resp.MimeType}, nil
}

// RecordingExists asks the host whether key is stored. Transport and host
// failures report false.
func (s *Store) RecordingExists(ctx context.Context, key string) bool {
	resp, err := s.call(ctx, bridge.Request{Op: bridge.OpCheckRecording, Key: key})
	if err != nil {
		slog.Warn("bridgestore: existence check failed open", "key", key, "err", err)
		return false
	}
	return resp.OK && resp.Exists
}

// DeleteRecording removes the take stored under key.
func (s *Store) DeleteRecording(ctx context.Context, key string) error {
	resp, err := s.call(ctx, bridge.Request{Op: bridge.OpDeleteRecording, Key: key})
	if err != nil {
		return err
	}
	if !resp.OK && !resp.NotFound {
		return fmt.Errorf("bridgestore: delete %q: host: %s", key, resp.Error)
	}
	return nil
}

// SaveText stores a note through the host.
func (s *Store) SaveText(ctx context.Context, col storage.Collection, txt storage.Text) error {
	if err := storage.ValidateText(col, txt); err != nil {
		return fmt.Errorf("bridgestore: save text %q: %w", txt.ID, err)
	}
	resp, err := s.call(ctx, bridge.Request{
		Op:         bridge.OpSaveText,
		Key:        txt.ID,
		Collection: string(col),
		Text:       txt.Value,
	})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("bridgestore: save text %q: host: %s", txt.ID, resp.Error)
	}
	return nil
}

// GetText loads a note through the host.
func (s *Store) GetText(ctx context.Context, col storage.Collection, key string) (storage.Text, error) {
	resp, err := s.call(ctx, bridge.Request{
		Op:         bridge.OpGetText,
		Key:        key,
		Collection: string(col),
	})
	if err != nil {
		return storage.Text{}, err
	}
	if resp.NotFound {
		return storage.Text{}, fmt.Errorf("bridgestore: get text %q: %w", key, storage.ErrNotFound)
	}
	if !resp.OK {
		return storage.Text{}, fmt.Errorf("bridgestore: get text %q: host: %s", key, resp.Error)
	}
	return storage.Text{ID: key, Value: resp.Text}, nil
}

// DeleteText removes a note through the host.
func (s *Store) DeleteText(ctx context.Context, col storage.Collection, key string) error {
	resp, err := s.call(ctx, bridge.Request{
		Op:         bridge.OpDeleteText,
		Key:        key,
		Collection: string(col),
	})
	if err != nil {
		return err
	}
	if !resp.OK && !resp.NotFound {
		return fmt.Errorf("bridgestore: delete text %q: host: %s", key, resp.Error)
	}
	return nil
}

// Close tears down the host connection. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.conn.Close(websocket.StatusNormalClosure, "store closed")
	select {
	case <-s.done:
	case <-time.After(time.Second):
	}
	if err != nil {
		return fmt.Errorf("bridgestore: close: %w", err)
	}
	return nil
}
