package bridgestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vocalise-app/vocalise/internal/resilience"
	"github.com/vocalise-app/vocalise/internal/storage"
)

// Compile-time interface check.
var _ storage.Store = (*Resilient)(nil)

// Resilient wraps a bridge store with automatic redial and a circuit
// breaker. The desktop host can restart underneath the app (updates,
// crashes); callers keep using one storage.Store while Resilient
// replaces the dead connection behind it.
//
// While the host is unreachable the breaker fails calls immediately
// instead of letting every UI command wait out a dial timeout.
type Resilient struct {
	url     string
	timeout time.Duration
	breaker *resilience.Breaker
	log     *slog.Logger

	mu     sync.Mutex
	cur    *Store
	closed bool
}

// DialResilient connects to the host bridge like [Dial], but returns a
// store that survives host restarts. The initial dial must succeed so a
// misconfigured URL fails fast at startup.
func DialResilient(ctx context.Context, url string, callTimeout time.Duration) (*Resilient, error) {
	s, err := Dial(ctx, url, callTimeout)
	if err != nil {
		return nil, err
	}
	return &Resilient{
		url:     url,
		timeout: callTimeout,
		breaker: resilience.New(resilience.Config{
			Name:     "host-bridge",
			Cooldown: 5 * time.Second,
		}),
		log: slog.Default(),
		cur: s,
	}, nil
}

// conn returns the live store, redialing if the previous connection
// dropped.
func (r *Resilient) conn(ctx context.Context) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("bridgestore: %w", ErrBridgeClosed)
	}
	if r.cur != nil {
		return r.cur, nil
	}

	dctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	s, err := Dial(dctx, r.url, r.timeout)
	if err != nil {
		return nil, err
	}
	r.log.Info("host bridge reconnected", "url", r.url)
	r.cur = s
	return s, nil
}

// drop discards s if it is still the current connection. A concurrent
// caller may already have replaced it.
func (r *Resilient) drop(s *Store) {
	r.mu.Lock()
	if r.cur == s {
		r.cur = nil
	}
	r.mu.Unlock()
	_ = s.Close()
}

// do runs op through the breaker. Only transport failures feed the
// breaker: a missing key is an answer from a healthy host, not a reason
// to stop talking to it.
func (r *Resilient) do(ctx context.Context, op func(*Store) error) error {
	var opErr error
	err := r.breaker.Do(func() error {
		s, err := r.conn(ctx)
		if err != nil {
			return err
		}
		opErr = op(s)
		if errors.Is(opErr, ErrBridgeClosed) {
			r.drop(s)
			return opErr
		}
		return nil
	})
	if err != nil {
		return err
	}
	return opErr
}

func (r *Resilient) SaveRecording(ctx context.Context, rec storage.Recording) error {
	return r.do(ctx, func(s *Store) error { return s.SaveRecording(ctx, rec) })
}

func (r *Resilient) GetRecording(ctx context.Context, key string) (storage.Recording, error) {
	var rec storage.Recording
	err := r.do(ctx, func(s *Store) error {
		var err error
		rec, err = s.GetRecording(ctx, key)
		return err
	})
	return rec, err
}

// RecordingExists keeps the fail-open contract: an open breaker or dead
// connection reports false.
func (r *Resilient) RecordingExists(ctx context.Context, key string) bool {
	var exists bool
	err := r.do(ctx, func(s *Store) error {
		exists = s.RecordingExists(ctx, key)
		return nil
	})
	return err == nil && exists
}

func (r *Resilient) DeleteRecording(ctx context.Context, key string) error {
	return r.do(ctx, func(s *Store) error { return s.DeleteRecording(ctx, key) })
}

func (r *Resilient) SaveText(ctx context.Context, col storage.Collection, txt storage.Text) error {
	return r.do(ctx, func(s *Store) error { return s.SaveText(ctx, col, txt) })
}

func (r *Resilient) GetText(ctx context.Context, col storage.Collection, key string) (storage.Text, error) {
	var txt storage.Text
	err := r.do(ctx, func(s *Store) error {
		var err error
		txt, err = s.GetText(ctx, col, key)
		return err
	})
	return txt, err
}

func (r *Resilient) DeleteText(ctx context.Context, col storage.Collection, key string) error {
	return r.do(ctx, func(s *Store) error { return s.DeleteText(ctx, col, key) })
}

// Close shuts the current connection and stops any future redial.
func (r *Resilient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.cur == nil {
		return nil
	}
	s := r.cur
	r.cur = nil
	return s.Close()
}
