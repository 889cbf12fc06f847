package app

import (
	"context"
	"errors"
	"time"

	"github.com/vocalise-app/vocalise/internal/observe"
	"github.com/vocalise-app/vocalise/internal/storage"
)

// meteredStore decorates a storage backend with save/error metrics.
// Lookup misses are not errors for metric purposes; only genuine
// failures count.
type meteredStore struct {
	inner   storage.Store
	m       *observe.Metrics
	backend string
}

var _ storage.Store = (*meteredStore)(nil)

func meterStore(inner storage.Store, m *observe.Metrics, backend string) storage.Store {
	return &meteredStore{inner: inner, m: m, backend: backend}
}

func (s *meteredStore) SaveRecording(ctx context.Context, rec storage.Recording) error {
	start := time.Now()
	err := s.inner.SaveRecording(ctx, rec)
	status := "ok"
	if err != nil {
		status = "error"
		s.m.RecordStorageError(ctx, "save-recording")
	}
	s.m.RecordSave(ctx, s.backend, status, time.Since(start).Seconds())
	return err
}

func (s *meteredStore) GetRecording(ctx context.Context, key string) (storage.Recording, error) {
	rec, err := s.inner.GetRecording(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.m.RecordStorageError(ctx, "get-recording")
	}
	return rec, err
}

func (s *meteredStore) RecordingExists(ctx context.Context, key string) bool {
	return s.inner.RecordingExists(ctx, key)
}

func (s *meteredStore) DeleteRecording(ctx context.Context, key string) error {
	err := s.inner.DeleteRecording(ctx, key)
	if err != nil {
		s.m.RecordStorageError(ctx, "delete-recording")
	}
	return err
}

func (s *meteredStore) SaveText(ctx context.Context, col storage.Collection, txt storage.Text) error {
	err := s.inner.SaveText(ctx, col, txt)
	if err != nil {
		s.m.RecordStorageError(ctx, "save-text")
	}
	return err
}

func (s *meteredStore) GetText(ctx context.Context, col storage.Collection, key string) (storage.Text, error) {
	txt, err := s.inner.GetText(ctx, col, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.m.RecordStorageError(ctx, "get-text")
	}
	return txt, err
}

func (s *meteredStore) DeleteText(ctx context.Context, col storage.Collection, key string) error {
	err := s.inner.DeleteText(ctx, col, key)
	if err != nil {
		s.m.RecordStorageError(ctx, "delete-text")
	}
	return err
}

func (s *meteredStore) Close() error { return s.inner.Close() }
