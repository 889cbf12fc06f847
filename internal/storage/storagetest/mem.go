// Package storagetest provides an in-memory Store for tests.
package storagetest

import (
	"context"
	"sync"

	"github.com/vocalise-app/vocalise/internal/storage"
)

// Mem is a map-backed storage.Store. The zero value is not usable;
// create one with New.
type Mem struct {
	mu    sync.Mutex
	recs  map[string]storage.Recording
	texts map[string]storage.Text

	// SaveErr, when set, fails every save.
	SaveErr error
	// GetErr, when set, fails every recording read.
	GetErr error
}

var _ storage.Store = (*Mem)(nil)

func New() *Mem {
	return &Mem{
		recs:  map[string]storage.Recording{},
		texts: map[string]storage.Text{},
	}
}

func (m *Mem) SaveRecording(ctx context.Context, rec storage.Recording) error {
	if err := storage.ValidateRecording(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *Mem) GetRecording(ctx context.Context, id string) (storage.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return storage.Recording{}, m.GetErr
	}
	rec, ok := m.recs[id]
	if !ok {
		return storage.Recording{}, storage.ErrNotFound
	}
	return rec, nil
}

func (m *Mem) RecordingExists(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.recs[id]
	return ok
}

func (m *Mem) DeleteRecording(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}

func (m *Mem) SaveText(ctx context.Context, col storage.Collection, txt storage.Text) error {
	if err := storage.ValidateText(col, txt); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.texts[string(col)+":"+txt.ID] = txt
	return nil
}

func (m *Mem) GetText(ctx context.Context, col storage.Collection, id string) (storage.Text, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txt, ok := m.texts[string(col)+":"+id]
	if !ok {
		return storage.Text{}, storage.ErrNotFound
	}
	return txt, nil
}

func (m *Mem) DeleteText(ctx context.Context, col storage.Collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.texts, string(col)+":"+id)
	return nil
}

func (m *Mem) Close() error { return nil }
