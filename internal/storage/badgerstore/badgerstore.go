// Package badgerstore implements storage.Store on an embedded Badger
// database. It backs the browser profile, standing in for the structured
// local database the web frontend uses.
//
// Collections are key prefixes inside one database. The underlying store
// serializes transactions, so no application-level locking is needed;
// operations on different keys interleave freely.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/vocalise-app/vocalise/internal/storage"
)

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// Store is a Badger-backed storage.Store.
type Store struct {
	mu     sync.Mutex
	db     *badger.DB
	closed bool
}

// recordEnvelope is the stored form of a recording. The payload is kept
// raw; only the metadata travels through JSON.
type recordEnvelope struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"recording"`
}

// Open opens (creating on first use) the embedded database at dir.
// Collections need no explicit creation; prefixes come into existence with
// their first write, and reopening an existing database neither fails nor
// duplicates anything.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// key composes the full database key for a collection entry.
func key(col storage.Collection, id string) []byte {
	return []byte(string(col) + ":" + id)
}

// SaveRecording stores rec under the recordings collection, replacing any
// prior value.
func (s *Store) SaveRecording(ctx context.Context, rec storage.Recording) error {
	if err := storage.ValidateRecording(rec); err != nil {
		return fmt.Errorf("badgerstore: save %q: %w", rec.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	buf, err := json.Marshal(recordEnvelope{MimeType: rec.MimeType, Data: rec.Data})
	if err != nil {
		return fmt.Errorf("badgerstore: marshal %q: %w", rec.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(storage.Recordings, rec.ID), buf)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: save %q: %w", rec.ID, err)
	}
	return nil
}

// GetRecording loads the recording stored under k.
func (s *Store) GetRecording(ctx context.Context, k string) (storage.Recording, error) {
	if err := ctx.Err(); err != nil {
		return storage.Recording{}, err
	}

	var env recordEnvelope
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(storage.Recordings, k))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.Recording{}, fmt.Errorf("badgerstore: get %q: %w", k, storage.ErrNotFound)
		}
		return storage.Recording{}, fmt.Errorf("badgerstore: get %q: %w", k, err)
	}
	return storage.Recording{ID: k, Data: env.Data, MimeType: env.MimeType}, nil
}

// RecordingExists reports whether a recording is stored under k. Any read
// failure reports false; availability checks must never take the UI down.
func (s *Store) RecordingExists(ctx context.Context, k string) bool {
	if ctx.Err() != nil {
		return false
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key(storage.Recordings, k))
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("badgerstore: existence check failed open", "key", k, "err", err)
		}
		return false
	}
	return true
}

// DeleteRecording removes the recording under k. Absent keys are a no-op.
func (s *Store) DeleteRecording(ctx context.Context, k string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(storage.Recordings, k))
	})
	if err != nil {
		return fmt.Errorf("badgerstore: delete %q: %w", k, err)
	}
	return nil
}

// SaveText stores txt in col, replacing any prior note.
func (s *Store) SaveText(ctx context.Context, col storage.Collection, txt storage.Text) error {
	if err := storage.ValidateText(col, txt); err != nil {
		return fmt.Errorf("badgerstore: save text %q: %w", txt.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	buf, err := json.Marshal(txt)
	if err != nil {
		return fmt.Errorf("badgerstore: marshal text %q: %w", txt.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(col, txt.ID), buf)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: save text %q: %w", txt.ID, err)
	}
	return nil
}

// GetText loads the note stored under k in col.
func (s *Store) GetText(ctx context.Context, col storage.Collection, k string) (storage.Text, error) {
	if err := ctx.Err(); err != nil {
		return storage.Text{}, err
	}

	var txt storage.Text
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(col, k))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &txt)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.Text{}, fmt.Errorf("badgerstore: get text %q: %w", k, storage.ErrNotFound)
		}
		return storage.Text{}, fmt.Errorf("badgerstore: get text %q: %w", k, err)
	}
	return txt, nil
}

// DeleteText removes the note under k in col. Absent keys are a no-op.
func (s *Store) DeleteText(ctx context.Context, col storage.Collection, k string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(col, k))
	})
	if err != nil {
		return fmt.Errorf("badgerstore: delete text %q: %w", k, err)
	}
	return nil
}

// Close closes the database. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badgerstore: close: %w", err)
	}
	return nil
}
