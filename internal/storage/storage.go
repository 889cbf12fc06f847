// Package storage defines the persistence contract for user-generated
// practice artifacts: audio recordings and text notes, keyed by the
// composite identities produced by internal/recordkey.
//
// Two implementations exist: an embedded database for the browser profile
// (badgerstore) and a message-passing bridge to the desktop host process
// (bridgestore). The backend is chosen once at startup — see [Open] — and
// stays fixed for the process lifetime.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get operations when no artifact is stored
// under the requested key.
var ErrNotFound = errors.New("recording not found")

// ErrInvalidRecord is returned by Save operations when the record is
// missing its payload, its MIME type, or its key.
var ErrInvalidRecord = errors.New("invalid record")

// Collection names an object store inside a backend. The names mirror the
// layout user data has always been stored under, so existing data remains
// readable across app versions.
type Collection string

const (
	// Recordings holds audio takes.
	Recordings Collection = "recording_data"

	// ConversationTexts holds free-text notes from conversation practice.
	ConversationTexts Collection = "conversation_data"

	// ExamTexts holds free-text notes from exam practice.
	ExamTexts Collection = "exam_data"
)

// IsValid reports whether c is a recognised collection.
func (c Collection) IsValid() bool {
	switch c {
	case Recordings, ConversationTexts, ExamTexts:
		return true
	}
	return false
}

// Recording is one stored audio take. Immutable once written; saving again
// under the same ID fully replaces the previous take.
type Recording struct {
	// ID is the recording key (see internal/recordkey).
	ID string

	// Data is the normalized audio blob. Never empty for a stored record.
	Data []byte

	// MimeType is the container type of Data (e.g. "audio/wav").
	MimeType string
}

// Text is one stored text note. Replace-on-save, deletable independently
// of any recording sharing its content item.
type Text struct {
	// ID is the text key (recording key + "-text" suffix).
	ID string

	// Value is the note body.
	Value string
}

// Store is the persistence backend contract. All operations are
// context-aware; implementations must be safe for concurrent use and must
// provide read-after-write visibility within a process run.
type Store interface {
	// SaveRecording stores rec, replacing any prior recording with the
	// same ID. Returns [ErrInvalidRecord] for empty ID, payload, or MIME
	// type. A failed save surfaces the cause; it never silently drops
	// data.
	SaveRecording(ctx context.Context, rec Recording) error

	// GetRecording loads the recording stored under key.
	// Returns [ErrNotFound] when nothing is stored under key.
	GetRecording(ctx context.Context, key string) (Recording, error)

	// RecordingExists reports whether a recording is stored under key.
	// It fails open: absence, read failures, and transport failures all
	// report false. Callers use it only to enable or disable controls.
	RecordingExists(ctx context.Context, key string) bool

	// DeleteRecording removes the recording under key. Deleting a key
	// that was never written is not an error.
	DeleteRecording(ctx context.Context, key string) error

	// SaveText stores txt in col, replacing any prior note with the same ID.
	SaveText(ctx context.Context, col Collection, txt Text) error

	// GetText loads the note stored under key in col.
	// Returns [ErrNotFound] when nothing is stored under key.
	GetText(ctx context.Context, col Collection, key string) (Text, error)

	// DeleteText removes the note under key in col. Deleting a key that
	// was never written is not an error.
	DeleteText(ctx context.Context, col Collection, key string) error

	// Close releases the backend. Further calls after Close fail.
	Close() error
}

// ValidateRecording applies the save-side invariants shared by all
// backends: a recording must carry a key, a payload, and a MIME type.
func ValidateRecording(rec Recording) error {
	if rec.ID == "" || len(rec.Data) == 0 || rec.MimeType == "" {
		return ErrInvalidRecord
	}
	return nil
}

// ValidateText applies the save-side invariants for notes: a valid text
// collection and a non-empty key.
func ValidateText(col Collection, txt Text) error {
	if !col.IsValid() || col == Recordings {
		return ErrInvalidRecord
	}
	if txt.ID == "" {
		return ErrInvalidRecord
	}
	return nil
}
