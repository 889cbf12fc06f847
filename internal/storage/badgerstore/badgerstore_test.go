package badgerstore_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/vocalise-app/vocalise/internal/storage"
	"github.com/vocalise-app/vocalise/internal/storage/badgerstore"
)

func openStore(t *testing.T) *badgerstore.Store {
	t.Helper()
	s, err := badgerstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestSaveAndGetRecording(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)

	rec := storage.Recording{
		ID:       "british-sound-th01-2",
		Data:     []byte{0x52, 0x49, 0x46, 0x46, 1, 2, 3},
		MimeType: "audio/wav",
	}
	if err := s.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}

	got, err := s.GetRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if !bytes.Equal(got.Data, rec.Data) {
		t.Fatal("payload mismatch after round trip")
	}
	if got.MimeType != rec.MimeType {
		t.Fatalf("mime type = %q, want %q", got.MimeType, rec.MimeType)
	}
}

func TestSaveRejectsInvalidRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)

	tests := []struct {
		name string
		rec  storage.Recording
	}{
		{"empty payload", storage.Recording{ID: "k", MimeType: "audio/wav"}},
		{"empty mime", storage.Recording{ID: "k", Data: []byte{1}}},
		{"empty id", storage.Recording{Data: []byte{1}, MimeType: "audio/wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.SaveRecording(ctx, tt.rec)
			if !errors.Is(err, storage.ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestGetMissingRecording(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	_, err := s.GetRecording(context.Background(), "nonexistent-key")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordingExistsFailsOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)

	if s.RecordingExists(ctx, "never-written") {
		t.Fatal("exists reported true for a never-written key")
	}

	rec := storage.Recording{ID: "american-exam-ex01-0", Data: []byte{9}, MimeType: "audio/wav"}
	if err := s.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}
	if !s.RecordingExists(ctx, rec.ID) {
		t.Fatal("exists reported false for a stored key")
	}
}

func TestOverwriteKeepsSecondPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)

	id := "british-conversation-12"
	first := storage.Recording{ID: id, Data: []byte{1, 1, 1}, MimeType: "audio/wav"}
	second := storage.Recording{ID: id, Data: []byte{2, 2}, MimeType: "audio/webm"}

	if err := s.SaveRecording(ctx, first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.SaveRecording(ctx, second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.GetRecording(ctx, id)
	if err != nil {
		t.Fatalf("GetRecording: %v", err)
	}
	if !bytes.Equal(got.Data, second.Data) || got.MimeType != second.MimeType {
		t.Fatalf("expected the second payload to win, got %+v", got)
	}
}

func TestDeleteRecording(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)

	rec := storage.Recording{ID: "british-word-7", Data: []byte{5}, MimeType: "audio/wav"}
	if err := s.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}
	if err := s.DeleteRecording(ctx, rec.ID); err != nil {
		t.Fatalf("DeleteRecording: %v", err)
	}
	if s.RecordingExists(ctx, rec.ID) {
		t.Fatal("recording still exists after delete")
	}

	// Deleting an absent key is not an error.
	if err := s.DeleteRecording(ctx, "never-written"); err != nil {
		t.Fatalf("delete of absent key: %v", err)
	}
}

func TestTextLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)

	txt := storage.Text{ID: "british-conversation-12-text", Value: "remember the linking r"}
	if err := s.SaveText(ctx, storage.ConversationTexts, txt); err != nil {
		t.Fatalf("SaveText: %v", err)
	}

	got, err := s.GetText(ctx, storage.ConversationTexts, txt.ID)
	if err != nil {
		t.Fatalf("GetText: %v", err)
	}
	if got.Value != txt.Value {
		t.Fatalf("text = %q, want %q", got.Value, txt.Value)
	}

	// Texts in one collection are invisible in another.
	if _, err := s.GetText(ctx, storage.ExamTexts, txt.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound across collections, got %v", err)
	}

	if err := s.DeleteText(ctx, storage.ConversationTexts, txt.ID); err != nil {
		t.Fatalf("DeleteText: %v", err)
	}
	if _, err := s.GetText(ctx, storage.ConversationTexts, txt.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestTextRejectsRecordingsCollection(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	err := s.SaveText(context.Background(), storage.Recordings, storage.Text{ID: "k", Value: "v"})
	if !errors.Is(err, storage.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	s, err := badgerstore.Open(dir)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	rec := storage.Recording{ID: "british-sound-th01-0", Data: []byte{7, 7}, MimeType: "audio/wav"}
	if err := s.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("SaveRecording: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening must not fail or lose data.
	s2, err := badgerstore.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetRecording(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecording after reopen: %v", err)
	}
	if !bytes.Equal(got.Data, rec.Data) {
		t.Fatal("payload lost across reopen")
	}
}
