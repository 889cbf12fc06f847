// Package review stores self-assessment entries learners attach to
// their recordings. Entries are append-only JSON lines in a local
// file, which keeps the review history portable alongside the
// recording store.
package review

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Entry is a single self-review written to the file store.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	RecordingKey string    `json:"recording_key"`
	// Rating is the learner's own 1-5 score of the attempt.
	Rating int `json:"rating"`
	// Intelligible records whether the learner judged the attempt
	// understandable on replay.
	Intelligible bool   `json:"intelligible"`
	Comments     string `json:"comments,omitempty"`
}

// FileStore persists review entries as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created if it does not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save appends a review entry for key. A zero timestamp is filled in
// with the current time.
func (fs *FileStore) Save(key string, e Entry) error {
	if key == "" {
		return fmt.Errorf("review: empty recording key")
	}
	if e.Rating < 1 || e.Rating > 5 {
		return fmt.Errorf("review: rating %d out of range [1, 5]", e.Rating)
	}
	e.RecordingKey = key
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("review: marshal: %w", err)
	}
	data = append(data, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("review: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("review: write: %w", err)
	}
	return nil
}

// ForKey returns all stored entries for key, oldest first. A missing
// file yields an empty slice.
func (fs *FileStore) ForKey(key string) ([]Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("review: open file: %w", err)
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// Skip torn lines from interrupted writes.
			continue
		}
		if e.RecordingKey == key {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("review: scan file: %w", err)
	}
	return out, nil
}
