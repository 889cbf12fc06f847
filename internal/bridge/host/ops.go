package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/vocalise-app/vocalise/internal/bridge"
)

// textEnvelope is the on-disk form of a text note.
type textEnvelope struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Text       string `json:"text"`
}

// dispatch executes one request and builds its response. Failures are
// reported to the peer; only exists-checks swallow errors (they fail open
// on the client side anyway).
func (s *Service) dispatch(req bridge.Request) bridge.Response {
	resp := bridge.Response{ID: req.ID}

	if req.Key == "" || !req.Op.IsValid() {
		resp.Error = fmt.Sprintf("host: bad request: op=%q key=%q", req.Op, req.Key)
		return resp
	}

	var err error
	switch req.Op {
	case bridge.OpSaveRecording:
		err = s.saveRecording(req.Key, req.MimeType, req.Data)
	case bridge.OpCheckRecording:
		resp.Exists = s.recordingExists(req.Key)
	case bridge.OpPlayRecording:
		resp.Data, resp.MimeType, err = s.readRecording(req.Key)
	case bridge.OpDeleteRecording:
		err = s.deleteRecording(req.Key)
	case bridge.OpSaveText:
		err = s.saveText(req.Collection, req.Key, req.Text)
	case bridge.OpGetText:
		resp.Text, err = s.readText(req.Collection, req.Key)
	case bridge.OpDeleteText:
		err = s.deleteText(req.Collection, req.Key)
	}

	switch {
	case err == nil:
		resp.OK = true
	case errors.Is(err, fs.ErrNotExist):
		resp.NotFound = true
		resp.Error = fmt.Sprintf("recording %q not found", req.Key)
	default:
		resp.Error = err.Error()
		slog.Error("host: operation failed", "op", req.Op, "key", req.Key, "err", err)
	}
	return resp
}

// recordingPath maps a key to its file. Keys are produced by the key
// scheme and never contain path separators, but the base-name check keeps
// a malicious peer inside the save folder regardless.
func (s *Service) recordingPath(key string) (string, error) {
	if key == "" || filepath.Base(key) != key {
		return "", fmt.Errorf("host: invalid key %q", key)
	}
	return filepath.Join(s.saveDir, recordingDir, key+recordingExt), nil
}

func (s *Service) textPath(collection, key string) (string, error) {
	if key == "" || filepath.Base(key) != key {
		return "", fmt.Errorf("host: invalid key %q", key)
	}
	if collection == "" || filepath.Base(collection) != collection {
		return "", fmt.Errorf("host: invalid collection %q", collection)
	}
	return filepath.Join(s.saveDir, textDir, collection, key+".json"), nil
}

// saveRecording writes the payload under its key. The write is atomic:
// the response (and therefore the caller's save) resolves only after the
// rename has landed. Non-WAV takes get a sidecar so a later play
// answers with the container type that was actually saved.
func (s *Service) saveRecording(key, mimeType string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("host: refusing to save empty recording %q", key)
	}
	path, err := s.recordingPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("host: create recording folder: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("host: write %q: %w", path, err)
	}

	sidecar := path + mimeExt
	if mimeType != "" && mimeType != defaultMimeType {
		if err := renameio.WriteFile(sidecar, []byte(mimeType), 0o644); err != nil {
			return fmt.Errorf("host: write %q: %w", sidecar, err)
		}
	} else if err := os.Remove(sidecar); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// A WAV overwriting an earlier non-WAV take must not keep the
		// stale type.
		return fmt.Errorf("host: remove stale %q: %w", sidecar, err)
	}
	slog.Info("host: recording saved", "key", key, "bytes", len(data), "mime", mimeType)
	return nil
}

func (s *Service) recordingExists(key string) bool {
	path, err := s.recordingPath(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (s *Service) readRecording(key string) ([]byte, string, error) {
	path, err := s.recordingPath(key)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("host: read %q: %w", key, fs.ErrNotExist)
		}
		return nil, "", fmt.Errorf("host: read %q: %w", key, err)
	}

	mimeType := defaultMimeType
	if sc, err := os.ReadFile(path + mimeExt); err == nil && len(sc) > 0 {
		mimeType = string(sc)
	}
	return data, mimeType, nil
}

func (s *Service) deleteRecording(key string) error {
	path, err := s.recordingPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("host: delete %q: %w", key, err)
	}
	if err := os.Remove(path + mimeExt); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("host: delete %q: %w", key, err)
	}
	return nil
}

func (s *Service) saveText(collection, key, text string) error {
	path, err := s.textPath(collection, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("host: create text folder: %w", err)
	}
	buf, err := json.Marshal(textEnvelope{ID: key, Collection: collection, Text: text})
	if err != nil {
		return fmt.Errorf("host: marshal text %q: %w", key, err)
	}
	if err := renameio.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("host: write text %q: %w", path, err)
	}
	return nil
}

func (s *Service) readText(collection, key string) (string, error) {
	path, err := s.textPath(collection, key)
	if err != nil {
		return "", err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("host: read text %q: %w", key, fs.ErrNotExist)
		}
		return "", fmt.Errorf("host: read text %q: %w", key, err)
	}
	var env textEnvelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return "", fmt.Errorf("host: decode text %q: %w", key, err)
	}
	return env.Text, nil
}

func (s *Service) deleteText(collection, key string) error {
	path, err := s.textPath(collection, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("host: delete text %q: %w", key, err)
	}
	return nil
}
