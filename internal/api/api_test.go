package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vocalise-app/vocalise/internal/api"
	"github.com/vocalise-app/vocalise/internal/capture"
	"github.com/vocalise-app/vocalise/internal/playback"
	"github.com/vocalise-app/vocalise/internal/review"
	"github.com/vocalise-app/vocalise/internal/storage"
	"github.com/vocalise-app/vocalise/internal/storage/storagetest"
	"github.com/vocalise-app/vocalise/pkg/audio"
)

// fakeSource stands in for the microphone: silence chunks, short delay.
type fakeSource struct {
	mu   sync.Mutex
	open bool
}

func (f *fakeSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	return nil
}

func (f *fakeSource) Read() ([]int16, error) {
	f.mu.Lock()
	open := f.open
	f.mu.Unlock()
	if !open {
		return nil, errors.New("fake: closed")
	}
	time.Sleep(2 * time.Millisecond)
	return make([]int16, 64), nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *fakeSource) Format() audio.Format {
	return audio.Format{SampleRate: 16000, Channels: 1}
}

// fakeSink consumes decoded PCM without touching any audio device.
type fakeSink struct{}

func (fakeSink) Open(format audio.Format) (playback.SinkStream, error) {
	return fakeStream{}, nil
}

type fakeStream struct{}

func (fakeStream) Play(ctx context.Context, pcm []int16, stop <-chan struct{}) error {
	select {
	case <-time.After(2 * time.Millisecond):
	case <-stop:
	case <-ctx.Done():
	}
	return nil
}

func (fakeStream) Close() error { return nil }

type testServer struct {
	store *storagetest.Mem
	conn  *websocket.Conn
}

func startServer(t *testing.T, opts ...api.Option) *testServer {
	t.Helper()

	store := storagetest.New()
	rec := capture.NewController(&fakeSource{}, store)
	t.Cleanup(func() { _ = rec.Close() })
	player := playback.New(store, fakeSink{}, nil)

	srv := httptest.NewServer(api.NewServer(store, rec, player, opts...).Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	return &testServer{store: store, conn: conn}
}

func (ts *testServer) send(t *testing.T, cmd api.Command) {
	t.Helper()
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal command: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ts.conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

// next reads a single frame.
func (ts *testServer) next(t *testing.T) api.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := ts.conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f api.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return f
}

// call sends cmd and returns its result frame, skipping any interleaved
// playback or notice frames.
func (ts *testServer) call(t *testing.T, cmd api.Command) api.Frame {
	t.Helper()
	ts.send(t, cmd)
	for {
		f := ts.next(t)
		if f.Type == api.FrameResult && f.ID == cmd.ID {
			return f
		}
	}
}

func TestRecordingExists(t *testing.T) {
	t.Parallel()

	ts := startServer(t)
	rec := storage.Recording{ID: "british-sound-th01-2", Data: []byte{1, 2}, MimeType: "audio/wav"}
	if err := ts.store.SaveRecording(context.Background(), rec); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	f := ts.call(t, api.Command{ID: "1", Op: api.OpRecordingExists, Key: rec.ID})
	if !f.OK || !f.Exists {
		t.Fatalf("expected exists=true, got %+v", f)
	}

	f = ts.call(t, api.Command{ID: "2", Op: api.OpRecordingExists, Key: "american-word-w01-1"})
	if !f.OK || f.Exists {
		t.Fatalf("expected exists=false, got %+v", f)
	}
}

func TestTextLifecycle(t *testing.T) {
	t.Parallel()

	ts := startServer(t)
	key := "british-conversation-c01-1-text"

	f := ts.call(t, api.Command{ID: "1", Op: api.OpSaveText, Collection: "conversation_data", Key: key, Text: "went well"})
	if !f.OK {
		t.Fatalf("save-text failed: %+v", f)
	}

	f = ts.call(t, api.Command{ID: "2", Op: api.OpGetText, Collection: "conversation_data", Key: key})
	if !f.OK || f.Text != "went well" {
		t.Fatalf("get-text: %+v", f)
	}

	f = ts.call(t, api.Command{ID: "3", Op: api.OpDeleteText, Collection: "conversation_data", Key: key})
	if !f.OK {
		t.Fatalf("delete-text failed: %+v", f)
	}

	f = ts.call(t, api.Command{ID: "4", Op: api.OpGetText, Collection: "conversation_data", Key: key})
	if f.OK || !f.NotFound {
		t.Fatalf("expected notFound after delete, got %+v", f)
	}
}

func TestTextRejectsRecordingCollection(t *testing.T) {
	t.Parallel()

	ts := startServer(t)
	f := ts.call(t, api.Command{ID: "1", Op: api.OpSaveText, Collection: "recording_data", Key: "k", Text: "x"})
	if f.OK {
		t.Fatal("expected save-text into recording_data to fail")
	}
}

func TestPlaybackLifecycle(t *testing.T) {
	t.Parallel()

	ts := startServer(t)
	format := audio.Format{SampleRate: 16000, Channels: 1}
	pcm := make([]int16, 1600) // 100ms of silence
	rec := storage.Recording{
		ID:       "british-word-w02-1",
		Data:     audio.EncodeWAV(audio.Int16sToBytes(pcm), format),
		MimeType: "audio/wav",
	}
	if err := ts.store.SaveRecording(context.Background(), rec); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	ts.send(t, api.Command{ID: "p1", Op: api.OpPlayRecording, Key: rec.ID})

	var sawResult, sawStarted, sawEnded bool
	for !sawResult || !sawStarted || !sawEnded {
		f := ts.next(t)
		switch {
		case f.Type == api.FrameResult && f.ID == "p1":
			if !f.OK {
				t.Fatalf("play-recording rejected: %+v", f)
			}
			sawResult = true
		case f.Type == api.FramePlayback && f.Event == api.EventStarted:
			sawStarted = true
		case f.Type == api.FramePlayback && f.Event == api.EventFailed:
			t.Fatalf("unexpected playback failure: %+v", f)
		case f.Type == api.FramePlayback && f.Event == api.EventEnded:
			sawEnded = true
		}
	}
}

func TestPlaybackMissingKeyFails(t *testing.T) {
	t.Parallel()

	ts := startServer(t)
	ts.send(t, api.Command{ID: "p1", Op: api.OpPlayRecording, Key: "american-sound-s99-1"})

	for {
		f := ts.next(t)
		if f.Type != api.FramePlayback {
			continue
		}
		if f.Event != api.EventFailed || !f.NotFound {
			t.Fatalf("expected notFound failure event, got %+v", f)
		}
		return
	}
}

func TestRecordingRoundTrip(t *testing.T) {
	t.Parallel()

	ts := startServer(t)
	key := "american-sound-th01-1"

	f := ts.call(t, api.Command{ID: "1", Op: api.OpStartRecording, Key: key})
	if !f.OK {
		t.Fatalf("start-recording failed: %+v", f)
	}

	f = ts.call(t, api.Command{ID: "2", Op: api.OpCaptureState})
	if f.State != "capturing" {
		t.Fatalf("expected capturing state, got %q", f.State)
	}

	time.Sleep(20 * time.Millisecond)

	f = ts.call(t, api.Command{ID: "3", Op: api.OpStopRecording})
	if !f.OK {
		t.Fatalf("stop-recording failed: %+v", f)
	}

	f = ts.call(t, api.Command{ID: "4", Op: api.OpRecordingExists, Key: key})
	if !f.Exists {
		t.Fatal("recording missing after stop")
	}
}

func TestStartRecordingRequiresKey(t *testing.T) {
	t.Parallel()

	ts := startServer(t)
	f := ts.call(t, api.Command{ID: "1", Op: api.OpStartRecording})
	if f.OK {
		t.Fatal("expected start-recording without key to fail")
	}
}

func TestReviewRoundTrip(t *testing.T) {
	t.Parallel()

	reviews := review.NewFileStore(filepath.Join(t.TempDir(), "reviews.jsonl"))
	ts := startServer(t, api.WithReviews(reviews))
	key := "british-exam-ex02-1"

	f := ts.call(t, api.Command{
		ID: "1", Op: api.OpSaveReview, Key: key,
		Review: &api.ReviewPayload{Rating: 4, Intelligible: true, Comments: "much closer"},
	})
	if !f.OK {
		t.Fatalf("save-review failed: %+v", f)
	}

	f = ts.call(t, api.Command{ID: "2", Op: api.OpGetReviews, Key: key})
	if !f.OK || len(f.Reviews) != 1 {
		t.Fatalf("get-reviews: %+v", f)
	}
	if got := f.Reviews[0]; got.Rating != 4 || !got.Intelligible || got.Comments != "much closer" {
		t.Fatalf("review mismatch: %+v", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	ts := startServer(t)
	f := ts.call(t, api.Command{ID: "1", Op: "reticulate-splines"})
	if f.OK || f.Error == "" {
		t.Fatalf("expected error result, got %+v", f)
	}
}
