package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vocalise-app/vocalise/internal/playback"
	"github.com/vocalise-app/vocalise/internal/review"
	"github.com/vocalise-app/vocalise/internal/storage"
)

// session is one frontend connection. Commands are read and dispatched
// in arrival order; playback events and notices interleave with results
// on the write side, serialised by wmu.
type session struct {
	srv  *Server
	conn *websocket.Conn

	wmu sync.Mutex

	// plays tracks in-flight playback by originating command ID so a
	// later stop-playback can reach the handle. Guarded by pmu.
	pmu   sync.Mutex
	plays map[string]playback.Handle
}

func newSession(srv *Server, conn *websocket.Conn) *session {
	return &session{
		srv:   srv,
		conn:  conn,
		plays: make(map[string]playback.Handle),
	}
}

// serve reads commands until the peer disconnects, then stops any
// playback the connection still owns. A frontend that goes away loses
// its handles, so the audio must not keep playing to nobody.
func (c *session) serve(ctx context.Context) {
	defer c.stopAll()
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.reply(ctx, Frame{Type: FrameResult, Error: "malformed command"})
			continue
		}

		c.dispatch(ctx, cmd)
	}
}

func (c *session) stopAll() {
	c.pmu.Lock()
	handles := make([]playback.Handle, 0, len(c.plays))
	for _, h := range c.plays {
		handles = append(handles, h)
	}
	c.plays = make(map[string]playback.Handle)
	c.pmu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

// write sends one frame, serialising against concurrent playback events
// and notices targeting the same connection.
func (c *session) write(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("api: marshal frame: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.Write(wctx, websocket.MessageText, data)
}

func (c *session) reply(ctx context.Context, f Frame) {
	if err := c.write(ctx, f); err != nil {
		c.srv.log.Debug("reply dropped", "id", f.ID, "err", err)
	}
}

func (c *session) dispatch(ctx context.Context, cmd Command) {
	f := Frame{ID: cmd.ID, Type: FrameResult}

	switch cmd.Op {
	case OpStartRecording:
		c.finish(ctx, f, c.startRecording(ctx, cmd))
	case OpStopRecording:
		c.finish(ctx, f, c.srv.rec.Stop(ctx))
	case OpCaptureState:
		f.OK = true
		f.State = c.srv.rec.State().String()
		c.reply(ctx, f)
	case OpPlayRecording:
		c.playRecording(ctx, cmd)
	case OpStopPlayback:
		c.finish(ctx, f, c.stopPlayback(cmd))
	case OpRecordingExists:
		f.OK = true
		f.Exists = c.srv.store.RecordingExists(ctx, cmd.Key)
		c.reply(ctx, f)
	case OpDeleteRecording:
		c.finish(ctx, f, c.srv.store.DeleteRecording(ctx, cmd.Key))
	case OpSaveText:
		c.finish(ctx, f, c.saveText(ctx, cmd))
	case OpGetText:
		c.getText(ctx, cmd)
	case OpDeleteText:
		c.finish(ctx, f, c.deleteText(ctx, cmd))
	case OpSaveReview:
		c.finish(ctx, f, c.saveReview(cmd))
	case OpGetReviews:
		c.getReviews(ctx, cmd)
	default:
		f.Error = fmt.Sprintf("unknown command %q", cmd.Op)
		c.reply(ctx, f)
	}
}

// finish sends the result frame for a command whose outcome is just an
// error or its absence.
func (c *session) finish(ctx context.Context, f Frame, err error) {
	if err != nil {
		f.Error = err.Error()
		f.NotFound = errors.Is(err, storage.ErrNotFound)
	} else {
		f.OK = true
	}
	c.reply(ctx, f)
}

func (c *session) startRecording(ctx context.Context, cmd Command) error {
	if cmd.Key == "" {
		return errors.New("start-recording requires a key")
	}
	return c.srv.rec.Start(ctx, cmd.Key)
}

// playRecording starts playback and replies immediately; lifecycle
// events follow as separate frames carrying the same ID. The background
// context keeps the audio running if the request context winds down
// first; disconnect cleanup still stops it through the handle.
func (c *session) playRecording(ctx context.Context, cmd Command) {
	if cmd.Key == "" {
		c.reply(ctx, Frame{ID: cmd.ID, Type: FrameResult, Error: "play-recording requires a key"})
		return
	}

	id := cmd.ID
	c.srv.player.Play(context.Background(), cmd.Key, playback.Events{
		Started: func(h playback.Handle) {
			c.pmu.Lock()
			c.plays[id] = h
			c.pmu.Unlock()
			c.reply(ctx, Frame{ID: id, Type: FramePlayback, Event: EventStarted})
		},
		Failed: func(err error) {
			c.reply(ctx, Frame{
				ID:       id,
				Type:     FramePlayback,
				Event:    EventFailed,
				Error:    err.Error(),
				NotFound: errors.Is(err, playback.ErrNotFound),
			})
		},
		Ended: func() {
			c.pmu.Lock()
			delete(c.plays, id)
			c.pmu.Unlock()
			c.reply(ctx, Frame{ID: id, Type: FramePlayback, Event: EventEnded})
		},
	})

	c.reply(ctx, Frame{ID: id, Type: FrameResult, OK: true})
}

func (c *session) stopPlayback(cmd Command) error {
	c.pmu.Lock()
	h, ok := c.plays[cmd.Ref]
	c.pmu.Unlock()
	if !ok {
		// Already ended or never started; stopping is best-effort.
		return nil
	}
	h.Stop()
	return nil
}

// textCollection maps the wire collection name onto a text store
// collection, rejecting the recordings collection for text commands.
func textCollection(name string) (storage.Collection, error) {
	col := storage.Collection(name)
	if !col.IsValid() || col == storage.Recordings {
		return "", fmt.Errorf("invalid text collection %q", name)
	}
	return col, nil
}

func (c *session) saveText(ctx context.Context, cmd Command) error {
	col, err := textCollection(cmd.Collection)
	if err != nil {
		return err
	}
	return c.srv.store.SaveText(ctx, col, storage.Text{ID: cmd.Key, Value: cmd.Text})
}

func (c *session) getText(ctx context.Context, cmd Command) {
	f := Frame{ID: cmd.ID, Type: FrameResult}

	col, err := textCollection(cmd.Collection)
	if err != nil {
		f.Error = err.Error()
		c.reply(ctx, f)
		return
	}

	txt, err := c.srv.store.GetText(ctx, col, cmd.Key)
	if err != nil {
		f.Error = err.Error()
		f.NotFound = errors.Is(err, storage.ErrNotFound)
		c.reply(ctx, f)
		return
	}
	f.OK = true
	f.Text = txt.Value
	c.reply(ctx, f)
}

func (c *session) deleteText(ctx context.Context, cmd Command) error {
	col, err := textCollection(cmd.Collection)
	if err != nil {
		return err
	}
	return c.srv.store.DeleteText(ctx, col, cmd.Key)
}

func (c *session) saveReview(cmd Command) error {
	if c.srv.reviews == nil {
		return errors.New("reviews are not enabled")
	}
	if cmd.Review == nil {
		return errors.New("save-review requires a review payload")
	}
	return c.srv.reviews.Save(cmd.Key, review.Entry{
		RecordingKey: cmd.Key,
		Rating:       cmd.Review.Rating,
		Intelligible: cmd.Review.Intelligible,
		Comments:     cmd.Review.Comments,
	})
}

func (c *session) getReviews(ctx context.Context, cmd Command) {
	f := Frame{ID: cmd.ID, Type: FrameResult}

	if c.srv.reviews == nil {
		f.Error = "reviews are not enabled"
		c.reply(ctx, f)
		return
	}

	entries, err := c.srv.reviews.ForKey(cmd.Key)
	if err != nil {
		f.Error = err.Error()
		c.reply(ctx, f)
		return
	}

	f.OK = true
	f.Reviews = make([]ReviewEntry, 0, len(entries))
	for _, e := range entries {
		f.Reviews = append(f.Reviews, ReviewEntry{
			Timestamp:    e.Timestamp.Format(time.RFC3339),
			Rating:       e.Rating,
			Intelligible: e.Intelligible,
			Comments:     e.Comments,
		})
	}
	c.reply(ctx, f)
}
