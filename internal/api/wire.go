package api

// Op names a frontend command.
type Op string

const (
	OpStartRecording  Op = "start-recording"
	OpStopRecording   Op = "stop-recording"
	OpCaptureState    Op = "capture-state"
	OpPlayRecording   Op = "play-recording"
	OpStopPlayback    Op = "stop-playback"
	OpRecordingExists Op = "recording-exists"
	OpDeleteRecording Op = "delete-recording"
	OpSaveText        Op = "save-text"
	OpGetText         Op = "get-text"
	OpDeleteText      Op = "delete-text"
	OpSaveReview      Op = "save-review"
	OpGetReviews      Op = "get-reviews"
)

// IsValid reports whether o is a recognised command.
func (o Op) IsValid() bool {
	switch o {
	case OpStartRecording, OpStopRecording, OpCaptureState,
		OpPlayRecording, OpStopPlayback, OpRecordingExists, OpDeleteRecording,
		OpSaveText, OpGetText, OpDeleteText,
		OpSaveReview, OpGetReviews:
		return true
	}
	return false
}

// Command is one request frame from a frontend.
type Command struct {
	// ID correlates the result frame; unique per connection while the
	// command (and any playback it started) is in flight.
	ID string `json:"id"`

	// Op selects the command.
	Op Op `json:"op"`

	// Key is the recording or text key the command addresses.
	Key string `json:"key,omitempty"`

	// Collection is the text collection for text commands.
	Collection string `json:"collection,omitempty"`

	// Text is the note body for save-text.
	Text string `json:"text,omitempty"`

	// Ref is the ID of the play-recording command to stop.
	Ref string `json:"ref,omitempty"`

	// Review is the payload for save-review.
	Review *ReviewPayload `json:"review,omitempty"`
}

// ReviewPayload is the save-review body.
type ReviewPayload struct {
	Rating       int    `json:"rating"`
	Intelligible bool   `json:"intelligible"`
	Comments     string `json:"comments,omitempty"`
}

// FrameType discriminates server-to-frontend frames.
type FrameType string

const (
	// FrameResult answers one command; exactly one per command.
	FrameResult FrameType = "result"

	// FramePlayback reports a playback lifecycle event for an earlier
	// play-recording command.
	FramePlayback FrameType = "playback"

	// FrameNotice is an unsolicited user-facing notice (toast).
	FrameNotice FrameType = "notice"
)

// Playback event names carried in [Frame.Event].
const (
	EventStarted = "started"
	EventFailed  = "failed"
	EventEnded   = "ended"
)

// Frame is one server-to-frontend message.
type Frame struct {
	// ID echoes the originating command ID. Empty for notices.
	ID string `json:"id,omitempty"`

	// Type selects which of the remaining fields are meaningful.
	Type FrameType `json:"type"`

	// OK reports command success on result frames.
	OK bool `json:"ok,omitempty"`

	// Error describes the failure when OK is false, or accompanies a
	// "failed" playback event.
	Error string `json:"error,omitempty"`

	// NotFound distinguishes a missing key from an I/O failure.
	NotFound bool `json:"notFound,omitempty"`

	// Exists answers recording-exists.
	Exists bool `json:"exists,omitempty"`

	// Text carries the note body for get-text.
	Text string `json:"text,omitempty"`

	// State carries the capture state for capture-state.
	State string `json:"state,omitempty"`

	// Reviews carries the entries for get-reviews.
	Reviews []ReviewEntry `json:"reviews,omitempty"`

	// Event is the playback lifecycle event name.
	Event string `json:"event,omitempty"`

	// Level and Message carry notices.
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
}

// ReviewEntry is one stored self-review mark as returned by get-reviews.
type ReviewEntry struct {
	Timestamp    string `json:"timestamp"`
	Rating       int    `json:"rating"`
	Intelligible bool   `json:"intelligible"`
	Comments     string `json:"comments,omitempty"`
}
