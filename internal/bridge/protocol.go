// Package bridge defines the message-passing protocol between the app
// backend and the privileged desktop host process that owns the recording
// folder on disk.
//
// Every storage operation is one request/response round trip over a local
// websocket connection. Messages are JSON text frames; binary payloads
// ride inside them base64-encoded, the same way audio chunks travel over
// the realtime provider links. Requests carry a unique ID so responses can
// be correlated when calls interleave on one connection.
package bridge

// MaxMessageBytes is the frame size cap both ends of the bridge apply.
// Recordings travel base64-encoded inside one frame, so the cap has to
// hold minutes of PCM audio plus the encoding overhead, far above the
// websocket default.
const MaxMessageBytes = 64 << 20

// Op names a host-side storage operation.
type Op string

const (
	OpSaveRecording   Op = "save-recording"
	OpCheckRecording  Op = "check-recording-exists"
	OpPlayRecording   Op = "play-recording"
	OpDeleteRecording Op = "delete-recording"
	OpSaveText        Op = "save-text"
	OpGetText         Op = "get-text"
	OpDeleteText      Op = "delete-text"
)

// IsValid reports whether o is a recognised operation.
func (o Op) IsValid() bool {
	switch o {
	case OpSaveRecording, OpCheckRecording, OpPlayRecording, OpDeleteRecording,
		OpSaveText, OpGetText, OpDeleteText:
		return true
	}
	return false
}

// Request is one storage call crossing the process boundary.
type Request struct {
	// ID correlates the response; unique per in-flight request.
	ID string `json:"id"`

	// Op selects the host operation.
	Op Op `json:"op"`

	// Key is the recording or text key the operation addresses.
	Key string `json:"key"`

	// Collection is the text collection for text operations.
	Collection string `json:"collection,omitempty"`

	// MimeType accompanies save-recording payloads.
	MimeType string `json:"mimeType,omitempty"`

	// Data is the raw audio payload for save-recording
	// (base64 on the wire via JSON encoding).
	Data []byte `json:"data,omitempty"`

	// Text is the note body for save-text.
	Text string `json:"text,omitempty"`
}

// Response answers one Request. Exactly one response is sent per request,
// and only after the operation has completed on disk — a confirmed save
// means the bytes were written and renamed into place.
type Response struct {
	// ID echoes the request ID.
	ID string `json:"id"`

	// OK reports operation success.
	OK bool `json:"ok"`

	// Error describes the failure when OK is false.
	Error string `json:"error,omitempty"`

	// NotFound distinguishes a missing key from an I/O failure.
	NotFound bool `json:"notFound,omitempty"`

	// Exists answers check-recording-exists.
	Exists bool `json:"exists,omitempty"`

	// Data carries the audio payload for play-recording.
	Data []byte `json:"data,omitempty"`

	// MimeType accompanies Data.
	MimeType string `json:"mimeType,omitempty"`

	// Text carries the note body for get-text.
	Text string `json:"text,omitempty"`
}
