package model

import "errors"

// Essay lifecycle statuses. Transitions per processing attempt are
// pending -> processing -> completed|error; an explicit re-trigger moves
// completed or error back to processing.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// DefaultTitle is used when an essay is created without a title.
const DefaultTitle = "Untitled Essay"

var (
	// ErrNotFound marks an unknown essay id or missing audio file.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks a request rejected before anything was persisted.
	ErrValidation = errors.New("validation failed")
)

// Essay is a record in the remote store's essays collection.
// Field names follow the collection schema, so records round-trip
// through the store API unchanged.
type Essay struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	VoiceID     string `json:"voiceId"`
	Status      string `json:"status"`
	AudioFileID string `json:"audio_file_id"`
	Created     string `json:"created"`
	Updated     string `json:"updated"`

	// AudioURL is filled in by the HTTP layer for completed essays.
	// It is never stored.
	AudioURL string `json:"audioUrl,omitempty"`
}

// HasAudio reports whether the essay has a playable audio file.
func (e *Essay) HasAudio() bool {
	return e.AudioFileID != "" && e.Status == StatusCompleted
}
