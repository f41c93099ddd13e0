package domain

import "time"

// StreamToken is one unit of incremental output. Tokens are immutable once
// appended; ID is assigned by the log and increases monotonically within a
// stream, which makes it usable as a resume cursor.
type StreamToken struct {
	ID   int64     `json:"id"`
	Text string    `json:"text"`
	Kind TokenKind `json:"type"`
	Ts   int64     `json:"ts"` // Unix milliseconds
}

// StreamMeta is the lifecycle record for one stream. It is created at stream
// init and mutated only by the producer on completion/error.
type StreamMeta struct {
	Status      StreamStatus `json:"status"`
	ChatID      string       `json:"chat_id"`
	UserID      string       `json:"user_id"`
	MessageID   string       `json:"message_id"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// JobStatus is a snapshot of the chat's currently active generation job.
// A nil JobStatus means no job is active for the chat.
type JobStatus struct {
	Status    StreamStatus `json:"status"`
	Content   string       `json:"content"`
	Reasoning string       `json:"reasoning,omitempty"`
	MessageID string       `json:"message_id"`
}
