// Package domain defines the core domain models for the streaming pipeline.
package domain

// StreamStatus represents the lifecycle state of a stream.
type StreamStatus string

const (
	StreamStatusStreaming StreamStatus = "streaming"
	StreamStatusCompleted StreamStatus = "completed"
	StreamStatusError     StreamStatus = "error"
)

// IsTerminal reports whether the status is a terminal state.
// A stream in a terminal state never transitions back to streaming.
func (s StreamStatus) IsTerminal() bool {
	return s == StreamStatusCompleted || s == StreamStatusError
}

// TokenKind represents the kind of a stream token.
type TokenKind string

const (
	TokenKindText      TokenKind = "text"
	TokenKindReasoning TokenKind = "reasoning"
	TokenKindDone      TokenKind = "done"
	TokenKindError     TokenKind = "error"
)

// Role represents the author of a persisted message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)
