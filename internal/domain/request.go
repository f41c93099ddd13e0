package domain

import "errors"

// GenerationOptions are the caller-supplied knobs for one generation.
type GenerationOptions struct {
	Model           string `json:"model,omitempty"`
	Provider        string `json:"provider,omitempty"`
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
	EnableWebSearch bool   `json:"enable_web_search,omitempty"`
	MaxSteps        int    `json:"max_steps,omitempty"`
}

// SendMessageRequest starts a generation job for a chat.
type SendMessageRequest struct {
	ChatID  string            `json:"chat_id"`
	UserID  string            `json:"user_id"`
	Content string            `json:"content"`
	Options GenerationOptions `json:"options"`
}

// SendMessageResponse identifies the job the send created.
type SendMessageResponse struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	StreamID  string `json:"stream_id"`
}

// Typed send-path errors. Transports map these to status codes and clients
// use them to distinguish rate-limit failures from generic ones.
var (
	ErrRateLimited = errors.New("too many active streams")
	ErrBlocked     = errors.New("request blocked by policy")

	// ErrGenerationFailed stands in for a job that ended in the error
	// state; the upstream failure text is never exposed.
	ErrGenerationFailed = errors.New("generation failed")
)
