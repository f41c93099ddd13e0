package domain

import "time"

// Message is a durably persisted chat message. Once a stream finishes this is
// the source of truth for the assistant's reply.
type Message struct {
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Reasoning string    `json:"reasoning,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat is a conversation owned by a user. ActiveStreamID points at the
// in-flight stream, if any; it is cleared by the producer on completion.
type Chat struct {
	ChatID         string    `json:"chat_id"`
	UserID         string    `json:"user_id"`
	ActiveStreamID string    `json:"active_stream_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
