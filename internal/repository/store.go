// Package store defines the durable storage interface and its SQLite
// implementation. The durable store is the source of truth for a message once
// its stream has finished.
package store

import (
	"context"

	"github.com/xiaot623/tailstream/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Chat operations
	CreateChat(ctx context.Context, chat *domain.Chat) error
	GetChat(ctx context.Context, chatID string) (*domain.Chat, error)
	GetOrCreateChat(ctx context.Context, chatID, userID string) (*domain.Chat, error)

	// SetActiveStream sets or clears (streamID == "") the chat's active
	// stream pointer.
	SetActiveStream(ctx context.Context, chatID, streamID string) error

	// Message operations. UpsertMessage is keyed by message id so a
	// re-entered producer writes the final message exactly once.
	UpsertMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, chatID string, limit int, before string) ([]domain.Message, error)

	Close() error
}
