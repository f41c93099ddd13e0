// Package streamlog provides the ephemeral append-only token log that carries
// tokens from the producer to tailing readers, plus the sidecar lifecycle
// record for each stream.
package streamlog

import (
	"context"

	"github.com/xiaot623/tailstream/internal/domain"
)

// Log is the stream log store contract. Multiple readers may tail the same
// log concurrently; only the stream's own producer appends.
//
// All operations degrade to no-ops / empty reads when the backing store is
// unconfigured, so the pipeline falls back to durable-store polling instead
// of failing hard.
type Log interface {
	// Init creates the stream's lifecycle record in the streaming state and
	// clears any previous log for the chat.
	Init(ctx context.Context, chatID, userID, messageID string) error

	// Append appends one token and returns its log-assigned id. The log's
	// TTL slides forward on every append.
	Append(ctx context.Context, chatID, text string, kind domain.TokenKind) (int64, error)

	// Complete appends a terminal done token and flips the lifecycle record
	// to completed. A terminal status is never reverted.
	Complete(ctx context.Context, chatID string) error

	// Error appends a terminal error token carrying msg and flips the
	// lifecycle record to error. A terminal status is never reverted.
	Error(ctx context.Context, chatID, msg string) error

	// Read returns all tokens with id strictly greater than fromID, in log
	// order. This is the resume primitive.
	Read(ctx context.Context, chatID string, fromID int64) ([]domain.StreamToken, error)

	// GetMeta returns the stream's lifecycle record, or nil if absent or
	// unparseable.
	GetMeta(ctx context.Context, chatID string) (*domain.StreamMeta, error)

	// HasActiveStream reports whether the chat has a stream in the
	// streaming state.
	HasActiveStream(ctx context.Context, chatID string) bool
}
