package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/tailstream/internal/domain"
)

// GetMessages returns the chat's persisted messages.
func (s *Service) GetMessages(ctx context.Context, chatID string, limit int, before string) ([]domain.Message, error) {
	messages, err := s.store.GetMessages(ctx, chatID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// GetJobStatus returns a snapshot of the chat's active generation job, or nil
// when no job is known. The snapshot's content is accumulated from the stream
// log, so a client that missed every live frame still sees the full text.
func (s *Service) GetJobStatus(ctx context.Context, chatID string) (*domain.JobStatus, error) {
	meta, err := s.log.GetMeta(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream meta: %w", err)
	}
	if meta == nil {
		return nil, nil
	}

	tokens, err := s.log.Read(ctx, chatID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream log: %w", err)
	}

	var content, reasoning strings.Builder
	for _, tok := range tokens {
		switch tok.Kind {
		case domain.TokenKindText:
			content.WriteString(tok.Text)
		case domain.TokenKindReasoning:
			reasoning.WriteString(tok.Text)
		}
	}

	return &domain.JobStatus{
		Status:    meta.Status,
		Content:   content.String(),
		Reasoning: reasoning.String(),
		MessageID: meta.MessageID,
	}, nil
}
