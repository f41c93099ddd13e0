package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/tailstream/internal/adapter/llm"
	"github.com/xiaot623/tailstream/internal/domain"
	"github.com/xiaot623/tailstream/internal/policy"
)

// SendMessage persists the user's message and starts a generation job for the
// chat. The producer runs as an independent background task: killing the
// client connection does not kill it.
func (s *Service) SendMessage(ctx context.Context, req domain.SendMessageRequest) (*domain.SendMessageResponse, error) {
	if req.ChatID == "" {
		return nil, fmt.Errorf("chat_id is required")
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	chat, err := s.store.GetOrCreateChat(ctx, req.ChatID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create chat: %w", err)
	}

	if err := s.admit(ctx, chat, req); err != nil {
		return nil, err
	}

	now := time.Now()
	userMsg := &domain.Message{
		MessageID: "msg_" + uuid.New().String()[:8],
		ChatID:    chat.ChatID,
		Role:      domain.RoleUser,
		Content:   req.Content,
		CreatedAt: now,
	}
	if err := s.store.UpsertMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	messageID := "msg_" + uuid.New().String()[:8]
	streamID := "stream_" + uuid.New().String()[:8]

	if err := s.log.Init(ctx, chat.ChatID, req.UserID, messageID); err != nil {
		log.Printf("ERROR: failed to init stream log: %v", err)
		// Not fatal: generation proceeds without a resumable tail.
	}
	if err := s.store.SetActiveStream(ctx, chat.ChatID, streamID); err != nil {
		log.Printf("ERROR: failed to set active stream pointer: %v", err)
	}

	history, err := s.store.GetMessages(ctx, chat.ChatID, 50, "")
	if err != nil {
		log.Printf("WARN: failed to load history: %v", err)
		history = []domain.Message{*userMsg}
	}

	go s.produce(chat.ChatID, messageID, history, req.Options)

	return &domain.SendMessageResponse{
		ChatID:    chat.ChatID,
		MessageID: messageID,
		StreamID:  streamID,
	}, nil
}

// admit runs the send-admission policy and maps its decision to the typed
// error taxonomy.
func (s *Service) admit(ctx context.Context, chat *domain.Chat, req domain.SendMessageRequest) error {
	if s.policyEngine == nil {
		if strings.TrimSpace(req.Content) == "" {
			return domain.ErrBlocked
		}
		return nil
	}

	activeStreams := 0
	if s.log.HasActiveStream(ctx, chat.ChatID) {
		activeStreams = 1
	}
	decision, err := s.policyEngine.Evaluate(ctx, policy.Input{
		UserID:        req.UserID,
		ContentLength: len(req.Content),
		ActiveStreams: activeStreams,
	})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	switch decision {
	case policy.DecisionRateLimit:
		return domain.ErrRateLimited
	case policy.DecisionBlock:
		return domain.ErrBlocked
	}
	return nil
}

// produce drives the token source for one stream: append every delta to the
// log, accumulate the full text locally, and perform exactly one terminal
// transition. It owns all StreamMeta transitions for its stream.
func (s *Service) produce(chatID, messageID string, history []domain.Message, opts domain.GenerationOptions) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.GenerationTimeout)
	defer cancel()

	s.registerProducer(chatID, cancel)
	defer s.unregisterProducer(chatID)

	var content, reasoning strings.Builder

	publish := func(status domain.StreamStatus) {
		if s.hub == nil {
			return
		}
		s.hub.Publish(chatID, domain.JobStatus{
			Status:    status,
			Content:   content.String(),
			Reasoning: reasoning.String(),
			MessageID: messageID,
		})
	}

	err := s.source.Stream(ctx, &llm.Request{Messages: history, Options: opts}, func(delta llm.Delta) error {
		if delta.Text != "" {
			if _, err := s.log.Append(ctx, chatID, delta.Text, domain.TokenKindText); err != nil {
				log.Printf("ERROR: failed to append text token: %v", err)
			}
			content.WriteString(delta.Text)
		}
		if delta.Reasoning != "" {
			if _, err := s.log.Append(ctx, chatID, delta.Reasoning, domain.TokenKindReasoning); err != nil {
				log.Printf("ERROR: failed to append reasoning token: %v", err)
			}
			reasoning.WriteString(delta.Reasoning)
		}
		publish(domain.StreamStatusStreaming)
		return nil
	})

	// Terminal bookkeeping runs on a fresh context: the producer's own ctx
	// may already be cancelled or past its deadline.
	finishCtx, finishCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer finishCancel()

	if err != nil {
		msg := terseError(err)
		log.Printf("ERROR: generation failed for chat %s: %v", chatID, err)

		if lerr := s.log.Error(finishCtx, chatID, msg); lerr != nil {
			log.Printf("ERROR: failed to record stream error: %v", lerr)
		}
		s.clearPointer(chatID)
		publish(domain.StreamStatusError)
		return
	}

	if cerr := s.log.Complete(finishCtx, chatID); cerr != nil {
		log.Printf("ERROR: failed to complete stream: %v", cerr)
	}

	// The durable write is an upsert keyed by message id, so a re-entered
	// producer for the same message cannot duplicate it.
	assistantMsg := &domain.Message{
		MessageID: messageID,
		ChatID:    chatID,
		Role:      domain.RoleAssistant,
		Content:   content.String(),
		Reasoning: reasoning.String(),
		CreatedAt: time.Now(),
	}
	if err := s.store.UpsertMessage(finishCtx, assistantMsg); err != nil {
		log.Printf("ERROR: failed to save assistant message: %v", err)
	}

	s.clearPointer(chatID)
	publish(domain.StreamStatusCompleted)
}

// clearPointer removes the chat's active stream pointer so a later page load
// does not believe a stream is still running.
func (s *Service) clearPointer(chatID string) {
	if err := s.store.SetActiveStream(context.Background(), chatID, ""); err != nil {
		log.Printf("ERROR: failed to clear active stream pointer: %v", err)
	}
}

// terseError maps producer failures to short human-readable messages.
// Upstream error internals never reach the error payload.
func terseError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "generation cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "generation timed out"
	default:
		return "generation failed"
	}
}

// CancelStream aborts the chat's running producer, if any. The producer
// observes the cancellation and records the interrupted terminal state; a
// chat without an active producer is a no-op.
func (s *Service) CancelStream(chatID string) bool {
	cancel, ok := s.producerCancel(chatID)
	if !ok {
		return false
	}
	cancel()
	return true
}
