package store

import (
	"context"
	"testing"
	"time"

	"github.com/xiaot623/tailstream/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreateChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat, err := s.GetOrCreateChat(ctx, "c1", "u1")
	if err != nil {
		t.Fatalf("GetOrCreateChat failed: %v", err)
	}
	if chat.ChatID != "c1" || chat.UserID != "u1" {
		t.Fatalf("unexpected chat: %+v", chat)
	}

	// Second call returns the existing row.
	again, err := s.GetOrCreateChat(ctx, "c1", "other")
	if err != nil {
		t.Fatalf("GetOrCreateChat failed: %v", err)
	}
	if again.UserID != "u1" {
		t.Fatalf("expected existing chat, got %+v", again)
	}
}

func TestGetChatMissing(t *testing.T) {
	s := newTestStore(t)

	chat, err := s.GetChat(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if chat != nil {
		t.Fatalf("expected nil chat, got %+v", chat)
	}
}

func TestActiveStreamPointer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreateChat(ctx, "c1", "u1"); err != nil {
		t.Fatalf("GetOrCreateChat failed: %v", err)
	}

	if err := s.SetActiveStream(ctx, "c1", "stream_1"); err != nil {
		t.Fatalf("SetActiveStream failed: %v", err)
	}
	chat, err := s.GetChat(ctx, "c1")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if chat.ActiveStreamID != "stream_1" {
		t.Fatalf("expected active stream pointer, got %q", chat.ActiveStreamID)
	}

	// Clearing with empty string nulls the column.
	if err := s.SetActiveStream(ctx, "c1", ""); err != nil {
		t.Fatalf("SetActiveStream failed: %v", err)
	}
	chat, err = s.GetChat(ctx, "c1")
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if chat.ActiveStreamID != "" {
		t.Fatalf("expected cleared pointer, got %q", chat.ActiveStreamID)
	}
}

func TestUpsertMessageIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreateChat(ctx, "c1", "u1"); err != nil {
		t.Fatalf("GetOrCreateChat failed: %v", err)
	}

	msg := &domain.Message{
		MessageID: "m1",
		ChatID:    "c1",
		Role:      domain.RoleAssistant,
		Content:   "partial",
		CreatedAt: time.Now(),
	}
	if err := s.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("UpsertMessage failed: %v", err)
	}

	// A retried producer writes the same id again with final content.
	msg.Content = "final"
	msg.Reasoning = "thought about it"
	if err := s.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("UpsertMessage failed: %v", err)
	}

	messages, err := s.GetMessages(ctx, "c1", 0, "")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected one message, got %d", len(messages))
	}
	if messages[0].Content != "final" || messages[0].Reasoning != "thought about it" {
		t.Fatalf("unexpected message: %+v", messages[0])
	}
}

func TestGetMessagesOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreateChat(ctx, "c1", "u1"); err != nil {
		t.Fatalf("GetOrCreateChat failed: %v", err)
	}

	base := time.Now()
	for i := 0; i < 3; i++ {
		msg := &domain.Message{
			MessageID: "m" + string(rune('1'+i)),
			ChatID:    "c1",
			Role:      domain.RoleUser,
			Content:   "hello",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.UpsertMessage(ctx, msg); err != nil {
			t.Fatalf("UpsertMessage failed: %v", err)
		}
	}

	messages, err := s.GetMessages(ctx, "c1", 2, "")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].MessageID != "m1" || messages[1].MessageID != "m2" {
		t.Fatalf("unexpected order: %+v", messages)
	}
}
