package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/tailstream/internal/adapter/llm"
	"github.com/xiaot623/tailstream/internal/config"
	"github.com/xiaot623/tailstream/internal/domain"
	"github.com/xiaot623/tailstream/internal/policy"
	store "github.com/xiaot623/tailstream/internal/repository"
	"github.com/xiaot623/tailstream/internal/streamlog"
)

func testConfig() *config.Config {
	return &config.Config{
		GenerationTimeout: 5 * time.Second,
	}
}

func newTestService(t *testing.T, source llm.TokenSource) (*Service, store.Store, streamlog.Log) {
	t.Helper()

	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	slog := streamlog.NewRedisLog(client, streamlog.DefaultTTLs())

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	return New(db, slog, source, nil, engine, testConfig()), db, slog
}

// waitForIdle waits until the chat has no registered producer.
func waitForIdle(t *testing.T, s *Service, chatID string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.producerCancel(chatID); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("producer did not finish")
}

func TestSendMessageHappyPath(t *testing.T) {
	s, db, slog := newTestService(t, llm.NewMockSource())
	ctx := context.Background()

	resp, err := s.SendMessage(ctx, domain.SendMessageRequest{
		ChatID:  "c1",
		UserID:  "u1",
		Content: "hello there",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.MessageID)
	require.NotEmpty(t, resp.StreamID)

	waitForIdle(t, s, "c1")

	// Final message persisted exactly once, keyed by the pre-assigned id.
	messages, err := db.GetMessages(ctx, "c1", 0, "")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, domain.RoleAssistant, messages[1].Role)
	assert.Equal(t, resp.MessageID, messages[1].MessageID)
	assert.Contains(t, messages[1].Content, "hello there")

	// Active stream pointer cleared.
	chat, err := db.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, chat.ActiveStreamID)

	// Stream log reached the completed state with the full text.
	meta, err := slog.GetMeta(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, domain.StreamStatusCompleted, meta.Status)

	tokens, err := slog.Read(ctx, "c1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, tokens)
	assert.Equal(t, domain.TokenKindDone, tokens[len(tokens)-1].Kind)
}

func TestSendMessageRateLimitedWhileStreaming(t *testing.T) {
	slow := llm.NewMockSource()
	slow.ChunkDelay = 50 * time.Millisecond
	s, _, _ := newTestService(t, slow)
	ctx := context.Background()

	_, err := s.SendMessage(ctx, domain.SendMessageRequest{
		ChatID: "c1", UserID: "u1", Content: "first",
	})
	require.NoError(t, err)

	// A second send while the first stream is live gets the typed error.
	_, err = s.SendMessage(ctx, domain.SendMessageRequest{
		ChatID: "c1", UserID: "u1", Content: "second",
	})
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	s.CancelStream("c1")
	waitForIdle(t, s, "c1")
}

func TestSendMessageBlockedOnEmptyContent(t *testing.T) {
	s, _, _ := newTestService(t, llm.NewMockSource())

	_, err := s.SendMessage(context.Background(), domain.SendMessageRequest{
		ChatID: "c1", UserID: "u1", Content: "",
	})
	assert.ErrorIs(t, err, domain.ErrBlocked)
}

func TestCancelStreamRecordsInterruption(t *testing.T) {
	slow := llm.NewMockSource()
	slow.ChunkDelay = 50 * time.Millisecond
	s, db, slog := newTestService(t, slow)
	ctx := context.Background()

	_, err := s.SendMessage(ctx, domain.SendMessageRequest{
		ChatID: "c1", UserID: "u1", Content: "take your time",
	})
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	assert.True(t, s.CancelStream("c1"))
	waitForIdle(t, s, "c1")

	meta, err := slog.GetMeta(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, domain.StreamStatusError, meta.Status)
	assert.Equal(t, "generation cancelled", meta.Error)

	// No assistant message is persisted for an aborted stream.
	messages, err := db.GetMessages(ctx, "c1", 0, "")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.RoleUser, messages[0].Role)

	// Pointer cleared on the error path too.
	chat, err := db.GetChat(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, chat.ActiveStreamID)

	// Cancelling again is a no-op.
	assert.False(t, s.CancelStream("c1"))
}

type failingSource struct{}

func (failingSource) Stream(ctx context.Context, req *llm.Request, cb llm.DeltaCallback) error {
	if err := cb(llm.Delta{Text: "par"}); err != nil {
		return err
	}
	return errors.New("upstream exploded: secret internals at 10.0.0.3")
}

func TestProducerFailureIsTerse(t *testing.T) {
	s, _, slog := newTestService(t, failingSource{})
	ctx := context.Background()

	_, err := s.SendMessage(ctx, domain.SendMessageRequest{
		ChatID: "c1", UserID: "u1", Content: "hi",
	})
	require.NoError(t, err)
	waitForIdle(t, s, "c1")

	meta, err := slog.GetMeta(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, domain.StreamStatusError, meta.Status)
	// Upstream internals never reach the payload.
	assert.Equal(t, "generation failed", meta.Error)

	tokens, err := slog.Read(ctx, "c1", 0)
	require.NoError(t, err)
	last := tokens[len(tokens)-1]
	assert.Equal(t, domain.TokenKindError, last.Kind)
	assert.Equal(t, "generation failed", last.Text)
}

func TestGetJobStatusAccumulatesLog(t *testing.T) {
	s, _, _ := newTestService(t, llm.NewMockSource())
	ctx := context.Background()

	resp, err := s.SendMessage(ctx, domain.SendMessageRequest{
		ChatID: "c1", UserID: "u1", Content: "hello",
		Options: domain.GenerationOptions{ReasoningEffort: "low"},
	})
	require.NoError(t, err)
	waitForIdle(t, s, "c1")

	status, err := s.GetJobStatus(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, domain.StreamStatusCompleted, status.Status)
	assert.Equal(t, resp.MessageID, status.MessageID)
	assert.Contains(t, status.Content, "hello")
	assert.NotEmpty(t, status.Reasoning)
}

func TestGetJobStatusNilWhenNoStream(t *testing.T) {
	s, _, _ := newTestService(t, llm.NewMockSource())

	status, err := s.GetJobStatus(context.Background(), "never-streamed")
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestSendMessageDegradesWithoutLogBackend(t *testing.T) {
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	slog := streamlog.NewRedisLog(nil, streamlog.DefaultTTLs())
	s := New(db, slog, llm.NewMockSource(), nil, engine, testConfig())
	ctx := context.Background()

	resp, err := s.SendMessage(ctx, domain.SendMessageRequest{
		ChatID: "c1", UserID: "u1", Content: "no redis today",
	})
	require.NoError(t, err)
	waitForIdle(t, s, "c1")

	// No resumable tail, but the durable path still completes.
	messages, err := db.GetMessages(ctx, "c1", 0, "")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, resp.MessageID, messages[1].MessageID)

	status, err := s.GetJobStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, status)
}
