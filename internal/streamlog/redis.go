package streamlog

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiaot623/tailstream/internal/domain"
)

// TTLs holds the two independent expiry policies: the log's sliding window,
// refreshed on every append, and the meta record's fixed expiry set at
// terminal-state time.
type TTLs struct {
	// Stream is the generation-scoped TTL for the log and the streaming-state
	// meta record.
	Stream time.Duration
	// Completed is the meta TTL after a successful completion, kept long
	// enough for late readers.
	Completed time.Duration
	// Error is the meta TTL after a failure. Error payloads should not
	// linger; the log's TTL is shortened to this window too.
	Error time.Duration
}

// DefaultTTLs matches the documented windows: an hour while streaming, a
// shorter tail for late readers on success, a minute on error.
func DefaultTTLs() TTLs {
	return TTLs{
		Stream:    time.Hour,
		Completed: 15 * time.Minute,
		Error:     time.Minute,
	}
}

// RedisLog implements Log on a Redis list plus a JSON meta record:
//
//	chat:<chatId>:stream  RPUSH'd {text,type,ts} entries, sliding TTL
//	chat:<chatId>:meta    JSON StreamMeta, fixed TTL per lifecycle state
//
// Token ids are the 1-based list positions returned by RPUSH, so Read is a
// plain LRANGE from the caller's cursor.
//
// A nil client is a valid configuration: every operation becomes a no-op or
// an empty read so the rest of the pipeline keeps working without resume.
type RedisLog struct {
	client *redis.Client
	ttl    TTLs
}

// NewRedisLog creates a log store on the given client. client may be nil.
func NewRedisLog(client *redis.Client, ttl TTLs) *RedisLog {
	return &RedisLog{client: client, ttl: ttl}
}

var _ Log = (*RedisLog)(nil)

func streamKey(chatID string) string { return "chat:" + chatID + ":stream" }
func metaKey(chatID string) string   { return "chat:" + chatID + ":meta" }

// entry is the stored shape of one log element. The id is positional, not
// stored.
type entry struct {
	Text string           `json:"text"`
	Kind domain.TokenKind `json:"type"`
	Ts   int64            `json:"ts"`
}

func (r *RedisLog) Init(ctx context.Context, chatID, userID, messageID string) error {
	if r.client == nil {
		return nil
	}

	meta := domain.StreamMeta{
		Status:    domain.StreamStatusStreaming,
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
		StartedAt: time.Now(),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, streamKey(chatID))
	pipe.Set(ctx, metaKey(chatID), data, r.ttl.Stream)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("WARN: stream log init failed for chat %s: %v", chatID, err)
		return nil
	}
	return nil
}

func (r *RedisLog) Append(ctx context.Context, chatID, text string, kind domain.TokenKind) (int64, error) {
	if r.client == nil {
		return 0, nil
	}

	data, err := json.Marshal(entry{Text: text, Kind: kind, Ts: time.Now().UnixMilli()})
	if err != nil {
		return 0, err
	}

	pipe := r.client.TxPipeline()
	push := pipe.RPush(ctx, streamKey(chatID), data)
	pipe.Expire(ctx, streamKey(chatID), r.ttl.Stream)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("WARN: stream log append failed for chat %s: %v", chatID, err)
		return 0, nil
	}
	return push.Val(), nil
}

func (r *RedisLog) Complete(ctx context.Context, chatID string) error {
	if r.client == nil {
		return nil
	}
	if _, err := r.Append(ctx, chatID, "", domain.TokenKindDone); err != nil {
		return err
	}
	return r.finalize(ctx, chatID, domain.StreamStatusCompleted, "", r.ttl.Completed, 0)
}

func (r *RedisLog) Error(ctx context.Context, chatID, msg string) error {
	if r.client == nil {
		return nil
	}
	if _, err := r.Append(ctx, chatID, msg, domain.TokenKindError); err != nil {
		return err
	}
	// Error logs expire with their meta record rather than lingering for the
	// full streaming window.
	return r.finalize(ctx, chatID, domain.StreamStatusError, msg, r.ttl.Error, r.ttl.Error)
}

// finalize flips the meta record to a terminal status. An already-terminal
// status wins: completing or erroring a finished stream leaves it untouched.
func (r *RedisLog) finalize(ctx context.Context, chatID string, status domain.StreamStatus, errMsg string, metaTTL, logTTL time.Duration) error {
	meta, err := r.GetMeta(ctx, chatID)
	if err != nil {
		return err
	}
	if meta == nil || meta.Status.IsTerminal() {
		return nil
	}

	now := time.Now()
	meta.Status = status
	meta.CompletedAt = &now
	meta.Error = errMsg

	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, metaKey(chatID), data, metaTTL)
	if logTTL > 0 {
		pipe.Expire(ctx, streamKey(chatID), logTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("WARN: stream meta finalize failed for chat %s: %v", chatID, err)
	}
	return nil
}

func (r *RedisLog) Read(ctx context.Context, chatID string, fromID int64) ([]domain.StreamToken, error) {
	if r.client == nil {
		return nil, nil
	}
	if fromID < 0 {
		fromID = 0
	}

	// Entry with id i sits at list index i-1, so the tail after fromID
	// starts at index fromID.
	raw, err := r.client.LRange(ctx, streamKey(chatID), fromID, -1).Result()
	if err != nil {
		log.Printf("WARN: stream log read failed for chat %s: %v", chatID, err)
		return nil, nil
	}

	tokens := make([]domain.StreamToken, 0, len(raw))
	for i, item := range raw {
		var e entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			log.Printf("WARN: malformed log entry in chat %s: %v", chatID, err)
			continue
		}
		tokens = append(tokens, domain.StreamToken{
			ID:   fromID + int64(i) + 1,
			Text: e.Text,
			Kind: e.Kind,
			Ts:   e.Ts,
		})
	}
	return tokens, nil
}

func (r *RedisLog) GetMeta(ctx context.Context, chatID string) (*domain.StreamMeta, error) {
	if r.client == nil {
		return nil, nil
	}

	data, err := r.client.Get(ctx, metaKey(chatID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		log.Printf("WARN: stream meta read failed for chat %s: %v", chatID, err)
		return nil, nil
	}

	var meta domain.StreamMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		// Malformed meta is treated as absent, never as a crash.
		log.Printf("WARN: malformed stream meta for chat %s: %v", chatID, err)
		return nil, nil
	}
	if meta.Status == "" {
		return nil, nil
	}
	return &meta, nil
}

func (r *RedisLog) HasActiveStream(ctx context.Context, chatID string) bool {
	meta, err := r.GetMeta(ctx, chatID)
	if err != nil || meta == nil {
		return false
	}
	return meta.Status == domain.StreamStatusStreaming
}
