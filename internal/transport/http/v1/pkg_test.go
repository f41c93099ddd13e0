package v1

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/xiaot623/tailstream/internal/adapter/llm"
	"github.com/xiaot623/tailstream/internal/config"
	"github.com/xiaot623/tailstream/internal/policy"
	"github.com/xiaot623/tailstream/internal/relay"
	store "github.com/xiaot623/tailstream/internal/repository"
	"github.com/xiaot623/tailstream/internal/service"
	"github.com/xiaot623/tailstream/internal/streamlog"
)

// newTestHandler builds a handler backed by an in-memory store, a miniredis
// stream log and the mock token source.
func newTestHandler(t *testing.T, source llm.TokenSource) (*Handler, *service.Service, store.Store, streamlog.Log) {
	t.Helper()

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	slog := streamlog.NewRedisLog(client, streamlog.DefaultTTLs())

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	cfg := &config.Config{GenerationTimeout: 5 * time.Second}
	svc := service.New(db, slog, source, nil, engine, cfg)
	rly := relay.New(slog, 10*time.Millisecond)

	return NewHandler(svc, rly), svc, db, slog
}
