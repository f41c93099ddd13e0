package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiaot623/tailstream/internal/adapter/llm"
	"github.com/xiaot623/tailstream/internal/config"
	"github.com/xiaot623/tailstream/internal/policy"
	"github.com/xiaot623/tailstream/internal/relay"
	store "github.com/xiaot623/tailstream/internal/repository"
	"github.com/xiaot623/tailstream/internal/service"
	"github.com/xiaot623/tailstream/internal/streamlog"
	transport "github.com/xiaot623/tailstream/internal/transport/http"
	"github.com/xiaot623/tailstream/internal/transport/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting tailstreamd...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Redis: %s", redisLabel(cfg.RedisAddr))
	log.Printf("LLM Base URL: %s", cfg.LLMBaseURL)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize stream log. A nil Redis client keeps the log in degraded
	// mode: no resumable tail, durable polling still works.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("WARN: redis unreachable, streaming degrades to polling: %v", err)
		}
		pingCancel()
	}
	slog := streamlog.NewRedisLog(redisClient, streamlog.TTLs{
		Stream:    cfg.StreamTTL,
		Completed: cfg.CompletedTTL,
		Error:     cfg.ErrorTTL,
	})

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize token source
	source := llm.NewTokenSource(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)

	// Initialize websocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize service and relay
	svc := service.New(db, slog, source, hub, policyEngine, cfg)
	rly := relay.New(slog, cfg.RelayPollInterval)

	// Create HTTP server
	server := transport.NewServer(svc, rly, ws.NewServer(hub))

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("tailstreamd started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down tailstreamd...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("tailstreamd stopped")
}

func redisLabel(addr string) string {
	if addr == "" {
		return "disabled"
	}
	return addr
}
