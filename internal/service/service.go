// Package service implements the chat operations and the stream producer.
package service

import (
	"context"
	"sync"

	"github.com/xiaot623/tailstream/internal/adapter/llm"
	"github.com/xiaot623/tailstream/internal/config"
	"github.com/xiaot623/tailstream/internal/policy"
	store "github.com/xiaot623/tailstream/internal/repository"
	"github.com/xiaot623/tailstream/internal/streamlog"
	"github.com/xiaot623/tailstream/internal/transport/ws"
)

// Service wires the durable store, the stream log, the token source, the
// job-status hub and the admission policy together.
type Service struct {
	store        store.Store
	log          streamlog.Log
	source       llm.TokenSource
	hub          *ws.Hub
	policyEngine *policy.Engine
	config       *config.Config

	// active maps chatID to the cancel func of its running producer.
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New creates a service. hub and policyEngine may be nil.
func New(st store.Store, slog streamlog.Log, source llm.TokenSource, hub *ws.Hub, policyEngine *policy.Engine, cfg *config.Config) *Service {
	return &Service{
		store:        st,
		log:          slog,
		source:       source,
		hub:          hub,
		policyEngine: policyEngine,
		config:       cfg,
		active:       make(map[string]context.CancelFunc),
	}
}

func (s *Service) registerProducer(chatID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[chatID] = cancel
}

func (s *Service) unregisterProducer(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, chatID)
}

// producerCancel returns the cancel func of the chat's running producer, if
// any.
func (s *Service) producerCancel(chatID string) (context.CancelFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.active[chatID]
	return cancel, ok
}
