// Package relay tails a stream log from a client-supplied cursor and forwards
// new tokens as an ordered event sequence until completion, error or consumer
// disconnect.
package relay

import (
	"context"
	"time"

	"github.com/xiaot623/tailstream/internal/domain"
	"github.com/xiaot623/tailstream/internal/streamlog"
)

// Sink receives relay events in log order. Returning an error stops the tail.
type Sink func(event domain.StreamEvent) error

// Relay is a cooperative polling tailer over a stream log.
type Relay struct {
	log          streamlog.Log
	pollInterval time.Duration
	maxDuration  time.Duration
}

// New creates a relay. pollInterval bounds the latency between an append and
// its delivery; it should be tens of milliseconds.
func New(log streamlog.Log, pollInterval time.Duration) *Relay {
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	return &Relay{
		log:          log,
		pollInterval: pollInterval,
		maxDuration:  10 * time.Minute,
	}
}

// Tail polls the log from lastID and forwards every new token to sink.
//
// Within one session no token is delivered twice and ordering matches the
// log. A terminal token (done or error) is forwarded and ends the tail; so
// does a lifecycle record that left the streaming state with no tokens
// pending, which covers completion racing ahead of the last read. Cancelling
// ctx stops the loop immediately, not at the next poll.
func (r *Relay) Tail(ctx context.Context, chatID string, lastID int64, sink Sink) error {
	cursor := lastID
	if cursor < 0 {
		cursor = 0
	}
	deadline := time.Now().Add(r.maxDuration)

	for {
		tokens, err := r.log.Read(ctx, chatID, cursor)
		if err != nil {
			return err
		}

		for _, tok := range tokens {
			event := domain.StreamEvent{
				Type: domain.KindToEventType(tok.Kind),
				Text: tok.Text,
				ID:   tok.ID,
			}
			if err := sink(event); err != nil {
				return err
			}
			cursor = tok.ID

			if tok.Kind == domain.TokenKindDone || tok.Kind == domain.TokenKindError {
				return nil
			}
		}

		if len(tokens) == 0 {
			meta, err := r.log.GetMeta(ctx, chatID)
			if err != nil {
				return err
			}
			if meta == nil || meta.Status != domain.StreamStatusStreaming {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}
