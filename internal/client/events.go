package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/tailstream/internal/domain"
)

// EventHandler is called for each stream event in log order.
type EventHandler func(event domain.StreamEvent) error

// StreamConsumer tails a chat's relay endpoint over SSE. It keeps the last
// seen event id across sessions, so a reconnect resumes from the cursor and
// redelivered tokens at or before it are dropped.
type StreamConsumer struct {
	baseURL    string
	httpClient *http.Client
	lastID     int64
}

// NewStreamConsumer creates a consumer against the given server base URL,
// starting from lastID (0 means the start of the log).
func NewStreamConsumer(baseURL string, lastID int64) *StreamConsumer {
	return &StreamConsumer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Minute, // Long timeout for streaming
		},
		lastID: lastID,
	}
}

// LastID returns the resume cursor.
func (c *StreamConsumer) LastID() int64 {
	return c.lastID
}

// Consume opens one relay session from the current cursor and feeds events
// to handler until a terminal event, EOF or handler error. A nil return
// after a terminal event means the stream ended; a nil return without one
// means the connection dropped and the caller may resume.
func (c *StreamConsumer) Consume(ctx context.Context, chatID string, handler EventHandler) (terminal bool, err error) {
	url := fmt.Sprintf("%s/v1/chats/%s/stream?last_id=%d", c.baseURL, chatID, c.lastID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("stream returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return c.parseSSE(resp.Body, handler)
}

// Run tails the stream to its terminal event, reconnecting with a short
// backoff when a session drops mid-stream.
func (c *StreamConsumer) Run(ctx context.Context, chatID string, handler EventHandler) error {
	for {
		terminal, err := c.Consume(ctx, chatID, handler)
		if err != nil {
			return err
		}
		if terminal {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// parseSSE reads data frames, decodes them and forwards fresh events.
// Events at or before the cursor are duplicates from an imprecise resume
// and are skipped.
func (c *StreamConsumer) parseSSE(reader io.Reader, handler EventHandler) (bool, error) {
	scanner := bufio.NewScanner(reader)

	for scanner.Scan() {
		line := scanner.Text()

		if !strings.HasPrefix(line, "data:") {
			// Ignore comments, blank separators and other fields
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var event domain.StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return false, fmt.Errorf("failed to decode event: %w", err)
		}

		if event.ID != 0 {
			if event.ID <= c.lastID {
				continue
			}
			c.lastID = event.ID
		}

		if err := handler(event); err != nil {
			return false, err
		}
		if event.Type == domain.StreamEventDone || event.Type == domain.StreamEventError {
			return true, nil
		}
	}
	return false, scanner.Err()
}
