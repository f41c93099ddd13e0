package llm

import (
	"context"
	"fmt"
	"time"
)

// MockSource is a mock implementation of TokenSource for testing and local
// development without a provider account.
type MockSource struct {
	// ChunkDelay slows emission down to make streaming visible; zero means
	// emit as fast as the consumer accepts.
	ChunkDelay time.Duration
}

// NewMockSource creates a new mock token source.
func NewMockSource() *MockSource {
	return &MockSource{}
}

var _ TokenSource = (*MockSource)(nil)

// Stream simulates a streaming response, emitting a short reasoning phase
// followed by the reply in small chunks.
func (m *MockSource) Stream(ctx context.Context, req *Request, callback DeltaCallback) error {
	reply := m.generateMockReply(req)

	if req.Options.ReasoningEffort != "" {
		for _, chunk := range splitIntoChunks("Considering the question and the conversation so far. ", 12) {
			if err := m.emit(ctx, callback, Delta{Reasoning: chunk}); err != nil {
				return err
			}
		}
	}

	for _, chunk := range splitIntoChunks(reply, 10) {
		if err := m.emit(ctx, callback, Delta{Text: chunk}); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockSource) emit(ctx context.Context, callback DeltaCallback, delta Delta) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if m.ChunkDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.ChunkDelay):
		}
	}
	return callback(delta)
}

// generateMockReply generates a canned reply based on the request.
func (m *MockSource) generateMockReply(req *Request) string {
	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}

	if lastUserMessage == "" {
		return "[MOCK] This is a mock response from the token source."
	}
	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100))
}

// splitIntoChunks splits a string into chunks of approximately the given size.
func splitIntoChunks(s string, chunkSize int) []string {
	if len(s) == 0 {
		return []string{""}
	}

	var chunks []string
	for i := 0; i < len(s); i += chunkSize {
		end := i + chunkSize
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[i:end])
	}
	return chunks
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
