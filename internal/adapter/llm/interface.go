// Package llm provides the token source abstraction over LLM providers.
package llm

import (
	"context"

	"github.com/xiaot623/tailstream/internal/domain"
)

// Delta is one incremental chunk from the model. Either field may be empty.
type Delta struct {
	Text      string
	Reasoning string
}

// DeltaCallback is called for each delta received from the source.
type DeltaCallback func(delta Delta) error

// Request describes one generation: the ordered message history plus options.
type Request struct {
	Messages []domain.Message
	Options  domain.GenerationOptions
}

// TokenSource produces the token stream for one generation. Stream blocks
// until the source is exhausted, the callback returns an error, or ctx is
// cancelled.
type TokenSource interface {
	Stream(ctx context.Context, req *Request, callback DeltaCallback) error
}
