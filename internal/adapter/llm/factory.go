package llm

import (
	"log"
	"os"
	"time"
)

const (
	// EnvMode is the environment variable name for mode selection.
	EnvMode = "TAILSTREAM_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewTokenSource creates a token source based on the TAILSTREAM_MODE
// environment variable. If TAILSTREAM_MODE=MOCK, returns a MockSource;
// otherwise returns a real Client.
func NewTokenSource(baseURL, apiKey string, timeout time.Duration) TokenSource {
	if os.Getenv(EnvMode) == ModeMock {
		log.Println("TAILSTREAM_MODE=MOCK detected, using mock token source")
		return NewMockSource()
	}
	return NewClient(baseURL, apiKey, timeout)
}
