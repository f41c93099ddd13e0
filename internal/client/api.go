package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/tailstream/internal/domain"
)

// API is the JSON client for the server's chat endpoints.
type API struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPI creates an API client against the given server base URL.
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SendMessage starts a generation job. Rate-limit and policy rejections come
// back as the typed domain errors.
func (a *API) SendMessage(ctx context.Context, chatID string, req domain.SendMessageRequest) (*domain.SendMessageResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chats/%s/messages", a.baseURL, chatID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
	case http.StatusTooManyRequests:
		return nil, domain.ErrRateLimited
	case http.StatusForbidden:
		return nil, domain.ErrBlocked
	default:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("send returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var out domain.SendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// GetMessages fetches the chat's persisted messages.
func (a *API) GetMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	url := fmt.Sprintf("%s/v1/chats/%s/messages", a.baseURL, chatID)
	if err := a.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// GetJobStatus fetches the chat's active job snapshot, or nil when idle.
func (a *API) GetJobStatus(ctx context.Context, chatID string) (*domain.JobStatus, error) {
	var out struct {
		Job *domain.JobStatus `json:"job"`
	}
	url := fmt.Sprintf("%s/v1/chats/%s/status", a.baseURL, chatID)
	if err := a.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return out.Job, nil
}

// CancelStream aborts the chat's running generation.
func (a *API) CancelStream(ctx context.Context, chatID string) (bool, error) {
	url := fmt.Sprintf("%s/v1/chats/%s/cancel", a.baseURL, chatID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to cancel: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Cancelled, nil
}

func (a *API) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
