package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/tailstream/internal/adapter/llm"
	"github.com/xiaot623/tailstream/internal/domain"
	"github.com/xiaot623/tailstream/internal/service"
)

func postJSON(e *echo.Echo, path, body string) (*httptest.ResponseRecorder, echo.Context) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, e.NewContext(req, rec)
}

func TestSendMessageAccepted(t *testing.T) {
	e := echo.New()
	h, svc, _, _ := newTestHandler(t, llm.NewMockSource())

	rec, c := postJSON(e, "/v1/chats/c1/messages", `{"user_id":"u1","content":"hello"}`)
	c.SetParamNames("chat_id")
	c.SetParamValues("c1")

	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	defer waitForProducerExit(t, svc, "c1")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	var resp domain.SendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ChatID != "c1" || resp.MessageID == "" || resp.StreamID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSendMessageBlockedMapsTo403(t *testing.T) {
	e := echo.New()
	h, _, _, _ := newTestHandler(t, llm.NewMockSource())

	rec, c := postJSON(e, "/v1/chats/c1/messages", `{"user_id":"u1","content":""}`)
	c.SetParamNames("chat_id")
	c.SetParamValues("c1")

	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestSendMessageRateLimitMapsTo429(t *testing.T) {
	e := echo.New()
	slow := llm.NewMockSource()
	slow.ChunkDelay = 50 * time.Millisecond
	h, svc, _, _ := newTestHandler(t, slow)

	rec, c := postJSON(e, "/v1/chats/c1/messages", `{"user_id":"u1","content":"first"}`)
	c.SetParamNames("chat_id")
	c.SetParamValues("c1")
	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	rec, c = postJSON(e, "/v1/chats/c1/messages", `{"user_id":"u1","content":"second"}`)
	c.SetParamNames("chat_id")
	c.SetParamValues("c1")
	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	svc.CancelStream("c1")
	waitForProducerExit(t, svc, "c1")
}

// waitForProducerExit blocks until the chat's producer goroutine has
// unregistered, so cleanup does not race its terminal bookkeeping.
func waitForProducerExit(t *testing.T, svc *service.Service, chatID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !svc.CancelStream(chatID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("producer for chat %s did not exit", chatID)
}

func TestGetMessagesDefaults(t *testing.T) {
	e := echo.New()
	h, _, db, _ := newTestHandler(t, llm.NewMockSource())

	if _, err := db.GetOrCreateChat(context.Background(), "c1", "u1"); err != nil {
		t.Fatalf("GetOrCreateChat failed: %v", err)
	}
	msg := &domain.Message{
		MessageID: "m1",
		ChatID:    "c1",
		Role:      domain.RoleUser,
		Content:   "hello",
		CreatedAt: time.Now(),
	}
	if err := db.UpsertMessage(context.Background(), msg); err != nil {
		t.Fatalf("UpsertMessage failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/chats/c1/messages", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("chat_id")
	c.SetParamValues("c1")

	if err := h.GetMessages(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Messages []domain.Message `json:"messages"`
		HasMore  bool             `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Messages) != 1 || resp.HasMore {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetJobStatusNullWhenIdle(t *testing.T) {
	e := echo.New()
	h, _, _, _ := newTestHandler(t, llm.NewMockSource())

	req := httptest.NewRequest(http.MethodGet, "/v1/chats/c1/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("chat_id")
	c.SetParamValues("c1")

	if err := h.GetJobStatus(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Job *domain.JobStatus `json:"job"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Job != nil {
		t.Fatalf("expected null job, got %+v", resp.Job)
	}
}

func TestCancelStreamNoActiveProducer(t *testing.T) {
	e := echo.New()
	h, _, _, _ := newTestHandler(t, llm.NewMockSource())

	req := httptest.NewRequest(http.MethodPost, "/v1/chats/c1/cancel", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("chat_id")
	c.SetParamValues("c1")

	if err := h.CancelStream(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Cancelled {
		t.Fatal("expected cancelled=false for idle chat")
	}
}
