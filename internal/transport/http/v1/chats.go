package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/tailstream/internal/domain"
)

// sendMessageBody is the request body for SendMessage.
type sendMessageBody struct {
	UserID  string                   `json:"user_id"`
	Content string                   `json:"content"`
	Options domain.GenerationOptions `json:"options"`
}

// SendMessage starts a generation job.
// POST /v1/chats/:chat_id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	chatID := c.Param("chat_id")

	var body sendMessageBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.SendMessage(c.Request().Context(), domain.SendMessageRequest{
		ChatID:  chatID,
		UserID:  body.UserID,
		Content: body.Content,
		Options: body.Options,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": err.Error()})
		case errors.Is(err, domain.ErrBlocked):
			return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}

	return c.JSON(http.StatusAccepted, resp)
}

// GetMessages retrieves the chat's persisted messages.
// GET /v1/chats/:chat_id/messages
func (h *Handler) GetMessages(c echo.Context) error {
	chatID := c.Param("chat_id")
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	before := c.QueryParam("before")

	messages, err := h.service.GetMessages(c.Request().Context(), chatID, limit, before)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
		"has_more": len(messages) == limit, // Approximate
	})
}

// GetJobStatus retrieves the chat's active job snapshot, or null.
// GET /v1/chats/:chat_id/status
func (h *Handler) GetJobStatus(c echo.Context) error {
	chatID := c.Param("chat_id")

	status, err := h.service.GetJobStatus(c.Request().Context(), chatID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"job": status,
	})
}

// CancelStream aborts the chat's running generation.
// POST /v1/chats/:chat_id/cancel
func (h *Handler) CancelStream(c echo.Context) error {
	chatID := c.Param("chat_id")

	cancelled := h.service.CancelStream(chatID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"cancelled": cancelled,
	})
}
