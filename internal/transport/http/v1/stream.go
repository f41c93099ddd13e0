package v1

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/tailstream/internal/domain"
)

// StreamChat tails a chat's stream log via SSE from the client-supplied
// cursor. Each frame is a line-delimited `data: <json>` StreamEvent; the
// client resumes by passing its last seen id as last_id.
// GET /v1/chats/:chat_id/stream?last_id=N
func (h *Handler) StreamChat(c echo.Context) error {
	ctx := c.Request().Context()
	chatID := c.Param("chat_id")

	lastID := int64(0)
	if v := c.QueryParam("last_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid last_id"})
		}
		lastID = parsed
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	err := h.relay.Tail(ctx, chatID, lastID, func(event domain.StreamEvent) error {
		return h.sendSSEEvent(c, event)
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("ERROR: relay tail for chat %s: %v", chatID, err)
		return err
	}
	return nil
}

// sendSSEEvent writes a single event as an SSE data frame.
func (h *Handler) sendSSEEvent(c echo.Context, event domain.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
		return err
	}

	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
