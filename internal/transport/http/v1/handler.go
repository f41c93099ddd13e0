// Package v1 implements the public chat API.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/tailstream/internal/relay"
	"github.com/xiaot623/tailstream/internal/service"
)

// Handler holds the v1 route handlers.
type Handler struct {
	service *service.Service
	relay   *relay.Relay
}

// NewHandler creates a new v1 handler.
func NewHandler(svc *service.Service, rly *relay.Relay) *Handler {
	return &Handler{service: svc, relay: rly}
}

// RegisterRoutes registers the v1 routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/chats/:chat_id/messages", h.SendMessage)
	e.GET("/v1/chats/:chat_id/messages", h.GetMessages)
	e.GET("/v1/chats/:chat_id/status", h.GetJobStatus)
	e.GET("/v1/chats/:chat_id/stream", h.StreamChat)
	e.POST("/v1/chats/:chat_id/cancel", h.CancelStream)
}
