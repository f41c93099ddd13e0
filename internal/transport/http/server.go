// Package http provides the HTTP server for tailstreamd.
package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/tailstream/internal/relay"
	"github.com/xiaot623/tailstream/internal/service"
	v1 "github.com/xiaot623/tailstream/internal/transport/http/v1"
	"github.com/xiaot623/tailstream/internal/transport/ws"
)

// NewServer creates and configures the HTTP server: the v1 chat API, the SSE
// relay and the websocket job-status feed.
func NewServer(svc *service.Service, rly *relay.Relay, wsServer *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, rly)
	v1Handler.RegisterRoutes(e)
	if wsServer != nil {
		wsServer.RegisterRoutes(e)
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return e
}
