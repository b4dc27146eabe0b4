package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/smsrouter/internal/transport"
)

// PingHandler serves /ping and HEAD /health for liveness.
type PingHandler struct {
	logger     *slog.Logger
	transports *transport.Registry
}

// NewPingHandler creates a ping handler. transports may be nil.
func NewPingHandler(log *slog.Logger, transports *transport.Registry) *PingHandler {
	return &PingHandler{
		logger:     log.With(slog.String("handler", "ping")),
		transports: transports,
	}
}

// Register mounts GET /ping and HEAD /health on the Echo instance.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

type pingResponse struct {
	Status     string   `json:"status"`
	Transports []string `json:"transports"`
}

// Ping returns 200 JSON with the configured transport names.
func (h *PingHandler) Ping(c echo.Context) error {
	names := []string{}
	if h.transports != nil {
		names = h.transports.Names()
	}
	return c.JSON(http.StatusOK, pingResponse{Status: "ok", Transports: names})
}

// PingHead returns 200 No Content for health checks.
func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
