package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/smsrouter/internal/config"
	"github.com/memohai/smsrouter/internal/transport"
)

// WebhookHandler forwards gateway callbacks to webhook transports.
type WebhookHandler struct {
	logger      *slog.Logger
	transports  *transport.Registry
	defaultName string
}

// NewWebhookHandler creates the handler. Requests to /incoming without a
// transport name go to defaultName, or "http+sms" when empty.
func NewWebhookHandler(log *slog.Logger, transports *transport.Registry, defaultName string) *WebhookHandler {
	if strings.TrimSpace(defaultName) == "" {
		defaultName = config.DefaultHTTPTransport
	}
	return &WebhookHandler{
		logger:      log.With(slog.String("handler", "webhook")),
		transports:  transports,
		defaultName: defaultName,
	}
}

// Register mounts GET /incoming and GET /incoming/:transport.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/incoming", h.Incoming)
	e.GET("/incoming/:transport", h.Incoming)
}

// Incoming hands the query string to the transport and writes its
// plain-text reply.
func (h *WebhookHandler) Incoming(c echo.Context) error {
	name := strings.TrimSpace(c.Param("transport"))
	if name == "" {
		name = h.defaultName
	}
	wh, ok := h.transports.Webhook(name)
	if !ok {
		h.logger.Debug("webhook for unknown transport", slog.String("transport", name))
		return c.String(http.StatusNotFound, "No such transport: "+name+".")
	}
	body, status := wh.HandleWebhook(c.Request().Context(), c.QueryParams())
	return c.String(status, body)
}
