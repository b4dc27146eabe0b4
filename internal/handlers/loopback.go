package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/smsrouter/internal/transcript"
	"github.com/memohai/smsrouter/internal/transport"
	"github.com/memohai/smsrouter/internal/transport/loopback"
)

// LoopbackHandler exposes loopback transports over HTTP: clients post text
// as an ident and stream the replies addressed to it.
type LoopbackHandler struct {
	transports *transport.Registry
}

func NewLoopbackHandler(transports *transport.Registry) *LoopbackHandler {
	return &LoopbackHandler{transports: transports}
}

func (h *LoopbackHandler) Register(e *echo.Echo) {
	group := e.Group("/loopback/:transport/:ident")
	group.POST("/messages", h.PostMessage)
	group.GET("/stream", h.StreamReplies)
}

type loopbackMessageRequest struct {
	Text string `json:"text"`
}

type loopbackMessageResponse struct {
	ID         int64  `json:"id"`
	Transcript string `json:"transcript"`
}

func (h *LoopbackHandler) PostMessage(c echo.Context) error {
	gw, ident, err := h.resolve(c)
	if err != nil {
		return err
	}
	var req loopbackMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	msg, err := gw.Receive(ctx, ident, req.Text)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	text, err := transcript.Format(ctx, gw.Store(), msg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, loopbackMessageResponse{ID: msg.ID, Transcript: text})
}

// StreamReplies writes each delivery for the ident as a server-sent event
// until the client goes away.
func (h *LoopbackHandler) StreamReplies(c echo.Context) error {
	gw, ident, err := h.resolve(c)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}
	writer := bufio.NewWriter(c.Response().Writer)

	_, stream, cancel := gw.Hub().Subscribe(ident)
	defer cancel()
	flusher.Flush()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case d, ok := <-stream:
			if !ok {
				return nil
			}
			data, err := json.Marshal(d)
			if err != nil {
				continue
			}
			_, _ = writer.WriteString(fmt.Sprintf("data: %s\n\n", string(data)))
			writer.Flush()
			flusher.Flush()
		}
	}
}

func (h *LoopbackHandler) resolve(c echo.Context) (*loopback.Gateway, string, error) {
	name := strings.TrimSpace(c.Param("transport"))
	ident := strings.TrimSpace(c.Param("ident"))
	if ident == "" {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, "ident is required")
	}
	t, ok := h.transports.Get(name)
	if !ok {
		return nil, "", echo.NewHTTPError(http.StatusNotFound, "transport not found")
	}
	gw, ok := t.(*loopback.Gateway)
	if !ok {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, "not a loopback transport")
	}
	return gw, ident, nil
}

