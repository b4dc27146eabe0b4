package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

type panicHandler struct{}

func (panicHandler) Register(e *echo.Echo) {
	e.GET("/panic", func(echo.Context) error { panic("boom") })
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "fine") })
}

func TestServerRecoversAndServes(t *testing.T) {
	s := NewServer(slog.Default(), "", panicHandler{}, nil)
	assert.Equal(t, ":8080", s.addr)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fine", rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStopBeforeStart(t *testing.T) {
	s := NewServer(slog.Default(), "127.0.0.1:0")
	assert.NoError(t, s.Stop(context.Background()))
}
