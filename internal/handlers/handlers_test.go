package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/smsrouter/internal/forms"
	"github.com/memohai/smsrouter/internal/router"
	"github.com/memohai/smsrouter/internal/store"
	"github.com/memohai/smsrouter/internal/transport"
	"github.com/memohai/smsrouter/internal/transport/loopback"
)

type fakeWebhook struct {
	name  string
	query url.Values
}

func (f *fakeWebhook) Name() string { return f.name }
func (f *fakeWebhook) Kind() string { return "fake" }
func (f *fakeWebhook) Start(context.Context) error { return nil }
func (f *fakeWebhook) Stop(context.Context) error { return nil }
func (f *fakeWebhook) HandleWebhook(_ context.Context, q url.Values) (string, int) {
	f.query = q
	return "handled by " + f.name, http.StatusOK
}

func newEcho(handlers ...interface{ Register(*echo.Echo) }) *echo.Echo {
	e := echo.New()
	for _, h := range handlers {
		h.Register(e)
	}
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newLoopback(t *testing.T, reg *transport.Registry) *loopback.Gateway {
	t.Helper()
	st := store.NewMemory()
	symbols := router.NewRegistry()
	require.NoError(t, forms.Install(symbols))
	table, err := forms.Table(nil)
	require.NoError(t, err)
	r := router.New(st, table, router.WithRegistry(symbols))
	gw := loopback.New(transport.NewBase(nil, "lo", st, r, transport.WithDebug(true)), nil)
	require.NoError(t, reg.Register(gw))
	return gw
}

func TestPing(t *testing.T) {
	reg := transport.NewRegistry()
	require.NoError(t, reg.Register(&fakeWebhook{name: "b"}))
	require.NoError(t, reg.Register(&fakeWebhook{name: "a"}))
	e := newEcho(NewPingHandler(slog.Default(), reg))

	rec := do(e, http.MethodGet, "/ping", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body pingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, pingResponse{Status: "ok", Transports: []string{"a", "b"}}, body)

	rec = do(e, http.MethodHead, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookRouting(t *testing.T) {
	reg := transport.NewRegistry()
	def := &fakeWebhook{name: "http+sms"}
	other := &fakeWebhook{name: "kannel"}
	require.NoError(t, reg.Register(def))
	require.NoError(t, reg.Register(other))
	e := newEcho(NewWebhookHandler(slog.Default(), reg, ""))

	rec := do(e, http.MethodGet, "/incoming?from=123456&text=hi", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "handled by http+sms", rec.Body.String())
	assert.Equal(t, "hi", def.query.Get("text"))

	rec = do(e, http.MethodGet, "/incoming/kannel?status=1&id=4", "")
	assert.Equal(t, "handled by kannel", rec.Body.String())
	assert.Equal(t, "4", other.query.Get("id"))

	rec = do(e, http.MethodGet, "/incoming/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No such transport: nope.", rec.Body.String())
}

func TestWebhookRejectsNonWebhookTransport(t *testing.T) {
	reg := transport.NewRegistry()
	newLoopback(t, reg)
	e := newEcho(NewWebhookHandler(slog.Default(), reg, "lo"))
	rec := do(e, http.MethodGet, "/incoming", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoopbackPostMessage(t *testing.T) {
	reg := transport.NewRegistry()
	newLoopback(t, reg)
	require.NoError(t, reg.Register(&fakeWebhook{name: "http+sms"}))
	e := newEcho(NewLoopbackHandler(reg))

	rec := do(e, http.MethodPost, "/loopback/lo/256700000000/messages", `{"text":"+ping"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body loopbackMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotZero(t, body.ID)
	assert.Contains(t, body.Transcript, "--> +ping\n")
	assert.Contains(t, body.Transcript, "    <-- pong\n")

	rec = do(e, http.MethodPost, "/loopback/missing/256700000000/messages", `{"text":"+ping"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(e, http.MethodPost, "/loopback/http+sms/256700000000/messages", `{"text":"+ping"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoopbackStream(t *testing.T) {
	reg := transport.NewRegistry()
	gw := newLoopback(t, reg)
	srv := httptest.NewServer(newEcho(NewLoopbackHandler(reg)))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/loopback/lo/256700000000/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	_, err = gw.Receive(context.Background(), "256700000000", "+echo over the wire")
	require.NoError(t, err)

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))
	var d loopback.Delivery
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &d))
	assert.Equal(t, "over the wire", d.Text)
	assert.Equal(t, "256700000000", d.Ident)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEcho(NewMetricsHandler())
	rec := do(e, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
