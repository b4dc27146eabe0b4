// Package httpgw is a transport for Kannel-style HTTP SMS gateways. The
// gateway calls a webhook for incoming messages and delivery reports;
// outgoing messages are sent as GET requests to the gateway's send URL.
package httpgw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memohai/smsrouter/internal/config"
	"github.com/memohai/smsrouter/internal/message"
	"github.com/memohai/smsrouter/internal/store"
	"github.com/memohai/smsrouter/internal/transport"
)

// Kannel delivery report statuses. The send request asks for mask 3, so
// only delivered and non-delivered reports are expected.
const (
	StatusDelivered    = 1
	StatusNotDelivered = 2
)

// ErrNoSendURL is returned by Send when no send URL is configured.
var ErrNoSendURL = errors.New("httpgw: send url is not configured")

// Fetcher performs a GET request and returns the response status code.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (int, error)
}

// HTTPFetcher is the Fetcher used outside tests.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Options configures a Gateway.
type Options struct {
	SendURL        string
	DLRURL         string
	Timeout        time.Duration
	RetryMax       int
	RetryBackoff   time.Duration
	ResendSchedule string
}

// OptionsFromConfig converts a normalized transport section.
func OptionsFromConfig(tc config.TransportConfig) Options {
	return Options{
		SendURL:        strings.TrimSpace(tc.SendURL),
		DLRURL:         strings.TrimSpace(tc.DLRURL),
		Timeout:        time.Duration(tc.TimeoutSeconds) * time.Second,
		RetryMax:       tc.RetryMax,
		RetryBackoff:   time.Duration(tc.RetryBackoffMs) * time.Millisecond,
		ResendSchedule: strings.TrimSpace(tc.ResendSchedule),
	}
}

func (o Options) normalize() Options {
	if o.Timeout <= 0 {
		o.Timeout = config.DefaultHTTPTimeoutSec * time.Second
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 1
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	return o
}

// Gateway is the HTTP transport.
type Gateway struct {
	*transport.Base

	opts    Options
	fetcher Fetcher
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a gateway. A nil fetcher uses an HTTPFetcher with the
// configured timeout.
func New(base *transport.Base, opts Options, fetcher Fetcher) *Gateway {
	opts = opts.normalize()
	if fetcher == nil {
		fetcher = NewHTTPFetcher(opts.Timeout)
	}
	return &Gateway{
		Base:    base,
		opts:    opts,
		fetcher: fetcher,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func (g *Gateway) Kind() string { return config.KindHTTP }

// Start schedules the resend sweep when a schedule is configured.
func (g *Gateway) Start(context.Context) error {
	if g.opts.ResendSchedule == "" {
		return nil
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(g.opts.ResendSchedule, g.sweep); err != nil {
		return fmt.Errorf("invalid resend schedule: %w", err)
	}
	g.mu.Lock()
	g.cron = c
	g.mu.Unlock()
	c.Start()
	g.Logger().Info("resend sweep scheduled", slog.String("schedule", g.opts.ResendSchedule))
	return nil
}

// Stop halts the resend sweep and waits for a running sweep to finish.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	c := g.cron
	g.cron = nil
	g.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), g.opts.Timeout*time.Duration(g.opts.RetryMax+1))
	defer cancel()
	if _, err := g.ResendUnsent(ctx); err != nil {
		g.Logger().Warn("resend sweep failed", slog.Any("error", err))
	}
}

// OnOutgoing sends outgoing messages addressed to this transport as soon
// as they are stored. Register it with store.Observed.
func (g *Gateway) OnOutgoing(ctx context.Context, out *message.Outgoing) {
	if !g.Owns(out.URI) {
		return
	}
	if g.opts.SendURL == "" {
		g.Logger().Debug("no send url, leaving message queued", slog.Int64("outgoing_id", out.ID))
		return
	}
	if err := g.Send(ctx, *out); err != nil {
		g.Logger().Warn("send failed", slog.Int64("outgoing_id", out.ID), slog.Any("error", err))
	}
}

// ResendUnsent sends every queued message of this transport and returns
// how many went out.
func (g *Gateway) ResendUnsent(ctx context.Context) (int, error) {
	if g.opts.SendURL == "" {
		return 0, ErrNoSendURL
	}
	pending, err := g.Store().ListUnsent(ctx, message.TransportPrefix(g.Name()))
	if err != nil {
		return 0, err
	}
	sent := 0
	var errs []error
	for _, out := range pending {
		if err := g.Send(ctx, out); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Send delivers out to the gateway and stamps its send time on success.
// Failed fetches are retried with linear backoff.
func (g *Gateway) Send(ctx context.Context, out message.Outgoing) error {
	if g.opts.SendURL == "" {
		return ErrNoSendURL
	}
	target, err := g.sendURL(out)
	if err != nil {
		return err
	}
	var lastErr error
	for i := 0; i < g.opts.RetryMax; i++ {
		err := g.fetch(ctx, target)
		if err == nil {
			return g.markSent(ctx, out.ID)
		}
		lastErr = err
		g.Logger().Warn("send outgoing retry",
			slog.Int64("outgoing_id", out.ID),
			slog.Int("attempt", i+1),
			slog.Any("error", err))
		if i+1 < g.opts.RetryMax {
			if err := g.sleep(ctx, time.Duration(i+1)*g.opts.RetryBackoff); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("send outgoing %d failed after retries: %w", out.ID, lastErr)
}

func (g *Gateway) fetch(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	status, err := g.fetcher.Fetch(ctx, target)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return fmt.Errorf("gateway returned status %d", status)
	}
	return nil
}

func (g *Gateway) markSent(ctx context.Context, id int64) error {
	current, err := g.Store().GetOutgoing(ctx, id)
	if err != nil {
		return err
	}
	if current.Time != nil {
		return nil
	}
	now := g.now()
	current.Time = &now
	return g.Store().UpdateOutgoing(ctx, current)
}

func (g *Gateway) sendURL(out message.Outgoing) (string, error) {
	transportName, ident, ok := message.SplitURI(out.URI)
	if !ok || transportName != g.Name() || ident == "" {
		return "", fmt.Errorf("outgoing %d is not addressed to %s: %s", out.ID, g.Name(), out.URI)
	}
	query := url.Values{}
	query.Set("to", ident)
	query.Set("text", out.Text)
	if g.opts.DLRURL != "" {
		query.Set("dlr-url", fmt.Sprintf("%s%sstatus=%%d&id=%d&timestamp=%%T",
			g.opts.DLRURL, querySeparator(g.opts.DLRURL), out.ID))
		query.Set("dlr-mask", "3")
	}
	base := g.opts.SendURL
	switch {
	case !strings.Contains(base, "?"):
		base += "?"
	case !strings.HasSuffix(base, "?") && !strings.HasSuffix(base, "&"):
		base += "&"
	}
	return base + query.Encode(), nil
}

func querySeparator(rawURL string) string {
	if strings.Contains(rawURL, "?") {
		return "&"
	}
	return "?"
}

// HandleWebhook accepts an incoming message or a delivery report. Bad
// requests get 406 Not Acceptable and change nothing.
func (g *Gateway) HandleWebhook(ctx context.Context, query url.Values) (string, int) {
	req, err := parseRequest(query)
	if err != nil {
		return errorBody(err), http.StatusNotAcceptable
	}

	switch {
	case req.status == 0:
		if _, err := g.Incoming(ctx, req.from, req.text, req.time); err != nil {
			return err.Error(), http.StatusInternalServerError
		}
	case req.status == StatusDelivered:
		if err := g.markDelivered(ctx, req.id, req.time); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errorBody(&requestError{
					kind: "UnknownMessage",
					err:  fmt.Errorf("no outgoing message with id %d", req.id),
				}), http.StatusNotAcceptable
			}
			return err.Error(), http.StatusInternalServerError
		}
	default:
		g.Logger().Info("delivery report",
			slog.Int("status", req.status),
			slog.Int64("outgoing_id", req.id))
	}
	return "", http.StatusOK
}

func (g *Gateway) markDelivered(ctx context.Context, id int64, at time.Time) error {
	out, err := g.Store().GetOutgoing(ctx, id)
	if err != nil {
		return err
	}
	out.Delivery = &at
	if out.Time == nil {
		out.Time = &at
	}
	return g.Store().UpdateOutgoing(ctx, out)
}

type webhookRequest struct {
	status int
	time   time.Time
	id     int64
	from   string
	text   string
}

type requestError struct {
	kind string
	err  error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func errorBody(err error) string {
	kind := "InvalidRequest"
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		kind = reqErr.kind
	}
	return fmt.Sprintf("There was an error (``%s``) processing the request: %s.", kind, err.Error())
}

func missing(name string) error {
	return &requestError{kind: "MissingParameter", err: fmt.Errorf("%s is required", name)}
}

func invalid(name string, err error) error {
	return &requestError{kind: "InvalidParameter", err: fmt.Errorf("%s: %w", name, err)}
}

// maxTimestamp bounds webhook timestamps to seconds whose nanosecond
// representation fits an int64.
const maxTimestamp = float64(math.MaxInt64 / int64(time.Second))

func parseRequest(query url.Values) (webhookRequest, error) {
	var req webhookRequest
	if raw := query.Get("status"); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			return req, invalid("status", err)
		}
		req.status = status
	}

	raw := query.Get("timestamp")
	if raw == "" {
		return req, missing("timestamp")
	}
	ts, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return req, invalid("timestamp", err)
	}
	if math.IsNaN(ts) || math.IsInf(ts, 0) || math.Abs(ts) >= maxTimestamp {
		return req, invalid("timestamp", fmt.Errorf("%q is out of range", raw))
	}
	sec := int64(ts)
	req.time = time.Unix(sec, int64((ts-float64(sec))*float64(time.Second)))

	if req.status != 0 {
		raw := query.Get("id")
		if raw == "" {
			return req, missing("id")
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return req, invalid("id", err)
		}
		req.id = id
		return req, nil
	}

	req.from = strings.TrimSpace(query.Get("from"))
	if req.from == "" {
		return req, missing("from")
	}
	if !query.Has("text") {
		return req, missing("text")
	}
	req.text = query.Get("text")
	return req, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
