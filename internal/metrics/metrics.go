// Package metrics exposes Prometheus collectors for routing and delivery
// and the hook adapters that feed them.
package metrics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/memohai/smsrouter/internal/message"
	"github.com/memohai/smsrouter/internal/router"
	"github.com/memohai/smsrouter/internal/store"
	"github.com/memohai/smsrouter/internal/transport"
	"github.com/memohai/smsrouter/internal/transport/poller"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrouter_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smsrouter_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Routing metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrouter_messages_received_total",
			Help: "Total incoming messages stored",
		},
		[]string{"transport"},
	)

	RouteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smsrouter_route_duration_seconds",
			Help:    "Time spent routing one incoming message",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"transport"},
	)

	RequestsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrouter_requests_dispatched_total",
			Help: "Total requests handed to a handler",
		},
		[]string{"outcome"},
	)

	// Delivery metrics
	OutgoingQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrouter_outgoing_queued_total",
			Help: "Total outgoing messages created",
		},
		[]string{"transport"},
	)

	OutgoingAbandoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsrouter_outgoing_abandoned_total",
			Help: "Total outgoing messages given up on",
		},
		[]string{"transport"},
	)
)

// ObserveRouter counts dispatched requests by outcome. Fatal failures are
// counted as "error".
func ObserveRouter(h *router.Hooks) {
	h.OnPostDispatch(func(_ context.Context, _ message.Request, res router.Result, err error) {
		outcome := res.Outcome.String()
		if err != nil {
			outcome = "error"
		}
		RequestsDispatched.WithLabelValues(outcome).Inc()
	})
}

// ObserveTransport counts messages received by the named transport and
// times their routing.
func ObserveTransport(name string, h *transport.Hooks) {
	var started sync.Map
	h.OnPreRoute(func(_ context.Context, msg message.Incoming) {
		MessagesReceived.WithLabelValues(name).Inc()
		started.Store(msg.ID, time.Now())
	})
	h.OnPostRoute(func(_ context.Context, msg message.Incoming) {
		v, ok := started.LoadAndDelete(msg.ID)
		if !ok {
			return
		}
		RouteDuration.WithLabelValues(name).Observe(time.Since(v.(time.Time)).Seconds())
	})
}

// ObserveStore counts outgoing messages by destination transport.
func ObserveStore(o *store.Observed) {
	o.OnOutgoingCreated(func(_ context.Context, msg *message.Outgoing) {
		OutgoingQueued.WithLabelValues(msg.Connection().Transport()).Inc()
	})
}

// DeadLetter returns a poller observer counting abandoned messages.
func DeadLetter(name string) poller.DeadLetterFunc {
	return func(context.Context, message.Outgoing, error) {
		OutgoingAbandoned.WithLabelValues(name).Inc()
	}
}

// Middleware records HTTP request counts and durations by route path.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			status := strconv.Itoa(c.Response().Status)
			HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
			HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
