// Package transport holds what every message transport shares: turning a
// received (ident, text) pair into a stored Incoming message, routing it,
// and the hooks observing that.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/memohai/smsrouter/internal/message"
	"github.com/memohai/smsrouter/internal/store"
)

// Transport is a named message channel with a lifecycle.
type Transport interface {
	Name() string
	Kind() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Webhook is a transport that accepts requests over HTTP. It returns the
// plain-text response body and status code.
type Webhook interface {
	Transport
	HandleWebhook(ctx context.Context, query url.Values) (string, int)
}

// Router routes a stored incoming message.
type Router interface {
	Route(ctx context.Context, msg message.Incoming) error
}

// RouteFunc observes an incoming message around routing.
type RouteFunc func(ctx context.Context, msg message.Incoming)

// Hooks holds ordered route observers.
type Hooks struct {
	mu   sync.RWMutex
	pre  []RouteFunc
	post []RouteFunc
}

// OnPreRoute registers fn to run after the message is stored and before it is routed.
func (h *Hooks) OnPreRoute(fn RouteFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.pre = append(h.pre, fn)
	h.mu.Unlock()
}

// OnPostRoute registers fn to run after routing, whether or not it failed.
func (h *Hooks) OnPostRoute(fn RouteFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.post = append(h.post, fn)
	h.mu.Unlock()
}

func (h *Hooks) fire(ctx context.Context, post bool, msg message.Incoming) {
	h.mu.RLock()
	observers := h.pre
	if post {
		observers = h.post
	}
	observers = append([]RouteFunc(nil), observers...)
	h.mu.RUnlock()
	for _, fn := range observers {
		fn(ctx, msg)
	}
}

// Base implements the incoming half shared by all transports.
type Base struct {
	name   string
	store  store.Store
	router Router
	hooks  *Hooks
	debug  bool
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Base.
type Option func(*Base)

// WithDebug makes routing failures propagate to the caller of Incoming.
func WithDebug(debug bool) Option {
	return func(b *Base) { b.debug = debug }
}

// WithHooks shares a hook set between transports.
func WithHooks(h *Hooks) Option {
	return func(b *Base) {
		if h != nil {
			b.hooks = h
		}
	}
}

// WithClock overrides the clock used for messages without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(b *Base) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBase creates the shared part of a transport named name.
func NewBase(log *slog.Logger, name string, st store.Store, r Router, opts ...Option) *Base {
	if log == nil {
		log = slog.Default()
	}
	b := &Base{
		name:   name,
		store:  st,
		router: r,
		hooks:  &Hooks{},
		now:    time.Now,
		logger: log.With(slog.String("component", "transport"), slog.String("transport", name)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the transport name, the scheme of its connection URIs.
func (b *Base) Name() string { return b.name }

// Store returns the storage collaborator.
func (b *Base) Store() store.Store { return b.store }

// Hooks returns the route observers.
func (b *Base) Hooks() *Hooks { return b.hooks }

// Logger returns the transport logger.
func (b *Base) Logger() *slog.Logger { return b.logger }

// Owns reports whether uri addresses a connection of this transport.
func (b *Base) Owns(uri string) bool {
	return strings.HasPrefix(uri, message.TransportPrefix(b.name))
}

// Incoming stores text received from ident and routes it. A zero at means
// now. Routing errors are returned in debug mode and logged otherwise; the
// post-route hooks run either way.
func (b *Base) Incoming(ctx context.Context, ident, text string, at time.Time) (msg message.Incoming, err error) {
	if at.IsZero() {
		at = b.now()
	}
	uri := message.BuildURI(b.name, ident)
	if _, _, err := b.store.GetOrCreateConnection(ctx, uri); err != nil {
		return msg, fmt.Errorf("connection %s: %w", uri, err)
	}
	msg = message.Incoming{URI: uri, Text: text, Time: at}
	if err := b.store.CreateIncoming(ctx, &msg); err != nil {
		return msg, fmt.Errorf("store incoming: %w", err)
	}

	b.hooks.fire(ctx, false, msg)
	defer b.hooks.fire(ctx, true, msg)

	if routeErr := b.route(ctx, msg); routeErr != nil {
		if b.debug {
			return msg, routeErr
		}
		stack := debug.Stack()
		var panicErr *PanicError
		if errors.As(routeErr, &panicErr) {
			stack = panicErr.Stack
		}
		b.logger.Warn("routing failed",
			slog.String("time", at.Format(time.RFC3339)),
			slog.String("kind", fmt.Sprintf("%T", routeErr)),
			slog.String("text", fmt.Sprintf("%q", msg.Text)),
			slog.Any("error", routeErr),
			slog.String("stack", string(stack)),
		)
	}
	return msg, nil
}

// PanicError is a panic recovered while routing, with the stack of the
// panicking goroutine.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("route panic: %v\n%s", e.Value, e.Stack)
}

func (b *Base) route(ctx context.Context, msg message.Incoming) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return b.router.Route(ctx, msg)
}
