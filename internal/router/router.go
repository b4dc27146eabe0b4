// Package router compiles routing tables and dispatches message text to
// handlers. A message is split into requests, one per matching table entry;
// each request is persisted, handled and answered in order.
package router

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime/debug"

	"github.com/gosimple/slug"

	"github.com/memohai/smsrouter/internal/message"
	"github.com/memohai/smsrouter/internal/store"
)

// Router dispatches incoming messages through a routing table.
type Router struct {
	store    store.Store
	registry *Registry
	cache    *Cache
	table    Table
	hooks    *Hooks
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithRegistry sets the registry used to resolve symbol references.
func WithRegistry(reg *Registry) Option {
	return func(r *Router) { r.registry = reg }
}

// WithCache shares a compile cache between routers.
func WithCache(c *Cache) Option {
	return func(r *Router) { r.cache = c }
}

// WithLogger sets the router logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) {
		if log != nil {
			r.logger = log.With(slog.String("component", "router"))
		}
	}
}

// New creates a router for table backed by st.
func New(st store.Store, table Table, opts ...Option) *Router {
	r := &Router{
		store:    st,
		registry: NewRegistry(),
		cache:    NewCache(),
		table:    table,
		hooks:    &Hooks{},
		logger:   slog.Default().With(slog.String("component", "router")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hooks returns the dispatch observers.
func (r *Router) Hooks() *Hooks { return r.hooks }

// Cache returns the compile cache.
func (r *Router) Cache() *Cache { return r.cache }

// Table returns the configured routing table.
func (r *Router) Table() Table { return r.table }

// Compile compiles the configured table, surfacing configuration errors early.
func (r *Router) Compile() (*Compiled, error) {
	return r.cache.Get(r.table, r.registry)
}

// Split yields the matches of text against the configured table.
func (r *Router) Split(text string) (iter.Seq[Match], error) {
	compiled, err := r.Compile()
	if err != nil {
		return nil, err
	}
	return compiled.Split(text), nil
}

// SyncRoutes stores a Route label for every handler in the table so that
// requests can be classified.
func (r *Router) SyncRoutes(ctx context.Context) error {
	compiled, err := r.Compile()
	if err != nil {
		return err
	}
	for _, h := range compiled.Handlers() {
		name := HandlerName(h)
		if err := r.store.UpsertRoute(ctx, message.Route{Slug: slug.Make(name), Name: name}); err != nil {
			return fmt.Errorf("store route %s: %w", name, err)
		}
	}
	return nil
}

// Route dispatches msg through the configured table.
func (r *Router) Route(ctx context.Context, msg message.Incoming) error {
	return r.RouteTable(ctx, msg, r.table)
}

// RouteTable dispatches msg through table. Format failures mark the request
// erroneous and routing continues; a stop ends routing; any other handler
// error ends routing and is returned.
func (r *Router) RouteTable(ctx context.Context, msg message.Incoming, table Table) error {
	compiled, err := r.cache.Get(table, r.registry)
	if err != nil {
		return err
	}
	for match := range compiled.Split(msg.Text) {
		stop, err := r.dispatch(ctx, msg, match)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

func (r *Router) dispatch(ctx context.Context, msg message.Incoming, match Match) (bool, error) {
	req := message.Request{
		MessageID: msg.ID,
		Text:      match.Text,
		RouteSlug: r.routeSlug(ctx, match.Name),
	}
	if err := r.store.CreateRequest(ctx, &req); err != nil {
		return false, fmt.Errorf("store request: %w", err)
	}

	r.hooks.preDispatch(ctx, req, match.Handler)

	call := NewCall(r.store, msg, req, match.Captures)
	res, reply, hasReply, err := invoke(ctx, match, call)
	if err != nil {
		err = fmt.Errorf("handler %s: %w", match.Name, err)
		r.hooks.postDispatch(ctx, req, res, err)
		return false, err
	}

	if res.Outcome == OutcomeFormatFailure {
		if err := r.store.MarkErroneous(ctx, req.ID); err != nil {
			err = fmt.Errorf("mark request erroneous: %w", err)
			r.hooks.postDispatch(ctx, req, res, err)
			return false, err
		}
		req.Erroneous = true
	}
	if hasReply {
		if _, err := call.Respond(ctx, msg.URI, reply); err != nil {
			r.hooks.postDispatch(ctx, req, res, err)
			return false, err
		}
	}

	r.logger.Debug("request dispatched",
		slog.Int64("request_id", req.ID),
		slog.String("handler", match.Name),
		slog.String("outcome", res.Outcome.String()),
		slog.Bool("reply", hasReply),
	)
	r.hooks.postDispatch(ctx, req, res, nil)
	return res.Outcome == OutcomeStop, nil
}

func (r *Router) routeSlug(ctx context.Context, name string) string {
	s := slug.Make(name)
	if s == "" {
		return ""
	}
	route, err := r.store.FindRoute(ctx, s)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("route lookup failed", slog.String("slug", s), slog.Any("error", err))
		}
		return ""
	}
	return route.Slug
}

// invoke runs the handler and resolves its reply. Format and stop errors
// become the matching outcomes; panics become errors.
func invoke(ctx context.Context, match Match, call *Call) (res Result, reply string, hasReply bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	res, err = match.Handler.Handle(ctx, call)
	if err != nil {
		var formatErr *FormatError
		var stopErr *StopError
		switch {
		case errors.As(err, &formatErr):
			res, err = FormatFailure(), nil
			if formatErr.Text != "" {
				res = FormatFailure(formatErr.Text)
			}
		case errors.As(err, &stopErr):
			res, err = Stop(), nil
			if stopErr.Text != "" {
				res = Stop(stopErr.Text)
			}
		default:
			return res, "", false, err
		}
	}
	reply, hasReply = res.ReplyText()
	return res, reply, hasReply, nil
}
