package router

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Handler serves one route activation.
type Handler interface {
	Handle(ctx context.Context, call *Call) (Result, error)
}

// Named is implemented by handlers that label their route explicitly.
type Named interface {
	Name() string
}

// HandlerFunc adapts a function into a named Handler. Use Func so the
// handler is a pointer and has a stable identity.
type HandlerFunc struct {
	name string
	fn   func(ctx context.Context, call *Call) (Result, error)
}

// Func returns a handler named name that calls fn.
func Func(name string, fn func(ctx context.Context, call *Call) (Result, error)) *HandlerFunc {
	return &HandlerFunc{name: name, fn: fn}
}

func (h *HandlerFunc) Name() string { return h.name }

func (h *HandlerFunc) Handle(ctx context.Context, call *Call) (Result, error) {
	return h.fn(ctx, call)
}

// HandlerName returns the label used for a handler's Route.
func HandlerName(h Handler) string {
	if n, ok := h.(Named); ok {
		if name := strings.TrimSpace(n.Name()); name != "" {
			return name
		}
	}
	t := reflect.TypeOf(h)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Registry maps dotted symbol paths to handlers. Routing tables refer to
// handlers by path; paths are resolved once, when a table is compiled.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: map[string]Handler{},
	}
}

// Register adds a handler under path, which must look like "package.Symbol".
func (r *Registry) Register(path string, h Handler) error {
	if h == nil {
		return errors.New("handler is nil")
	}
	path = strings.TrimSpace(path)
	if err := validSymbol(path); err != nil {
		return err
	}
	if !reflect.TypeOf(h).Comparable() {
		return fmt.Errorf("handler for %s is not comparable: %T", path, h)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[path]; exists {
		return fmt.Errorf("symbol already registered: %s", path)
	}
	r.handlers[path] = h
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(path string, h Handler) {
	if err := r.Register(path, h); err != nil {
		panic(err)
	}
}

// Resolve returns the handler registered under path.
func (r *Registry) Resolve(path string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.TrimSpace(path)]
	return h, ok
}

// Symbols returns all registered paths in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]string, 0, len(r.handlers))
	for path := range r.handlers {
		items = append(items, path)
	}
	sort.Strings(items)
	return items
}

func validSymbol(path string) error {
	module, symbol, ok := strings.Cut(path, ".")
	if !ok || module == "" || symbol == "" || strings.HasSuffix(path, ".") {
		return fmt.Errorf("must be on the form <module_path>.<symbol_name> (got: %s)", path)
	}
	return nil
}
