package router

import (
	"context"
	"sync"

	"github.com/memohai/smsrouter/internal/message"
)

// PreDispatchFunc observes a request after it is persisted and before its
// handler runs.
type PreDispatchFunc func(ctx context.Context, req message.Request, h Handler)

// PostDispatchFunc observes a request once its handler has finished. err is
// non-nil only for fatal failures; recoverable outcomes are in res.
type PostDispatchFunc func(ctx context.Context, req message.Request, res Result, err error)

// Hooks holds ordered dispatch observers. Observers run synchronously in
// registration order.
type Hooks struct {
	mu   sync.RWMutex
	pre  []PreDispatchFunc
	post []PostDispatchFunc
}

// OnPreDispatch registers fn.
func (h *Hooks) OnPreDispatch(fn PreDispatchFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.pre = append(h.pre, fn)
	h.mu.Unlock()
}

// OnPostDispatch registers fn.
func (h *Hooks) OnPostDispatch(fn PostDispatchFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.post = append(h.post, fn)
	h.mu.Unlock()
}

func (h *Hooks) preDispatch(ctx context.Context, req message.Request, handler Handler) {
	h.mu.RLock()
	observers := append([]PreDispatchFunc(nil), h.pre...)
	h.mu.RUnlock()
	for _, fn := range observers {
		fn(ctx, req, handler)
	}
}

func (h *Hooks) postDispatch(ctx context.Context, req message.Request, res Result, err error) {
	h.mu.RLock()
	observers := append([]PostDispatchFunc(nil), h.post...)
	h.mu.RUnlock()
	for _, fn := range observers {
		fn(ctx, req, res, err)
	}
}
