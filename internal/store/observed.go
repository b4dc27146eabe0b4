package store

import (
	"context"
	"sync"

	"github.com/memohai/smsrouter/internal/message"
)

// OutgoingListener runs after an outgoing row has been inserted. It may
// update msg in place; changes must also be persisted through the store.
type OutgoingListener func(ctx context.Context, msg *message.Outgoing)

// Observed decorates a Store and notifies listeners of new outgoing rows,
// letting push-style transports send as soon as a reply is queued.
type Observed struct {
	Store

	mu        sync.RWMutex
	listeners []OutgoingListener
}

// NewObserved wraps inner.
func NewObserved(inner Store) *Observed {
	return &Observed{Store: inner}
}

// OnOutgoingCreated registers fn. Listeners run synchronously in registration order.
func (o *Observed) OnOutgoingCreated(fn OutgoingListener) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	o.listeners = append(o.listeners, fn)
	o.mu.Unlock()
}

func (o *Observed) CreateOutgoing(ctx context.Context, msg *message.Outgoing) error {
	if err := o.Store.CreateOutgoing(ctx, msg); err != nil {
		return err
	}
	o.mu.RLock()
	listeners := append([]OutgoingListener(nil), o.listeners...)
	o.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, msg)
	}
	return nil
}
