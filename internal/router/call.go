package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/memohai/smsrouter/internal/message"
	"github.com/memohai/smsrouter/internal/store"
)

// Call is the context of one handler invocation: the message being routed,
// the persisted request for this slice of it, and the named captures of
// the matching pattern.
type Call struct {
	Message  message.Incoming
	Request  message.Request
	Captures map[string]string

	store store.Store
}

// NewCall builds a call bound to st. Used by the engine and by handler tests.
func NewCall(st store.Store, msg message.Incoming, req message.Request, captures map[string]string) *Call {
	if captures == nil {
		captures = map[string]string{}
	}
	return &Call{Message: msg, Request: req, Captures: captures, store: st}
}

// Capture returns the named capture, or "" when the group did not take part.
func (c *Call) Capture(name string) string {
	return c.Captures[name]
}

// Store returns the storage collaborator.
func (c *Call) Store() store.Store {
	return c.store
}

// Connection returns the connection the message arrived on.
func (c *Call) Connection(ctx context.Context) (message.Connection, error) {
	return c.store.GetConnection(ctx, c.Message.URI)
}

// User returns the user linked to the message connection, or nil.
func (c *Call) User(ctx context.Context) (*message.User, error) {
	conn, err := c.Connection(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if conn.UserID == nil {
		return nil, nil
	}
	user, err := c.store.GetUser(ctx, *conn.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Respond queues text for uri, linked to this request. An empty uri
// addresses the connection the message arrived on.
func (c *Call) Respond(ctx context.Context, uri, text string) (message.Outgoing, error) {
	if uri == "" {
		uri = c.Message.URI
	}
	requestID := c.Request.ID
	out := message.Outgoing{
		URI:          uri,
		Text:         text,
		InResponseTo: &requestID,
	}
	if err := c.store.CreateOutgoing(ctx, &out); err != nil {
		return message.Outgoing{}, fmt.Errorf("queue reply: %w", err)
	}
	return out, nil
}
