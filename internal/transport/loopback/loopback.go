// Package loopback is an in-process transport: clients send text straight
// into the router and receive replies through a hub, with no network in
// between. It backs the CLI and end-to-end tests.
package loopback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/smsrouter/internal/config"
	"github.com/memohai/smsrouter/internal/message"
	"github.com/memohai/smsrouter/internal/transport"
)

// Gateway is the loopback transport.
type Gateway struct {
	*transport.Base

	hub *Hub
	now func() time.Time
}

// New creates a gateway publishing replies on hub. A nil hub gets a fresh one.
func New(base *transport.Base, hub *Hub) *Gateway {
	if hub == nil {
		hub = NewHub()
	}
	return &Gateway{Base: base, hub: hub, now: time.Now}
}

func (g *Gateway) Kind() string { return config.KindLoopback }

func (g *Gateway) Start(context.Context) error { return nil }

func (g *Gateway) Stop(context.Context) error { return nil }

// Hub returns the hub replies are published on.
func (g *Gateway) Hub() *Hub { return g.hub }

// Receive routes text from ident and delivers every resulting outgoing
// message of this transport to its subscribers.
func (g *Gateway) Receive(ctx context.Context, ident, text string) (message.Incoming, error) {
	return g.ReceiveAt(ctx, ident, text, time.Time{})
}

// ReceiveAt is Receive for a message with a known timestamp. A zero time
// means now.
func (g *Gateway) ReceiveAt(ctx context.Context, ident, text string, at time.Time) (message.Incoming, error) {
	msg, err := g.Incoming(ctx, ident, text, at)
	if err != nil {
		return msg, err
	}
	reqs, err := g.Store().ListRequests(ctx, msg.ID)
	if err != nil {
		return msg, err
	}
	for _, req := range reqs {
		replies, err := g.Store().ListReplies(ctx, req.ID)
		if err != nil {
			return msg, err
		}
		for _, out := range replies {
			if !g.Owns(out.URI) {
				continue
			}
			if err := g.deliver(ctx, out); err != nil {
				return msg, err
			}
		}
	}
	return msg, nil
}

func (g *Gateway) deliver(ctx context.Context, out message.Outgoing) error {
	_, ident, _ := message.SplitURI(out.URI)
	now := g.now()
	n := g.hub.Publish(Delivery{OutgoingID: out.ID, Ident: ident, Text: out.Text, Time: now})
	if out.Time == nil {
		out.Time = &now
	}
	if n > 0 {
		out.Delivery = &now
	} else {
		g.Logger().Debug("no subscriber for reply", slog.String("ident", ident), slog.Int64("outgoing_id", out.ID))
	}
	if err := g.Store().UpdateOutgoing(ctx, out); err != nil {
		return fmt.Errorf("store delivery: %w", err)
	}
	return nil
}

// Client is one local connection to a Gateway.
type Client struct {
	gateway *Gateway
	ident   string
	inbox   <-chan Delivery
	cancel  func()
}

// Connect subscribes a client for ident.
func (g *Gateway) Connect(ident string) *Client {
	_, inbox, cancel := g.hub.Subscribe(ident)
	return &Client{gateway: g, ident: ident, inbox: inbox, cancel: cancel}
}

// Ident returns the client's ident.
func (c *Client) Ident() string { return c.ident }

// Send routes text as if typed on the client's device. A leading "> "
// prompt is stripped.
func (c *Client) Send(ctx context.Context, text string) (message.Incoming, error) {
	return c.gateway.Receive(ctx, c.ident, strings.TrimLeft(text, "> "))
}

// Receive pops the oldest delivery, or returns false when none is waiting.
func (c *Client) Receive() (Delivery, bool) {
	select {
	case d, ok := <-c.inbox:
		return d, ok
	default:
		return Delivery{}, false
	}
}

// Close unsubscribes the client.
func (c *Client) Close() {
	c.cancel()
}
