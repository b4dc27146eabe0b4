package loopback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/smsrouter/internal/forms"
	"github.com/memohai/smsrouter/internal/router"
	"github.com/memohai/smsrouter/internal/store"
	"github.com/memohai/smsrouter/internal/transport"
)

func newGateway(t *testing.T) (*Gateway, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	reg := router.NewRegistry()
	require.NoError(t, forms.Install(reg))
	table, err := forms.Table(nil)
	require.NoError(t, err)
	r := router.New(st, table, router.WithRegistry(reg))
	base := transport.NewBase(nil, "test", st, r, transport.WithDebug(true))
	return New(base, nil), st
}

func TestConversation(t *testing.T) {
	g, st := newGateway(t)
	ctx := context.Background()
	bob := g.Connect("256703945965")
	defer bob.Close()

	_, ok := bob.Receive()
	assert.False(t, ok)

	msg, err := bob.Send(ctx, "> +reg bob")
	require.NoError(t, err)
	assert.Equal(t, "+reg bob", msg.Text)

	d, ok := bob.Receive()
	require.True(t, ok)
	assert.Equal(t, "Welcome, Bob. You have been registered.", d.Text)
	assert.Equal(t, "256703945965", d.Ident)

	out, err := st.GetOutgoing(ctx, d.OutgoingID)
	require.NoError(t, err)
	assert.True(t, out.Sent())
	assert.True(t, out.Delivered())

	_, err = bob.Send(ctx, "+echo hi +ping")
	require.NoError(t, err)
	var texts []string
	for {
		d, ok := bob.Receive()
		if !ok {
			break
		}
		texts = append(texts, d.Text)
	}
	assert.Equal(t, []string{"hi", "pong"}, texts)
}

func TestReplyWithoutSubscriberIsSentNotDelivered(t *testing.T) {
	g, st := newGateway(t)
	ctx := context.Background()
	msg, err := g.Receive(ctx, "anon", "+ping")
	require.NoError(t, err)

	reqs, err := st.ListRequests(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	replies, err := st.ListReplies(ctx, reqs[0].ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.True(t, replies[0].Sent())
	assert.False(t, replies[0].Delivered())
}

func TestHubSubscriptions(t *testing.T) {
	hub := NewHub()
	id1, ch1, cancel1 := hub.Subscribe("a")
	id2, ch2, cancel2 := hub.Subscribe("a")
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, hub.Subscribers("a"))

	assert.Equal(t, 2, hub.Publish(Delivery{Ident: "a", Text: "x"}))
	assert.Equal(t, 0, hub.Publish(Delivery{Ident: "b", Text: "x"}))
	assert.Equal(t, "x", (<-ch1).Text)
	assert.Equal(t, "x", (<-ch2).Text)

	cancel1()
	cancel1()
	_, open := <-ch1
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers("a"))
	cancel2()
	assert.Zero(t, hub.Subscribers("a"))
}

func TestHubDropsSlowReceivers(t *testing.T) {
	hub := NewHub()
	_, ch, cancel := hub.Subscribe("a")
	defer cancel()
	for range cap(ch) {
		require.Equal(t, 1, hub.Publish(Delivery{Ident: "a"}))
	}
	assert.Equal(t, 0, hub.Publish(Delivery{Ident: "a"}))
}
