package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/smsrouter/internal/message"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func TestConnectionGetOrCreate(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conn, created, err := s.GetOrCreateConnection(ctx, "test://alice")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "test://alice", conn.URI)
		assert.Nil(t, conn.UserID)

		_, created, err = s.GetOrCreateConnection(ctx, "test://alice")
		require.NoError(t, err)
		assert.False(t, created)

		_, _, err = s.GetOrCreateConnection(ctx, "  ")
		require.Error(t, err)

		_, err = s.GetConnection(ctx, "test://nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUsersAndLinking(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, _, err := s.GetOrCreateConnection(ctx, "gsm://+4512345678")
		require.NoError(t, err)
		_, _, err = s.GetOrCreateConnection(ctx, "http+sms://4512345678")
		require.NoError(t, err)

		user, err := s.CreateUser(ctx, "Alice")
		require.NoError(t, err)
		require.NoError(t, s.LinkConnection(ctx, "gsm://+4512345678", user.ID))

		conn, err := s.FindConnectionByIdent(ctx, "+4512345678")
		require.NoError(t, err)
		require.NotNil(t, conn.UserID)
		assert.Equal(t, user.ID, *conn.UserID)

		conn, err = s.FindConnectionByIdent(ctx, "4512345678")
		require.NoError(t, err)
		assert.Equal(t, "http+sms://4512345678", conn.URI)

		_, err = s.FindConnectionByIdent(ctx, "999")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.UpdateUserName(ctx, user.ID, "Alice B"))
		got, err := s.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice B", got.Name)

		assert.ErrorIs(t, s.UpdateUserName(ctx, user.ID+100, "x"), ErrNotFound)
	})
}

func TestIncomingAndRequests(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		older := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
		newer := older.Add(time.Hour)

		first := &message.Incoming{URI: "test://1", Text: "+echo a", Time: older}
		second := &message.Incoming{URI: "test://1", Text: "+echo b", Time: newer}
		require.NoError(t, s.CreateIncoming(ctx, first))
		require.NoError(t, s.CreateIncoming(ctx, second))
		assert.NotZero(t, first.ID)

		items, err := s.ListIncoming(ctx)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, second.ID, items[0].ID)
		assert.True(t, items[1].Time.Equal(older))

		require.NoError(t, s.UpsertRoute(ctx, message.Route{Slug: "echo", Name: "Echo"}))
		req := &message.Request{MessageID: first.ID, Text: "+echo a", RouteSlug: "echo"}
		require.NoError(t, s.CreateRequest(ctx, req))
		other := &message.Request{MessageID: first.ID, Text: "b"}
		require.NoError(t, s.CreateRequest(ctx, other))
		require.NoError(t, s.MarkErroneous(ctx, other.ID))

		reqs, err := s.ListRequests(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, reqs, 2)
		assert.Equal(t, "echo", reqs[0].RouteSlug)
		assert.False(t, reqs[0].Erroneous)
		assert.True(t, reqs[1].Erroneous)

		route, err := s.FindRoute(ctx, "echo")
		require.NoError(t, err)
		assert.Equal(t, "Echo", route.Name)
		_, err = s.FindRoute(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestIncomingTextIsTruncated(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		long := make([]rune, message.MaxTextLength+20)
		for i := range long {
			long[i] = 'x'
		}
		msg := &message.Incoming{URI: "test://1", Text: string(long), Time: time.Now()}
		require.NoError(t, s.CreateIncoming(context.Background(), msg))
		got, err := s.GetIncoming(context.Background(), msg.ID)
		require.NoError(t, err)
		assert.Len(t, got.Text, message.MaxTextLength)
	})
}

func TestOutgoingLifecycle(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		in := &message.Incoming{URI: "gsm://123456", Text: "hi", Time: time.Now()}
		require.NoError(t, s.CreateIncoming(ctx, in))
		req := &message.Request{MessageID: in.ID, Text: "hi"}
		require.NoError(t, s.CreateRequest(ctx, req))

		reply := &message.Outgoing{URI: "gsm://123456", Text: "hello", InResponseTo: &req.ID}
		require.NoError(t, s.CreateOutgoing(ctx, reply))
		other := &message.Outgoing{URI: "http+sms://42", Text: "alert"}
		require.NoError(t, s.CreateOutgoing(ctx, other))
		dead := &message.Outgoing{URI: "gsm://654321", Text: "gone"}
		require.NoError(t, s.CreateOutgoing(ctx, dead))

		abandoned := time.Now().UTC()
		dead.Abandoned = &abandoned
		require.NoError(t, s.UpdateOutgoing(ctx, *dead))

		unsent, err := s.ListUnsent(ctx, "gsm://")
		require.NoError(t, err)
		require.Len(t, unsent, 1)
		assert.Equal(t, reply.ID, unsent[0].ID)

		sent := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
		reply.Time = &sent
		reply.DeliveryID = "17"
		require.NoError(t, s.UpdateOutgoing(ctx, *reply))

		got, err := s.GetOutgoing(ctx, reply.ID)
		require.NoError(t, err)
		require.True(t, got.Sent())
		assert.True(t, got.Time.Equal(sent))
		assert.Equal(t, "17", got.DeliveryID)
		assert.False(t, got.Delivered())
		require.NotNil(t, got.InResponseTo)
		assert.Equal(t, req.ID, *got.InResponseTo)

		unsent, err = s.ListUnsent(ctx, "gsm://")
		require.NoError(t, err)
		assert.Empty(t, unsent)

		replies, err := s.ListReplies(ctx, req.ID)
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.True(t, replies[0].IsReply(in.URI))

		_, err = s.GetOutgoing(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.UpdateOutgoing(ctx, message.Outgoing{ID: 9999}), ErrNotFound)
	})
}

func TestObservedNotifiesAfterInsert(t *testing.T) {
	inner := NewMemory()
	observed := NewObserved(inner)

	var seen []int64
	observed.OnOutgoingCreated(func(ctx context.Context, msg *message.Outgoing) {
		_, err := inner.GetOutgoing(ctx, msg.ID)
		require.NoError(t, err)
		now := time.Now()
		msg.Time = &now
		require.NoError(t, inner.UpdateOutgoing(ctx, *msg))
		seen = append(seen, msg.ID)
	})
	observed.OnOutgoingCreated(nil)

	out := &message.Outgoing{URI: "test://1", Text: "x"}
	require.NoError(t, observed.CreateOutgoing(context.Background(), out))
	assert.Equal(t, []int64{out.ID}, seen)
	assert.True(t, out.Sent())

	err := observed.CreateOutgoing(context.Background(), &message.Outgoing{Text: "no uri"})
	require.Error(t, err)
	assert.Len(t, seen, 1)
}
