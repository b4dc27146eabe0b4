package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/smsrouter/internal/message"
	"github.com/memohai/smsrouter/internal/store"
)

type routerFunc func(ctx context.Context, msg message.Incoming) error

func (f routerFunc) Route(ctx context.Context, msg message.Incoming) error { return f(ctx, msg) }

func TestIncomingStoresAndRoutes(t *testing.T) {
	st := store.NewMemory()
	var routed []message.Incoming
	var events []string
	b := NewBase(nil, "test", st, routerFunc(func(_ context.Context, msg message.Incoming) error {
		events = append(events, "route")
		routed = append(routed, msg)
		return nil
	}))
	b.Hooks().OnPreRoute(func(_ context.Context, msg message.Incoming) {
		events = append(events, "pre:"+msg.Text)
	})
	b.Hooks().OnPostRoute(func(_ context.Context, msg message.Incoming) {
		events = append(events, "post:"+msg.Text)
	})

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg, err := b.Incoming(context.Background(), "256703945965", "hello", at)
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, "test://256703945965", msg.URI)
	assert.True(t, at.Equal(msg.Time))
	assert.Equal(t, []string{"pre:hello", "route", "post:hello"}, events)
	require.Len(t, routed, 1)
	assert.Equal(t, msg.ID, routed[0].ID)

	conn, err := st.GetConnection(context.Background(), "test://256703945965")
	require.NoError(t, err)
	assert.Equal(t, "256703945965", conn.Ident())
}

func TestIncomingDefaultsTime(t *testing.T) {
	now := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	b := NewBase(nil, "test", store.NewMemory(), routerFunc(func(context.Context, message.Incoming) error {
		return nil
	}), WithClock(func() time.Time { return now }))
	msg, err := b.Incoming(context.Background(), "1", "x", time.Time{})
	require.NoError(t, err)
	assert.True(t, now.Equal(msg.Time))
}

func TestIncomingRoutingErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := routerFunc(func(context.Context, message.Incoming) error { return boom })

	t.Run("debug propagates", func(t *testing.T) {
		posts := 0
		b := NewBase(nil, "test", store.NewMemory(), failing, WithDebug(true))
		b.Hooks().OnPostRoute(func(context.Context, message.Incoming) { posts++ })
		msg, err := b.Incoming(context.Background(), "1", "x", time.Time{})
		require.ErrorIs(t, err, boom)
		assert.NotZero(t, msg.ID)
		assert.Equal(t, 1, posts)
	})

	t.Run("production logs", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, nil))
		posts := 0
		b := NewBase(log, "test", store.NewMemory(), failing)
		b.Hooks().OnPostRoute(func(context.Context, message.Incoming) { posts++ })
		msg, err := b.Incoming(context.Background(), "1", "say \"hi\"", time.Time{})
		require.NoError(t, err)
		assert.NotZero(t, msg.ID)
		assert.Equal(t, 1, posts)
		out := buf.String()
		assert.Contains(t, out, "routing failed")
		assert.Contains(t, out, "boom")
		assert.Contains(t, out, "*errors.errorString")
		assert.Contains(t, out, "stack=")
	})

	t.Run("panic is contained", func(t *testing.T) {
		b := NewBase(nil, "test", store.NewMemory(), routerFunc(func(context.Context, message.Incoming) error {
			panic("kaboom")
		}), WithDebug(true))
		_, err := b.Incoming(context.Background(), "1", "x", time.Time{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("panic carries the failing stack", func(t *testing.T) {
		b := NewBase(nil, "test", store.NewMemory(), routerFunc(explodingRoute), WithDebug(true))
		_, err := b.Incoming(context.Background(), "1", "x", time.Time{})
		var panicErr *PanicError
		require.ErrorAs(t, err, &panicErr)
		assert.Equal(t, "kaboom", panicErr.Value)
		assert.Contains(t, string(panicErr.Stack), "goroutine")
		assert.Contains(t, string(panicErr.Stack), "explodingRoute")
		assert.Contains(t, err.Error(), "explodingRoute")
	})

	t.Run("logged panic stack names the failing frame", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, nil))
		b := NewBase(log, "test", store.NewMemory(), routerFunc(explodingRoute))
		_, err := b.Incoming(context.Background(), "1", "x", time.Time{})
		require.NoError(t, err)
		out := buf.String()
		assert.Contains(t, out, "*transport.PanicError")
		assert.Contains(t, out, "explodingRoute")
	})
}

func explodingRoute(context.Context, message.Incoming) error {
	panic("kaboom")
}

func TestOwns(t *testing.T) {
	b := NewBase(nil, "http+sms", store.NewMemory(), nil)
	assert.True(t, b.Owns("http+sms://123"))
	assert.False(t, b.Owns("http://123"))
	assert.False(t, b.Owns("gsm://123"))
}

type fakeTransport struct {
	name     string
	startErr error
	log      *[]string
}

func (f *fakeTransport) Name() string { return f.name }
func (f *fakeTransport) Kind() string { return "fake" }

func (f *fakeTransport) Start(context.Context) error {
	*f.log = append(*f.log, "start:"+f.name)
	return f.startErr
}

func (f *fakeTransport) Stop(context.Context) error {
	*f.log = append(*f.log, "stop:"+f.name)
	return nil
}

func TestRegistry(t *testing.T) {
	var log []string
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeTransport{name: "b", log: &log}))
	require.NoError(t, reg.Register(&fakeTransport{name: "a", log: &log}))
	require.Error(t, reg.Register(&fakeTransport{name: "a", log: &log}))
	require.Error(t, reg.Register(&fakeTransport{name: " ", log: &log}))
	require.Error(t, reg.Register(&fakeTransport{name: "x://y", log: &log}))
	require.Error(t, reg.Register(nil))

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	_, ok := reg.Get("a")
	assert.True(t, ok)
	_, ok = reg.Webhook("a")
	assert.False(t, ok)

	require.NoError(t, reg.StartAll(context.Background()))
	require.NoError(t, reg.StopAll(context.Background()))
	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, log)
}

func TestRegistryStartRollsBack(t *testing.T) {
	var log []string
	reg := NewRegistry()
	reg.MustRegister(&fakeTransport{name: "a", log: &log})
	reg.MustRegister(&fakeTransport{name: "b", log: &log, startErr: errors.New("no device")})
	reg.MustRegister(&fakeTransport{name: "c", log: &log})

	err := reg.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no device")
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, log)
	assert.Panics(t, func() { reg.MustRegister(&fakeTransport{name: "a", log: &log}) })
}
