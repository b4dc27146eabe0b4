package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/memohai/smsrouter/internal/message"
)

// Memory is an in-process Store used by tests, the loopback harness and
// the "memory" storage driver.
type Memory struct {
	mu          sync.RWMutex
	now         func() time.Time
	connections map[string]message.Connection
	connOrder   []string
	users       map[int64]message.User
	incoming    map[int64]message.Incoming
	requests    map[int64]message.Request
	routes      map[string]message.Route
	outgoing    map[int64]message.Outgoing
	seq         int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:         time.Now,
		connections: map[string]message.Connection{},
		users:       map[int64]message.User{},
		incoming:    map[int64]message.Incoming{},
		requests:    map[int64]message.Request{},
		routes:      map[string]message.Route{},
		outgoing:    map[int64]message.Outgoing{},
	}
}

func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *Memory) GetOrCreateConnection(_ context.Context, uri string) (message.Connection, bool, error) {
	if err := validURI(uri); err != nil {
		return message.Connection{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.connections[uri]; ok {
		return conn, false, nil
	}
	conn := message.Connection{URI: uri}
	m.connections[uri] = conn
	m.connOrder = append(m.connOrder, uri)
	return conn, true, nil
}

func (m *Memory) GetConnection(_ context.Context, uri string) (message.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[uri]
	if !ok {
		return message.Connection{}, ErrNotFound
	}
	return conn, nil
}

func (m *Memory) FindConnectionByIdent(_ context.Context, ident string) (message.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	suffix := "://" + ident
	for _, uri := range m.connOrder {
		if strings.HasSuffix(uri, suffix) {
			return m.connections[uri], nil
		}
	}
	return message.Connection{}, ErrNotFound
}

func (m *Memory) LinkConnection(_ context.Context, uri string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[uri]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	conn.UserID = &userID
	m.connections[uri] = conn
	return nil
}

func (m *Memory) CreateUser(_ context.Context, name string) (message.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := message.User{ID: m.nextID(), Name: name, CreatedAt: m.now().UTC()}
	m.users[user.ID] = user
	return user, nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (message.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return message.User{}, ErrNotFound
	}
	return user, nil
}

func (m *Memory) UpdateUserName(_ context.Context, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.Name = name
	m.users[id] = user
	return nil
}

func (m *Memory) CreateIncoming(_ context.Context, msg *message.Incoming) error {
	if err := validURI(msg.URI); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[msg.URI]; !ok {
		m.connections[msg.URI] = message.Connection{URI: msg.URI}
		m.connOrder = append(m.connOrder, msg.URI)
	}
	msg.ID = m.nextID()
	msg.Text = message.Truncate(msg.Text)
	m.incoming[msg.ID] = *msg
	return nil
}

func (m *Memory) GetIncoming(_ context.Context, id int64) (message.Incoming, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.incoming[id]
	if !ok {
		return message.Incoming{}, ErrNotFound
	}
	return msg, nil
}

func (m *Memory) ListIncoming(_ context.Context) ([]message.Incoming, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]message.Incoming, 0, len(m.incoming))
	for _, msg := range m.incoming {
		items = append(items, msg)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Time.Equal(items[j].Time) {
			return items[i].Time.After(items[j].Time)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

func (m *Memory) CreateRequest(_ context.Context, req *message.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incoming[req.MessageID]; !ok {
		return ErrNotFound
	}
	req.ID = m.nextID()
	m.requests[req.ID] = *req
	return nil
}

func (m *Memory) MarkErroneous(_ context.Context, requestID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	req.Erroneous = true
	m.requests[requestID] = req
	return nil
}

func (m *Memory) ListRequests(_ context.Context, messageID int64) ([]message.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []message.Request
	for _, req := range m.requests {
		if req.MessageID == messageID {
			items = append(items, req)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *Memory) UpsertRoute(_ context.Context, route message.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[route.Slug] = route
	return nil
}

func (m *Memory) FindRoute(_ context.Context, slug string) (message.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	route, ok := m.routes[slug]
	if !ok {
		return message.Route{}, ErrNotFound
	}
	return route, nil
}

func (m *Memory) CreateOutgoing(_ context.Context, msg *message.Outgoing) error {
	if err := validURI(msg.URI); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[msg.URI]; !ok {
		m.connections[msg.URI] = message.Connection{URI: msg.URI}
		m.connOrder = append(m.connOrder, msg.URI)
	}
	msg.ID = m.nextID()
	msg.Text = message.Truncate(msg.Text)
	m.outgoing[msg.ID] = *msg
	return nil
}

func (m *Memory) GetOutgoing(_ context.Context, id int64) (message.Outgoing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.outgoing[id]
	if !ok {
		return message.Outgoing{}, ErrNotFound
	}
	return msg, nil
}

func (m *Memory) UpdateOutgoing(_ context.Context, msg message.Outgoing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.outgoing[msg.ID]; !ok {
		return ErrNotFound
	}
	m.outgoing[msg.ID] = msg
	return nil
}

func (m *Memory) ListUnsent(_ context.Context, prefix string) ([]message.Outgoing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []message.Outgoing
	for _, msg := range m.outgoing {
		if msg.Sent() || msg.Abandoned != nil {
			continue
		}
		if strings.HasPrefix(msg.URI, prefix) {
			items = append(items, msg)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *Memory) ListReplies(_ context.Context, requestID int64) ([]message.Outgoing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []message.Outgoing
	for _, msg := range m.outgoing {
		if msg.InResponseTo != nil && *msg.InResponseTo == requestID {
			items = append(items, msg)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *Memory) Close() error { return nil }
