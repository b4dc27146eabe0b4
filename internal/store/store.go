// Package store persists the conversation trail. Implementations exist for
// process memory, SQLite and PostgreSQL; the router and transports depend
// only on the Store interface.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/memohai/smsrouter/internal/message"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the storage collaborator used by the dispatch engine, the
// transports and the operator tooling.
type Store interface {
	// GetOrCreateConnection returns the connection for uri, creating it when
	// absent. created reports whether a row was inserted.
	GetOrCreateConnection(ctx context.Context, uri string) (conn message.Connection, created bool, err error)
	GetConnection(ctx context.Context, uri string) (message.Connection, error)
	// FindConnectionByIdent returns the first connection whose URI ends in "://"+ident.
	FindConnectionByIdent(ctx context.Context, ident string) (message.Connection, error)
	// LinkConnection attaches the connection to a user.
	LinkConnection(ctx context.Context, uri string, userID int64) error

	CreateUser(ctx context.Context, name string) (message.User, error)
	GetUser(ctx context.Context, id int64) (message.User, error)
	UpdateUserName(ctx context.Context, id int64, name string) error

	CreateIncoming(ctx context.Context, msg *message.Incoming) error
	GetIncoming(ctx context.Context, id int64) (message.Incoming, error)
	// ListIncoming returns every incoming message, newest first.
	ListIncoming(ctx context.Context) ([]message.Incoming, error)

	CreateRequest(ctx context.Context, req *message.Request) error
	MarkErroneous(ctx context.Context, requestID int64) error
	// ListRequests returns the requests of a message in creation order.
	ListRequests(ctx context.Context, messageID int64) ([]message.Request, error)

	UpsertRoute(ctx context.Context, route message.Route) error
	FindRoute(ctx context.Context, slug string) (message.Route, error)

	CreateOutgoing(ctx context.Context, msg *message.Outgoing) error
	GetOutgoing(ctx context.Context, id int64) (message.Outgoing, error)
	UpdateOutgoing(ctx context.Context, msg message.Outgoing) error
	// ListUnsent returns unsent, non-abandoned outgoing rows whose URI
	// starts with prefix, oldest first.
	ListUnsent(ctx context.Context, prefix string) ([]message.Outgoing, error)
	// ListReplies returns the outgoing rows linked to a request in creation order.
	ListReplies(ctx context.Context, requestID int64) ([]message.Outgoing, error)

	Close() error
}

func validURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return errors.New("store: connection uri is required")
	}
	return nil
}
