package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/smsrouter/internal/message"
)

// Postgres is a Store backed by a pgx connection pool. The schema is owned
// by the migrations in db/migrations.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) GetOrCreateConnection(ctx context.Context, uri string) (message.Connection, bool, error) {
	if err := validURI(uri); err != nil {
		return message.Connection{}, false, err
	}
	tag, err := p.pool.Exec(ctx, `INSERT INTO connections (uri) VALUES ($1) ON CONFLICT (uri) DO NOTHING`, uri)
	if err != nil {
		return message.Connection{}, false, fmt.Errorf("insert connection: %w", err)
	}
	conn, err := p.GetConnection(ctx, uri)
	return conn, tag.RowsAffected() > 0, err
}

func (p *Postgres) GetConnection(ctx context.Context, uri string) (message.Connection, error) {
	var conn message.Connection
	err := p.pool.QueryRow(ctx, `SELECT uri, user_id FROM connections WHERE uri = $1`, uri).
		Scan(&conn.URI, &conn.UserID)
	return conn, pgNotFound(err)
}

func (p *Postgres) FindConnectionByIdent(ctx context.Context, ident string) (message.Connection, error) {
	var conn message.Connection
	err := p.pool.QueryRow(ctx,
		`SELECT uri, user_id FROM connections WHERE right(uri, length($1)) = $1 ORDER BY created_at LIMIT 1`,
		"://"+ident).Scan(&conn.URI, &conn.UserID)
	return conn, pgNotFound(err)
}

func (p *Postgres) LinkConnection(ctx context.Context, uri string, userID int64) error {
	tag, err := p.pool.Exec(ctx, `UPDATE connections SET user_id = $1 WHERE uri = $2`, userID, uri)
	if err != nil {
		return fmt.Errorf("link connection: %w", err)
	}
	return pgExpectRow(tag)
}

func (p *Postgres) CreateUser(ctx context.Context, name string) (message.User, error) {
	user := message.User{Name: name}
	err := p.pool.QueryRow(ctx, `INSERT INTO users (name) VALUES ($1) RETURNING id, created_at`, name).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return message.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (message.User, error) {
	var user message.User
	err := p.pool.QueryRow(ctx, `SELECT id, name, created_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Name, &user.CreatedAt)
	return user, pgNotFound(err)
}

func (p *Postgres) UpdateUserName(ctx context.Context, id int64, name string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE users SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return pgExpectRow(tag)
}

func (p *Postgres) CreateIncoming(ctx context.Context, msg *message.Incoming) error {
	if _, _, err := p.GetOrCreateConnection(ctx, msg.URI); err != nil {
		return err
	}
	msg.Text = message.Truncate(msg.Text)
	err := p.pool.QueryRow(ctx,
		`INSERT INTO incoming (uri, text, time) VALUES ($1, $2, $3) RETURNING id`,
		msg.URI, msg.Text, msg.Time).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert incoming: %w", err)
	}
	return nil
}

func (p *Postgres) GetIncoming(ctx context.Context, id int64) (message.Incoming, error) {
	var msg message.Incoming
	err := p.pool.QueryRow(ctx, `SELECT id, uri, text, time FROM incoming WHERE id = $1`, id).
		Scan(&msg.ID, &msg.URI, &msg.Text, &msg.Time)
	return msg, pgNotFound(err)
}

func (p *Postgres) ListIncoming(ctx context.Context) ([]message.Incoming, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, uri, text, time FROM incoming ORDER BY time DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list incoming: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (message.Incoming, error) {
		var msg message.Incoming
		err := row.Scan(&msg.ID, &msg.URI, &msg.Text, &msg.Time)
		return msg, err
	})
}

func (p *Postgres) CreateRequest(ctx context.Context, req *message.Request) error {
	var slug *string
	if req.RouteSlug != "" {
		slug = &req.RouteSlug
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO requests (message_id, text, route_slug, erroneous) VALUES ($1, $2, $3, $4) RETURNING id`,
		req.MessageID, req.Text, slug, req.Erroneous).Scan(&req.ID)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (p *Postgres) MarkErroneous(ctx context.Context, requestID int64) error {
	tag, err := p.pool.Exec(ctx, `UPDATE requests SET erroneous = TRUE WHERE id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("mark erroneous: %w", err)
	}
	return pgExpectRow(tag)
}

func (p *Postgres) ListRequests(ctx context.Context, messageID int64) ([]message.Request, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, message_id, text, COALESCE(route_slug, ''), erroneous FROM requests WHERE message_id = $1 ORDER BY id`,
		messageID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (message.Request, error) {
		var req message.Request
		err := row.Scan(&req.ID, &req.MessageID, &req.Text, &req.RouteSlug, &req.Erroneous)
		return req, err
	})
}

func (p *Postgres) UpsertRoute(ctx context.Context, route message.Route) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO routes (slug, name) VALUES ($1, $2) ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name`,
		route.Slug, route.Name)
	if err != nil {
		return fmt.Errorf("upsert route: %w", err)
	}
	return nil
}

func (p *Postgres) FindRoute(ctx context.Context, slug string) (message.Route, error) {
	var route message.Route
	err := p.pool.QueryRow(ctx, `SELECT slug, name FROM routes WHERE slug = $1`, slug).Scan(&route.Slug, &route.Name)
	return route, pgNotFound(err)
}

func (p *Postgres) CreateOutgoing(ctx context.Context, msg *message.Outgoing) error {
	if _, _, err := p.GetOrCreateConnection(ctx, msg.URI); err != nil {
		return err
	}
	msg.Text = message.Truncate(msg.Text)
	err := p.pool.QueryRow(ctx,
		`INSERT INTO outgoing (uri, text, time, in_response_to, delivery_id, delivery, abandoned)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		msg.URI, msg.Text, msg.Time, msg.InResponseTo, msg.DeliveryID, msg.Delivery, msg.Abandoned).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert outgoing: %w", err)
	}
	return nil
}

const pgOutgoingColumns = `id, uri, text, time, in_response_to, delivery_id, delivery, abandoned`

func (p *Postgres) GetOutgoing(ctx context.Context, id int64) (message.Outgoing, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+pgOutgoingColumns+` FROM outgoing WHERE id = $1`, id)
	if err != nil {
		return message.Outgoing{}, fmt.Errorf("get outgoing: %w", err)
	}
	msg, err := pgx.CollectExactlyOneRow(rows, scanPgOutgoing)
	return msg, pgNotFound(err)
}

func (p *Postgres) UpdateOutgoing(ctx context.Context, msg message.Outgoing) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE outgoing SET text = $1, time = $2, delivery_id = $3, delivery = $4, abandoned = $5 WHERE id = $6`,
		msg.Text, msg.Time, msg.DeliveryID, msg.Delivery, msg.Abandoned, msg.ID)
	if err != nil {
		return fmt.Errorf("update outgoing: %w", err)
	}
	return pgExpectRow(tag)
}

func (p *Postgres) ListUnsent(ctx context.Context, prefix string) ([]message.Outgoing, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+pgOutgoingColumns+` FROM outgoing
		 WHERE time IS NULL AND abandoned IS NULL AND left(uri, length($1)) = $1 ORDER BY id`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list unsent: %w", err)
	}
	return pgx.CollectRows(rows, scanPgOutgoing)
}

func (p *Postgres) ListReplies(ctx context.Context, requestID int64) ([]message.Outgoing, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+pgOutgoingColumns+` FROM outgoing WHERE in_response_to = $1 ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	return pgx.CollectRows(rows, scanPgOutgoing)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanPgOutgoing(row pgx.CollectableRow) (message.Outgoing, error) {
	var msg message.Outgoing
	err := row.Scan(&msg.ID, &msg.URI, &msg.Text, &msg.Time, &msg.InResponseTo, &msg.DeliveryID, &msg.Delivery, &msg.Abandoned)
	return msg, err
}

func pgNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func pgExpectRow(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
