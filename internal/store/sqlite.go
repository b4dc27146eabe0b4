package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/memohai/smsrouter/internal/message"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

const sqliteTimeLayout = time.RFC3339Nano

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating when needed) the database at path and applies the schema.
// The path ":memory:" yields a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) GetOrCreateConnection(ctx context.Context, uri string) (message.Connection, bool, error) {
	if err := validURI(uri); err != nil {
		return message.Connection{}, false, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO connections (uri) VALUES (?) ON CONFLICT(uri) DO NOTHING`, uri)
	if err != nil {
		return message.Connection{}, false, fmt.Errorf("insert connection: %w", err)
	}
	affected, _ := res.RowsAffected()
	conn, err := s.GetConnection(ctx, uri)
	return conn, affected > 0, err
}

func (s *SQLite) GetConnection(ctx context.Context, uri string) (message.Connection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT uri, user_id FROM connections WHERE uri = ?`, uri)
	return scanConnection(row)
}

func (s *SQLite) FindConnectionByIdent(ctx context.Context, ident string) (message.Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT uri, user_id FROM connections WHERE substr(uri, -length(?)) = ? ORDER BY rowid LIMIT 1`,
		"://"+ident, "://"+ident)
	return scanConnection(row)
}

func (s *SQLite) LinkConnection(ctx context.Context, uri string, userID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE connections SET user_id = ? WHERE uri = ?`, userID, uri)
	if err != nil {
		return fmt.Errorf("link connection: %w", err)
	}
	return expectRow(res)
}

func (s *SQLite) CreateUser(ctx context.Context, name string) (message.User, error) {
	user := message.User{Name: name, CreatedAt: s.now().UTC()}
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (name, created_at) VALUES (?, ?)`,
		name, user.CreatedAt.Format(sqliteTimeLayout))
	if err != nil {
		return message.User{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID, err = res.LastInsertId()
	return user, err
}

func (s *SQLite) GetUser(ctx context.Context, id int64) (message.User, error) {
	var (
		user    message.User
		created string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Name, &created)
	if err != nil {
		return message.User{}, notFound(err)
	}
	user.CreatedAt, err = time.Parse(sqliteTimeLayout, created)
	return user, err
}

func (s *SQLite) UpdateUserName(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectRow(res)
}

func (s *SQLite) CreateIncoming(ctx context.Context, msg *message.Incoming) error {
	if err := validURI(msg.URI); err != nil {
		return err
	}
	if _, _, err := s.GetOrCreateConnection(ctx, msg.URI); err != nil {
		return err
	}
	msg.Text = message.Truncate(msg.Text)
	res, err := s.db.ExecContext(ctx, `INSERT INTO incoming (uri, text, time) VALUES (?, ?, ?)`,
		msg.URI, msg.Text, msg.Time.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("insert incoming: %w", err)
	}
	msg.ID, err = res.LastInsertId()
	return err
}

func (s *SQLite) GetIncoming(ctx context.Context, id int64) (message.Incoming, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, uri, text, time FROM incoming WHERE id = ?`, id)
	return scanIncoming(row)
}

func (s *SQLite) ListIncoming(ctx context.Context) ([]message.Incoming, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, uri, text, time FROM incoming ORDER BY time DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list incoming: %w", err)
	}
	defer rows.Close()
	var items []message.Incoming
	for rows.Next() {
		msg, err := scanIncoming(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

func (s *SQLite) CreateRequest(ctx context.Context, req *message.Request) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (message_id, text, route_slug, erroneous) VALUES (?, ?, ?, ?)`,
		req.MessageID, req.Text, nullString(req.RouteSlug), req.Erroneous)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	req.ID, err = res.LastInsertId()
	return err
}

func (s *SQLite) MarkErroneous(ctx context.Context, requestID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE requests SET erroneous = 1 WHERE id = ?`, requestID)
	if err != nil {
		return fmt.Errorf("mark erroneous: %w", err)
	}
	return expectRow(res)
}

func (s *SQLite) ListRequests(ctx context.Context, messageID int64) ([]message.Request, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, text, route_slug, erroneous FROM requests WHERE message_id = ? ORDER BY id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	var items []message.Request
	for rows.Next() {
		var (
			req  message.Request
			slug sql.NullString
		)
		if err := rows.Scan(&req.ID, &req.MessageID, &req.Text, &slug, &req.Erroneous); err != nil {
			return nil, err
		}
		req.RouteSlug = slug.String
		items = append(items, req)
	}
	return items, rows.Err()
}

func (s *SQLite) UpsertRoute(ctx context.Context, route message.Route) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routes (slug, name) VALUES (?, ?) ON CONFLICT(slug) DO UPDATE SET name = excluded.name`,
		route.Slug, route.Name)
	if err != nil {
		return fmt.Errorf("upsert route: %w", err)
	}
	return nil
}

func (s *SQLite) FindRoute(ctx context.Context, slug string) (message.Route, error) {
	var route message.Route
	err := s.db.QueryRowContext(ctx, `SELECT slug, name FROM routes WHERE slug = ?`, slug).Scan(&route.Slug, &route.Name)
	if err != nil {
		return message.Route{}, notFound(err)
	}
	return route, nil
}

func (s *SQLite) CreateOutgoing(ctx context.Context, msg *message.Outgoing) error {
	if err := validURI(msg.URI); err != nil {
		return err
	}
	if _, _, err := s.GetOrCreateConnection(ctx, msg.URI); err != nil {
		return err
	}
	msg.Text = message.Truncate(msg.Text)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outgoing (uri, text, time, in_response_to, delivery_id, delivery, abandoned)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.URI, msg.Text, sqliteTime(msg.Time), msg.InResponseTo, msg.DeliveryID,
		sqliteTime(msg.Delivery), sqliteTime(msg.Abandoned))
	if err != nil {
		return fmt.Errorf("insert outgoing: %w", err)
	}
	msg.ID, err = res.LastInsertId()
	return err
}

const sqliteOutgoingColumns = `id, uri, text, time, in_response_to, delivery_id, delivery, abandoned`

func (s *SQLite) GetOutgoing(ctx context.Context, id int64) (message.Outgoing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteOutgoingColumns+` FROM outgoing WHERE id = ?`, id)
	return scanOutgoing(row)
}

func (s *SQLite) UpdateOutgoing(ctx context.Context, msg message.Outgoing) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outgoing SET text = ?, time = ?, delivery_id = ?, delivery = ?, abandoned = ? WHERE id = ?`,
		msg.Text, sqliteTime(msg.Time), msg.DeliveryID, sqliteTime(msg.Delivery), sqliteTime(msg.Abandoned), msg.ID)
	if err != nil {
		return fmt.Errorf("update outgoing: %w", err)
	}
	return expectRow(res)
}

func (s *SQLite) ListUnsent(ctx context.Context, prefix string) ([]message.Outgoing, error) {
	return s.listOutgoing(ctx,
		`SELECT `+sqliteOutgoingColumns+` FROM outgoing
		 WHERE time IS NULL AND abandoned IS NULL AND substr(uri, 1, length(?)) = ? ORDER BY id`,
		prefix, prefix)
}

func (s *SQLite) ListReplies(ctx context.Context, requestID int64) ([]message.Outgoing, error) {
	return s.listOutgoing(ctx,
		`SELECT `+sqliteOutgoingColumns+` FROM outgoing WHERE in_response_to = ? ORDER BY id`, requestID)
}

func (s *SQLite) listOutgoing(ctx context.Context, query string, args ...any) ([]message.Outgoing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outgoing: %w", err)
	}
	defer rows.Close()
	var items []message.Outgoing
	for rows.Next() {
		msg, err := scanOutgoing(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (message.Connection, error) {
	var (
		conn   message.Connection
		userID sql.NullInt64
	)
	if err := row.Scan(&conn.URI, &userID); err != nil {
		return message.Connection{}, notFound(err)
	}
	if userID.Valid {
		id := userID.Int64
		conn.UserID = &id
	}
	return conn, nil
}

func scanIncoming(row scanner) (message.Incoming, error) {
	var (
		msg message.Incoming
		ts  string
	)
	if err := row.Scan(&msg.ID, &msg.URI, &msg.Text, &ts); err != nil {
		return message.Incoming{}, notFound(err)
	}
	parsed, err := time.Parse(sqliteTimeLayout, ts)
	if err != nil {
		return message.Incoming{}, fmt.Errorf("parse incoming time: %w", err)
	}
	msg.Time = parsed
	return msg, nil
}

func scanOutgoing(row scanner) (message.Outgoing, error) {
	var (
		msg                     message.Outgoing
		sent, delivery, abandon sql.NullString
		inResponseTo            sql.NullInt64
	)
	if err := row.Scan(&msg.ID, &msg.URI, &msg.Text, &sent, &inResponseTo, &msg.DeliveryID, &delivery, &abandon); err != nil {
		return message.Outgoing{}, notFound(err)
	}
	if inResponseTo.Valid {
		id := inResponseTo.Int64
		msg.InResponseTo = &id
	}
	var err error
	if msg.Time, err = parseSQLiteTime(sent); err != nil {
		return message.Outgoing{}, err
	}
	if msg.Delivery, err = parseSQLiteTime(delivery); err != nil {
		return message.Outgoing{}, err
	}
	if msg.Abandoned, err = parseSQLiteTime(abandon); err != nil {
		return message.Outgoing{}, err
	}
	return msg, nil
}

func sqliteTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := time.Parse(sqliteTimeLayout, value.String)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", value.String, err)
	}
	return &t, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func expectRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
