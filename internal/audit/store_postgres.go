package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore persists audit events in PostgreSQL for deployments that
// need a durable trail across restarts.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with lib/pq and ensures the audit table exists.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	store := &PostgresStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing connection, e.g. in integration tests.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the audit table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return s.ensureSchema(ctx)
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          UUID PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	call_id     TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	decision    TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_user_idx ON audit_events (user_id, occurred_at);
CREATE INDEX IF NOT EXISTS audit_events_call_idx ON audit_events (call_id, occurred_at);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	const query = `
INSERT INTO audit_events (id, occurred_at, user_id, call_id, action, decision, reason, request_id, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(), event.Timestamp, event.UserID, event.CallID,
		string(event.Action), event.Decision, string(event.Reason),
		event.RequestID, event.Detail,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Event, error) {
	const query = `
SELECT occurred_at, user_id, call_id, action, decision, reason, request_id, detail
FROM audit_events WHERE user_id = $1 ORDER BY occurred_at`
	return s.list(ctx, query, userID)
}

func (s *PostgresStore) ListByCall(ctx context.Context, callID string) ([]Event, error) {
	const query = `
SELECT occurred_at, user_id, call_id, action, decision, reason, request_id, detail
FROM audit_events WHERE call_id = $1 ORDER BY occurred_at`
	return s.list(ctx, query, callID)
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var action, reason string
		if err := rows.Scan(&e.Timestamp, &e.UserID, &e.CallID, &action, &e.Decision, &reason, &e.RequestID, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		e.Reason = Reason(reason)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
