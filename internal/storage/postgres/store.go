package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/rzbill/pulse/internal/storage"
)

// Options configures the Postgres store.
type Options struct {
	// URL is the lib/pq connection string.
	URL string
	// QueryTimeout bounds each storage round-trip. Defaults to 5s.
	QueryTimeout time.Duration
	// MaxOpenConns caps the pool. Zero keeps the driver default.
	MaxOpenConns int
}

// Store implements storage.Store on a *sql.DB pool.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Open creates a connection pool for the given options. Connectivity is not
// verified here; callers ping via Store.Ping.
func Open(opts Options) (*Store, error) {
	if opts.URL == "" {
		return nil, errors.New("postgres: Options.URL is required")
	}
	db, err := sql.Open("postgres", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	return NewWithDB(db, opts.QueryTimeout), nil
}

// NewWithDB wraps an existing pool. Used by tests with a mocked driver.
func NewWithDB(db *sql.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

const insertEventSQL = `INSERT INTO events
	(tenant, session_id, anon_id, user_id, name, props, ts_ms, received_at_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// InsertEventsBatch writes events in order inside one transaction, one
// savepoint per row: a row the database rejects is rolled back individually
// while the rest of the batch proceeds. Returns the number of rows persisted.
func (s *Store) InsertEventsBatch(ctx context.Context, events []storage.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	receivedAt := time.Now().UnixMilli()
	persisted := 0
	var lastErr error
	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT row_insert"); err != nil {
			return 0, fmt.Errorf("savepoint: %w", err)
		}
		_, err := tx.ExecContext(ctx, insertEventSQL,
			ev.Tenant, ev.SessionID, ev.AnonID, ev.UserID,
			ev.Name, ev.Props, ev.Ts, receivedAt)
		if err != nil {
			lastErr = err
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT row_insert"); rbErr != nil {
				return 0, fmt.Errorf("rollback to savepoint: %w", rbErr)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT row_insert"); err != nil {
			return 0, fmt.Errorf("release savepoint: %w", err)
		}
		persisted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	if persisted == 0 && lastErr != nil {
		return 0, fmt.Errorf("no events persisted: %w", lastErr)
	}
	return persisted, nil
}

// UpsertIdentify writes an identity link with last-write-wins semantics on
// (tenant, anon_id).
func (s *Store) UpsertIdentify(ctx context.Context, tenant, anonID, userID, traits string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `INSERT INTO identities
		(tenant, anon_id, user_id, traits, updated_at_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant, anon_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			traits = EXCLUDED.traits,
			updated_at_ms = EXCLUDED.updated_at_ms`,
		tenant, anonID, userID, traits, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert identify: %w", err)
	}
	return nil
}

// UpsertSession records a session at connection open; reconnects on the same
// session id only bump last-seen.
func (s *Store) UpsertSession(ctx context.Context, tenant, sessionID, anonID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions
		(session_id, tenant, anon_id, user_id, event_count, started_at_ms, last_seen_ms)
		VALUES ($1, $2, $3, '', 0, $4, $4)
		ON CONFLICT (session_id) DO UPDATE SET last_seen_ms = EXCLUDED.last_seen_ms`,
		sessionID, tenant, anonID, now)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// TouchSession bumps the event count and last-activity timestamp.
func (s *Store) TouchSession(ctx context.Context, sessionID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET event_count = event_count + 1, last_seen_ms = $2 WHERE session_id = $1`,
		sessionID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// SetSessionUser links a known user id to a session.
func (s *Store) SetSessionUser(ctx context.Context, sessionID, userID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET user_id = $2 WHERE session_id = $1`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("set session user: %w", err)
	}
	return nil
}

// FlagsGroupedByTenant loads all flags ordered by tenant and key.
func (s *Store) FlagsGroupedByTenant(ctx context.Context) (map[string][]storage.Flag, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant, key, name, enabled, updated_at_ms FROM flags ORDER BY tenant, key`)
	if err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}
	defer rows.Close()

	out := map[string][]storage.Flag{}
	for rows.Next() {
		var f storage.Flag
		if err := rows.Scan(&f.Tenant, &f.Key, &f.Name, &f.Enabled, &f.UpdatedAtMs); err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		out[f.Tenant] = append(out[f.Tenant], f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flags: %w", err)
	}
	return out, nil
}

// SetFlagEnabled persists a new enabled value and returns the updated flag.
func (s *Store) SetFlagEnabled(ctx context.Context, tenant, key string, enabled bool) (storage.Flag, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var f storage.Flag
	err := s.db.QueryRowContext(ctx,
		`UPDATE flags SET enabled = $3, updated_at_ms = $4
		 WHERE tenant = $1 AND key = $2
		 RETURNING tenant, key, name, enabled, updated_at_ms`,
		tenant, key, enabled, time.Now().UnixMilli()).
		Scan(&f.Tenant, &f.Key, &f.Name, &f.Enabled, &f.UpdatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Flag{}, storage.ErrFlagNotFound
	}
	if err != nil {
		return storage.Flag{}, fmt.Errorf("set flag enabled: %w", err)
	}
	return f, nil
}

// EnsureSchema creates the tables if they do not exist. Intended for dev and
// test setups; production schemas are managed externally.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			tenant TEXT NOT NULL,
			session_id TEXT NOT NULL,
			anon_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			props TEXT NOT NULL DEFAULT '{}',
			ts_ms BIGINT NOT NULL DEFAULT 0,
			received_at_ms BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS identities (
			tenant TEXT NOT NULL,
			anon_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			traits TEXT NOT NULL DEFAULT '{}',
			updated_at_ms BIGINT NOT NULL,
			PRIMARY KEY (tenant, anon_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			tenant TEXT NOT NULL,
			anon_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			event_count BIGINT NOT NULL DEFAULT 0,
			started_at_ms BIGINT NOT NULL,
			last_seen_ms BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS flags (
			tenant TEXT NOT NULL,
			key TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at_ms BIGINT NOT NULL,
			PRIMARY KEY (tenant, key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
