// Package sqlite implements store.Store on an embedded SQLite database.
//
// It is the local/dev backend: `store.driver = sqlite` runs the whole sync
// against a single file with no server. The schema mirrors the Postgres
// one, with timestamps stored as RFC3339 text and dates as YYYY-MM-DD.
//
// The database is opened in WAL mode with a busy timeout and foreign keys
// enabled.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/notionsync/notionsync/internal/record"
	"github.com/notionsync/notionsync/internal/store"
)

// DB is a store.Store backed by SQLite.
type DB struct {
	conn *sql.DB
	path string

	now   func() time.Time
	newID func() string
}

var _ store.Store = (*DB)(nil)

// Open creates or opens the database at path. The schema is not created;
// call InitSchema.
//
// The caller must call Close when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Connection-scoped pragmas go in the DSN so every pooled connection
	// gets them, not only the first.
	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:  conn,
		path:  path,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return db, nil
}

// dsn builds the connection string. busy_timeout and foreign_keys are
// per connection in SQLite.
func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	// Best effort; a failed checkpoint leaves the WAL for the next open.
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// IsRetryable reports SQLite lock contention, which clears on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED)
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS domains (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS ventures (
		id TEXT PRIMARY KEY,
		domain_id TEXT NOT NULL REFERENCES domains(id),
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		domain_id TEXT NOT NULL REFERENCES domains(id),
		venture_id TEXT REFERENCES ventures(id),
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS milestones (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		domain_id TEXT NOT NULL REFERENCES domains(id),
		venture_id TEXT REFERENCES ventures(id),
		project_id TEXT REFERENCES projects(id),
		milestone_id TEXT REFERENCES milestones(id),
		priority TEXT NOT NULL DEFAULT 'P2'
			CHECK (priority IN ('P0', 'P1', 'P2', 'P3')),
		status TEXT NOT NULL DEFAULT 'To Do'
			CHECK (status IN ('To Do', 'In Progress', 'Done', 'On Hold')),
		due_date TEXT,
		assignee TEXT,
		source_id TEXT UNIQUE,
		focus_date TEXT,
		focus_slot TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_cursors (
		source TEXT PRIMARY KEY,
		last_synced_at TEXT NOT NULL,
		cursor_payload TEXT
	);

	CREATE TABLE IF NOT EXISTS sync_links (
		external_id TEXT PRIMARY KEY,
		target_id TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		last_seen_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ventures_domain ON ventures(domain_id);
	CREATE INDEX IF NOT EXISTS idx_projects_parent ON projects(domain_id, venture_id);
	CREATE INDEX IF NOT EXISTS idx_milestones_project ON milestones(project_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// GetCursor implements store.Store.
func (db *DB) GetCursor(ctx context.Context, source string) (*store.Cursor, error) {
	var lastSynced string
	var payload sql.NullString

	err := db.conn.QueryRowContext(ctx,
		`SELECT last_synced_at, cursor_payload FROM sync_cursors WHERE source = ?`,
		source,
	).Scan(&lastSynced, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor %s: %w", source, err)
	}

	t, err := time.Parse(time.RFC3339Nano, lastSynced)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cursor %s: %w", source, err)
	}

	c := &store.Cursor{Source: source, LastSyncedAt: t}
	if payload.Valid && payload.String != "" {
		c.Payload = json.RawMessage(payload.String)
	}
	return c, nil
}

// SetCursor implements store.Store.
func (db *DB) SetCursor(ctx context.Context, c *store.Cursor) error {
	query := `
	INSERT INTO sync_cursors (source, last_synced_at, cursor_payload)
	VALUES (?, ?, ?)
	ON CONFLICT(source) DO UPDATE SET
		last_synced_at = excluded.last_synced_at,
		cursor_payload = excluded.cursor_payload
	`

	_, err := db.conn.ExecContext(ctx, query,
		c.Source,
		c.LastSyncedAt.UTC().Format(time.RFC3339Nano),
		rawToNullString(c.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to write cursor %s: %w", c.Source, err)
	}
	return nil
}

// GetLink implements store.Store.
func (db *DB) GetLink(ctx context.Context, externalID string) (*store.SyncLink, error) {
	l := &store.SyncLink{ExternalID: externalID}
	var lastSeen string

	err := db.conn.QueryRowContext(ctx,
		`SELECT target_id, content_hash, last_seen_at FROM sync_links WHERE external_id = ?`,
		externalID,
	).Scan(&l.TargetID, &l.ContentHash, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read link %s: %w", externalID, err)
	}

	if t, err := time.Parse(time.RFC3339Nano, lastSeen); err == nil {
		l.LastSeenAt = t
	}
	return l, nil
}

// PutLink implements store.Store.
func (db *DB) PutLink(ctx context.Context, l *store.SyncLink) error {
	query := `
	INSERT INTO sync_links (external_id, target_id, content_hash, last_seen_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(external_id) DO UPDATE SET
		target_id = excluded.target_id,
		content_hash = excluded.content_hash,
		last_seen_at = excluded.last_seen_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		l.ExternalID,
		l.TargetID,
		l.ContentHash,
		l.LastSeenAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to write link %s: %w", l.ExternalID, err)
	}
	return nil
}

// UpsertTask implements store.Store. The whole resolution runs in one
// transaction.
func (db *DB) UpsertTask(ctx context.Context, in *store.UpsertInput) (*store.UpsertResult, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := store.Resolve(ctx, &hierarchyTx{tx: tx}, in, db.newID, db.now())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return res, nil
}

// Stats implements store.Store.
func (db *DB) Stats(ctx context.Context) (*store.Stats, error) {
	s := &store.Stats{}

	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&s.Tasks); err != nil {
		return nil, fmt.Errorf("failed to get task count: %w", err)
	}
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_links").Scan(&s.Links); err != nil {
		return nil, fmt.Errorf("failed to get link count: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT source, last_synced_at, cursor_payload FROM sync_cursors ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c store.Cursor
		var lastSynced string
		var payload sql.NullString
		if err := rows.Scan(&c.Source, &lastSynced, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan cursor: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, lastSynced); err == nil {
			c.LastSyncedAt = t
		}
		if payload.Valid && payload.String != "" {
			c.Payload = json.RawMessage(payload.String)
		}
		s.Cursors = append(s.Cursors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cursors: %w", err)
	}

	return s, nil
}

// AddDomain creates a domain and returns its id. A domain with the same
// slug is reused.
func (db *DB) AddDomain(ctx context.Context, name string) (string, error) {
	slug := store.Slug(name)
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO domains (id, name, slug) VALUES (?, ?, ?)
		 ON CONFLICT(slug) DO NOTHING`,
		db.newID(), name, slug,
	)
	if err != nil {
		return "", fmt.Errorf("failed to add domain %q: %w", name, err)
	}
	var id string
	if err := db.conn.QueryRowContext(ctx, `SELECT id FROM domains WHERE slug = ?`, slug).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read domain %q: %w", name, err)
	}
	return id, nil
}

// AddVenture creates a venture under domainID and returns its id. A
// venture with the same slug is reused as is.
func (db *DB) AddVenture(ctx context.Context, domainID, name string) (string, error) {
	slug := store.Slug(name)
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO ventures (id, domain_id, name, slug) VALUES (?, ?, ?, ?)
		 ON CONFLICT(slug) DO NOTHING`,
		db.newID(), domainID, name, slug,
	)
	if err != nil {
		return "", fmt.Errorf("failed to add venture %q: %w", name, err)
	}
	var id string
	if err := db.conn.QueryRowContext(ctx, `SELECT id FROM ventures WHERE slug = ?`, slug).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read venture %q: %w", name, err)
	}
	return id, nil
}

// dateToNullString stores a calendar date as YYYY-MM-DD.
func dateToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(record.DateLayout), Valid: true}
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func rawToNullString(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
