// Package postgres implements store.Store on PostgreSQL (Supabase) through
// a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notionsync/notionsync/internal/store"
)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool

	now   func() time.Time
	newID func() string
}

var _ store.Store = (*Store)(nil)

// Open connects a pool to url and pings it.
func Open(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	// Sequential workload; a couple of connections is plenty.
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewStore(pool), nil
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:  pool,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// IsRetryable reports connection-level and serialization failures:
// anything pgconn marks safe to retry, timeouts, SQLSTATE class 08,
// serialization failure, deadlock and admin shutdown.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P01":
			return true
		}
	}
	return false
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS domains (
	id uuid PRIMARY KEY,
	name text NOT NULL,
	slug text NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS ventures (
	id uuid PRIMARY KEY,
	domain_id uuid NOT NULL REFERENCES domains(id),
	name text NOT NULL,
	slug text NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS projects (
	id uuid PRIMARY KEY,
	domain_id uuid NOT NULL REFERENCES domains(id),
	venture_id uuid REFERENCES ventures(id),
	name text NOT NULL
);

CREATE TABLE IF NOT EXISTS milestones (
	id uuid PRIMARY KEY,
	project_id uuid NOT NULL REFERENCES projects(id),
	name text NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id uuid PRIMARY KEY,
	title text NOT NULL,
	domain_id uuid NOT NULL REFERENCES domains(id),
	venture_id uuid REFERENCES ventures(id),
	project_id uuid REFERENCES projects(id),
	milestone_id uuid REFERENCES milestones(id),
	priority text NOT NULL DEFAULT 'P2'
		CHECK (priority IN ('P0', 'P1', 'P2', 'P3')),
	status text NOT NULL DEFAULT 'To Do'
		CHECK (status IN ('To Do', 'In Progress', 'Done', 'On Hold')),
	due_date date,
	assignee text,
	source_id text UNIQUE,
	focus_date date,
	focus_slot text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sync_cursors (
	source text PRIMARY KEY,
	last_synced_at timestamptz NOT NULL,
	cursor_payload jsonb
);

CREATE TABLE IF NOT EXISTS sync_links (
	external_id text PRIMARY KEY,
	target_id text NOT NULL,
	content_hash text NOT NULL,
	last_seen_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ventures_domain ON ventures(domain_id);
CREATE INDEX IF NOT EXISTS idx_projects_parent ON projects(domain_id, venture_id);
CREATE INDEX IF NOT EXISTS idx_milestones_project ON milestones(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority);
`

// GetCursor implements store.Store.
func (s *Store) GetCursor(ctx context.Context, source string) (*store.Cursor, error) {
	c := &store.Cursor{Source: source}
	var payload []byte

	err := s.pool.QueryRow(ctx,
		`SELECT last_synced_at, cursor_payload FROM sync_cursors WHERE source = $1`,
		source,
	).Scan(&c.LastSyncedAt, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cursor %s: %w", source, err)
	}
	if len(payload) > 0 {
		c.Payload = json.RawMessage(payload)
	}
	return c, nil
}

// SetCursor implements store.Store.
func (s *Store) SetCursor(ctx context.Context, c *store.Cursor) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_cursors (source, last_synced_at, cursor_payload)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (source) DO UPDATE SET
		   last_synced_at = EXCLUDED.last_synced_at,
		   cursor_payload = EXCLUDED.cursor_payload`,
		c.Source, c.LastSyncedAt.UTC(), jsonOrNil(c.Payload),
	)
	if err != nil {
		return fmt.Errorf("write cursor %s: %w", c.Source, err)
	}
	return nil
}

// GetLink implements store.Store.
func (s *Store) GetLink(ctx context.Context, externalID string) (*store.SyncLink, error) {
	l := &store.SyncLink{ExternalID: externalID}
	err := s.pool.QueryRow(ctx,
		`SELECT target_id, content_hash, last_seen_at FROM sync_links WHERE external_id = $1`,
		externalID,
	).Scan(&l.TargetID, &l.ContentHash, &l.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read link %s: %w", externalID, err)
	}
	return l, nil
}

// PutLink implements store.Store.
func (s *Store) PutLink(ctx context.Context, l *store.SyncLink) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_links (external_id, target_id, content_hash, last_seen_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (external_id) DO UPDATE SET
		   target_id = EXCLUDED.target_id,
		   content_hash = EXCLUDED.content_hash,
		   last_seen_at = EXCLUDED.last_seen_at`,
		l.ExternalID, l.TargetID, l.ContentHash, l.LastSeenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("write link %s: %w", l.ExternalID, err)
	}
	return nil
}

// UpsertTask implements store.Store inside a single transaction.
func (s *Store) UpsertTask(ctx context.Context, in *store.UpsertInput) (*store.UpsertResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	res, err := store.Resolve(ctx, &hierarchyTx{tx: tx}, in, s.newID, s.now())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return res, nil
}

// Stats implements store.Store.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	st := &store.Stats{}
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM tasks), (SELECT COUNT(*) FROM sync_links)`,
	).Scan(&st.Tasks, &st.Links)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT source, last_synced_at, cursor_payload FROM sync_cursors ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c store.Cursor
		var payload []byte
		if err := rows.Scan(&c.Source, &c.LastSyncedAt, &payload); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		if len(payload) > 0 {
			c.Payload = json.RawMessage(payload)
		}
		st.Cursors = append(st.Cursors, c)
	}
	return st, rows.Err()
}

// AddDomain creates a domain and returns its id. A domain with the same
// slug is reused.
func (s *Store) AddDomain(ctx context.Context, name string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO domains (id, name, slug) VALUES ($1::uuid, $2, $3)
		 ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		 RETURNING id::text`,
		s.newID(), name, store.Slug(name),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("add domain %q: %w", name, err)
	}
	return id, nil
}

// AddVenture creates a venture under domainID and returns its id. A
// venture with the same slug is reused as is.
func (s *Store) AddVenture(ctx context.Context, domainID, name string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ventures (id, domain_id, name, slug) VALUES ($1::uuid, $2::uuid, $3, $4)
		 ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		 RETURNING id::text`,
		s.newID(), domainID, name, store.Slug(name),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("add venture %q: %w", name, err)
	}
	return id, nil
}

func jsonOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
