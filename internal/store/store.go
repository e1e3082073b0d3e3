// Package store defines the relational side of the sync: the cursor row,
// the sync link table and the task upsert with implicit hierarchy
// creation.
//
// The upsert resolution algorithm lives in Resolve and runs against the
// HierarchyTx primitives, so each backend (postgres, sqlite) only supplies
// SQL and a transaction boundary.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"
)

// Store is the persistence surface the sync core needs.
type Store interface {
	// GetCursor returns ErrNotFound when source has never been synced.
	GetCursor(ctx context.Context, source string) (*Cursor, error)
	SetCursor(ctx context.Context, c *Cursor) error

	// GetLink returns ErrNotFound when externalID has no link row.
	GetLink(ctx context.Context, externalID string) (*SyncLink, error)
	PutLink(ctx context.Context, l *SyncLink) error

	UpsertTask(ctx context.Context, in *UpsertInput) (*UpsertResult, error)

	Stats(ctx context.Context) (*Stats, error)
	InitSchema(ctx context.Context) error
	Close() error
}

// Cursor is the high-water mark of one sync source.
type Cursor struct {
	Source       string
	LastSyncedAt time.Time
	Payload      json.RawMessage
}

// SyncLink maps a source page to the task it produced.
type SyncLink struct {
	ExternalID  string
	TargetID    string
	ContentHash string
	LastSeenAt  time.Time
}

// UpsertInput carries the upsert parameters. Empty strings and nil dates
// are "not provided": an insert stores null, an update leaves the column
// unchanged.
type UpsertInput struct {
	Title         string
	CategoryKey   string
	ProjectName   string
	MilestoneName string
	Priority      string
	Status        string
	DueDate       *time.Time
	Assignee      string
	SourceID      string
	FocusDate     *time.Time
	FocusSlot     string
}

// UpsertResult identifies the task written and the hierarchy it resolved.
type UpsertResult struct {
	TaskID      string
	Created     bool
	DomainID    string
	VentureID   string
	ProjectID   string
	MilestoneID string
}

// Stats is a snapshot for the status command.
type Stats struct {
	Tasks   int
	Links   int
	Cursors []Cursor
}

// Slug lowercases s and joins its alphanumeric runs with dashes:
// "Acme Labs!" becomes "acme-labs".
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
