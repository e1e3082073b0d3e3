// Package sync runs sync passes from the Notion task capture database into
// the task tables.
//
// A pass reads the cursor, fetches every page edited since it, processes
// the pages one by one and advances the cursor to the newest edit time
// seen. Per-record failures are counted and logged; only failures to read
// the source or the cursor abort a pass.
package sync

import (
	"context"
	"time"

	"github.com/notionsync/notionsync/internal/record"
	"github.com/notionsync/notionsync/internal/store"
)

// Source yields the pages edited at or after since, newest first.
type Source interface {
	FetchSince(ctx context.Context, since time.Time) ([]*record.SourceRecord, error)
}

// LinkWriter writes the task id back onto a source page.
type LinkWriter interface {
	MarkLinked(ctx context.Context, pageID, targetID string) error
}

// Store is the part of store.Store a pass uses.
type Store interface {
	GetCursor(ctx context.Context, source string) (*store.Cursor, error)
	SetCursor(ctx context.Context, c *store.Cursor) error
	GetLink(ctx context.Context, externalID string) (*store.SyncLink, error)
	PutLink(ctx context.Context, l *store.SyncLink) error
	UpsertTask(ctx context.Context, in *store.UpsertInput) (*store.UpsertResult, error)
}

// Vocabulary supplies the current canonical focus-slot list.
type Vocabulary interface {
	FocusSlots() []string
}

// Recorder receives metrics. All methods must be cheap.
type Recorder interface {
	ObserveRecord(outcome string)
	ObservePass(result string, duration time.Duration, cursor time.Time)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRecord(string)                        {}
func (nopRecorder) ObservePass(string, time.Duration, time.Time) {}
