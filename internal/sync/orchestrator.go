package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/notionsync/notionsync/internal/observe"
	"github.com/notionsync/notionsync/internal/store"
)

// DefaultSource is the cursor key of the Notion task capture database.
const DefaultSource = "notion_tasks"

// State names the step a pass is in. Failures are reported with it.
type State string

const (
	StateReadCursor     State = "read_cursor"
	StateFetchPages     State = "fetch_pages"
	StateProcessRecords State = "process_records"
	StateAdvanceCursor  State = "advance_cursor"
	StateDone           State = "done"
)

// Config controls pass behavior.
type Config struct {
	// Source is the cursor row key.
	Source string

	// Lookback is how far back the first pass (no stored cursor) reads.
	Lookback time.Duration

	// ErrorAlertRatio is the errored/fetched ratio above which the pass
	// summary is logged at error level.
	ErrorAlertRatio float64

	// Required lists the fields a record must carry to be written.
	Required []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Source:          DefaultSource,
		Lookback:        time.Hour,
		ErrorAlertRatio: 0.5,
	}
}

// RunOptions are the per-pass switches.
type RunOptions struct {
	// DryRun performs every read and decision but no write.
	DryRun bool

	// Since overrides the stored cursor for this pass.
	Since *time.Time
}

// Summary describes one finished (or failed) pass.
type Summary struct {
	PassID           string
	DryRun           bool
	Since            time.Time
	Fetched          int
	Created          int
	Updated          int
	SkippedUnchanged int
	SkippedMissing   int
	Errored          int
	Planned          int

	// Cursor is the cursor after the pass; CursorAdvanced reports whether
	// it was written.
	Cursor         time.Time
	CursorAdvanced bool

	Duration time.Duration
}

// Skipped returns both kinds of skipped records.
func (s *Summary) Skipped() int {
	return s.SkippedUnchanged + s.SkippedMissing
}

func (s *Summary) add(r Result) {
	switch r.Outcome {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeSkippedUnchanged:
		s.SkippedUnchanged++
	case OutcomeSkippedMissing:
		s.SkippedMissing++
	case OutcomePlanned:
		s.Planned++
	case OutcomeError:
		s.Errored++
	}
}

// Orchestrator runs sync passes. It is not safe for concurrent passes;
// callers serialize them (see runlock).
type Orchestrator struct {
	source  Source
	store   Store
	proc    *Processor
	config  *Config
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time
}

// Deps groups the collaborators of an Orchestrator.
type Deps struct {
	Source     Source
	Store      Store
	LinkWriter LinkWriter
	Vocabulary Vocabulary
	Logger     *slog.Logger
	Metrics    Recorder
}

// New creates an orchestrator. A nil config uses DefaultConfig.
func New(deps Deps, config *Config) (*Orchestrator, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.LinkWriter == nil {
		return nil, fmt.Errorf("link writer cannot be nil")
	}
	if deps.Vocabulary == nil {
		return nil, fmt.Errorf("vocabulary cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Source == "" {
		return nil, fmt.Errorf("cursor source cannot be empty")
	}
	if config.Lookback < 0 {
		return nil, fmt.Errorf("lookback cannot be negative")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}

	return &Orchestrator{
		source:  deps.Source,
		store:   deps.Store,
		proc:    NewProcessor(deps.Store, deps.LinkWriter, deps.Vocabulary, config.Required),
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// Run executes one pass. Per-record failures do not fail the pass; they
// are counted in the summary. An error is returned only when the cursor
// cannot be read or written, the source cannot be queried, or ctx ends.
// The summary is returned in both cases.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	start := o.now()
	sum := &Summary{PassID: uuid.NewString(), DryRun: opts.DryRun}
	log := o.logger.With("pass_id", sum.PassID)

	fail := func(state State, err error) (*Summary, error) {
		sum.Duration = o.now().Sub(start)
		log.Log(ctx, observe.LevelFatal, "sync pass failed",
			"state", state, "error", err, "fetched", sum.Fetched, "duration", sum.Duration)
		o.metrics.ObservePass("failed", sum.Duration, sum.Cursor)
		return sum, fmt.Errorf("sync pass failed in %s: %w", state, err)
	}

	stored, err := o.readCursor(ctx)
	if err != nil {
		return fail(StateReadCursor, err)
	}
	switch {
	case opts.Since != nil:
		sum.Since = opts.Since.UTC()
	case stored != nil:
		sum.Since = *stored
	default:
		sum.Since = start.Add(-o.config.Lookback).UTC()
	}
	if stored != nil {
		sum.Cursor = *stored
	}

	log.Info("sync pass started", "since", sum.Since, "dry_run", opts.DryRun)

	records, err := o.source.FetchSince(ctx, sum.Since)
	if err != nil {
		return fail(StateFetchPages, err)
	}
	sum.Fetched = len(records)

	var newest time.Time
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return fail(StateProcessRecords, err)
		}
		if rec.LastModified.After(newest) {
			newest = rec.LastModified
		}
		res := o.proc.Process(ctx, log, rec, opts.DryRun)
		sum.add(res)
		o.metrics.ObserveRecord(string(res.Outcome))
	}

	if len(records) > 0 && !opts.DryRun {
		next := newest.UTC()
		if opts.Since == nil && stored != nil && next.Before(*stored) {
			next = *stored
		}
		if err := o.writeCursor(ctx, next, sum); err != nil {
			return fail(StateAdvanceCursor, err)
		}
		sum.Cursor = next
		sum.CursorAdvanced = true
	}

	sum.Duration = o.now().Sub(start)
	attrs := []any{
		"state", StateDone,
		"since", sum.Since,
		"fetched", sum.Fetched,
		"created", sum.Created,
		"updated", sum.Updated,
		"skipped_unchanged", sum.SkippedUnchanged,
		"skipped_missing", sum.SkippedMissing,
		"errored", sum.Errored,
		"planned", sum.Planned,
		"cursor", sum.Cursor,
		"cursor_advanced", sum.CursorAdvanced,
		"duration", sum.Duration,
	}
	if o.errorRateExceeded(sum) {
		log.Error("sync pass finished with high error rate", attrs...)
	} else {
		log.Info("sync pass finished", attrs...)
	}

	result := "ok"
	if sum.Errored > 0 {
		result = "partial"
	}
	o.metrics.ObservePass(result, sum.Duration, sum.Cursor)
	return sum, nil
}

func (o *Orchestrator) readCursor(ctx context.Context) (*time.Time, error) {
	c, err := o.store.GetCursor(ctx, o.config.Source)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor: %w", err)
	}
	t := c.LastSyncedAt.UTC()
	return &t, nil
}

func (o *Orchestrator) writeCursor(ctx context.Context, at time.Time, sum *Summary) error {
	payload, err := json.Marshal(map[string]any{
		"pass_id": sum.PassID,
		"fetched": sum.Fetched,
		"errored": sum.Errored,
	})
	if err != nil {
		return fmt.Errorf("failed to encode cursor payload: %w", err)
	}
	err = o.store.SetCursor(ctx, &store.Cursor{
		Source:       o.config.Source,
		LastSyncedAt: at,
		Payload:      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to write cursor: %w", err)
	}
	return nil
}

func (o *Orchestrator) errorRateExceeded(sum *Summary) bool {
	if sum.Fetched == 0 || o.config.ErrorAlertRatio <= 0 {
		return false
	}
	return float64(sum.Errored)/float64(sum.Fetched) > o.config.ErrorAlertRatio
}
