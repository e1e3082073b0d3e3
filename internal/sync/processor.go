package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/notionsync/notionsync/internal/record"
	"github.com/notionsync/notionsync/internal/store"
)

// Outcome classifies what happened to one record.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeUpdated          Outcome = "updated"
	OutcomeSkippedUnchanged Outcome = "skipped_unchanged"
	OutcomeSkippedMissing   Outcome = "skipped_missing_field"
	OutcomePlanned          Outcome = "planned"
	OutcomeError            Outcome = "error"
)

// Result is the outcome of processing one record.
type Result struct {
	Outcome Outcome
	TaskID  string
	Hash    string
	Missing []string
	Err     error
}

// Processor applies the per-record decision procedure.
type Processor struct {
	store    Store
	links    LinkWriter
	vocab    Vocabulary
	required []string
	now      func() time.Time
}

// NewProcessor creates a processor. A nil required list means
// record.DefaultRequired.
func NewProcessor(s Store, links LinkWriter, vocab Vocabulary, required []string) *Processor {
	if required == nil {
		required = record.DefaultRequired
	}
	return &Processor{
		store:    s,
		links:    links,
		vocab:    vocab,
		required: required,
		now:      time.Now,
	}
}

// Process handles one record. It never returns an error: failures become
// an OutcomeError result and are logged here. In dry-run mode nothing is
// written anywhere and records that would be written are OutcomePlanned.
func (p *Processor) Process(ctx context.Context, log *slog.Logger, rec *record.SourceRecord, dryRun bool) Result {
	log = log.With("external_id", rec.ExternalID)

	if rec.Err != nil {
		log.Error("record extraction failed", "title", rec.Title, "error", rec.Err)
		return Result{Outcome: OutcomeError, Err: rec.Err}
	}

	n, drift := record.Normalize(rec, p.vocab.FocusSlots())
	for _, d := range drift {
		log.Warn("value not in canonical vocabulary, stored as null",
			"field", d.Field, "value", d.Value, "title", n.Title)
	}

	if missing := n.Missing(p.required); len(missing) > 0 {
		log.Info("record skipped", "outcome", OutcomeSkippedMissing, "missing", missing, "title", n.Title)
		return Result{Outcome: OutcomeSkippedMissing, Missing: missing}
	}

	hash := n.Hash()
	log = log.With("title", n.Title, "category", n.Category)

	link, err := p.store.GetLink(ctx, rec.ExternalID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		link = nil
	case err != nil:
		log.Error("record failed", "outcome", OutcomeError, "step", "read_link", "error", err)
		return Result{Outcome: OutcomeError, Hash: hash, Err: fmt.Errorf("failed to read sync link: %w", err)}
	}

	if link != nil && link.ContentHash == hash {
		if !rec.IsLinked() {
			log.Debug("page not marked linked but hash is current", "task_id", link.TargetID)
		}
		log.Info("record skipped", "outcome", OutcomeSkippedUnchanged, "task_id", link.TargetID)
		return Result{Outcome: OutcomeSkippedUnchanged, TaskID: link.TargetID, Hash: hash}
	}

	if dryRun {
		action := "create"
		if link != nil {
			action = "update"
		}
		log.Info("record planned", "outcome", OutcomePlanned, "action", action,
			"priority", n.Priority, "status", n.Status, "focus_slot", n.FocusSlot)
		return Result{Outcome: OutcomePlanned, Hash: hash}
	}

	res, err := p.store.UpsertTask(ctx, upsertInput(rec.ExternalID, n))
	if err != nil {
		log.Error("record failed", "outcome", OutcomeError, "step", "upsert", "error", err)
		return Result{Outcome: OutcomeError, Hash: hash, Err: fmt.Errorf("failed to upsert task: %w", err)}
	}

	outcome := OutcomeUpdated
	if res.Created {
		outcome = OutcomeCreated
	}

	err = p.store.PutLink(ctx, &store.SyncLink{
		ExternalID:  rec.ExternalID,
		TargetID:    res.TaskID,
		ContentHash: hash,
		LastSeenAt:  p.now().UTC(),
	})
	if err != nil {
		log.Error("record failed", "outcome", OutcomeError, "step", "put_link", "task_id", res.TaskID, "error", err)
		return Result{Outcome: OutcomeError, TaskID: res.TaskID, Hash: hash, Err: fmt.Errorf("failed to write sync link: %w", err)}
	}

	if !rec.Linked || rec.TargetID != res.TaskID {
		if err := p.links.MarkLinked(ctx, rec.ExternalID, res.TaskID); err != nil {
			log.Warn("link-back failed, page indicator will lag", "task_id", res.TaskID, "error", err)
		}
	}

	log.Info("record synced", "outcome", outcome, "task_id", res.TaskID)
	return Result{Outcome: outcome, TaskID: res.TaskID, Hash: hash}
}

func upsertInput(externalID string, n *record.Normalized) *store.UpsertInput {
	return &store.UpsertInput{
		Title:         n.Title,
		CategoryKey:   n.Category,
		ProjectName:   n.Project,
		MilestoneName: n.Milestone,
		Priority:      n.Priority,
		Status:        n.Status,
		DueDate:       n.Due,
		Assignee:      n.Assignee,
		SourceID:      externalID,
		FocusDate:     n.FocusDate,
		FocusSlot:     n.FocusSlot,
	}
}
