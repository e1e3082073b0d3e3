package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/notionsync/notionsync/internal/store"
)

// hierarchyTx runs the store.Resolve statements inside one transaction.
type hierarchyTx struct {
	tx *sql.Tx
}

var _ store.HierarchyTx = (*hierarchyTx)(nil)

func (h *hierarchyTx) FindVenture(ctx context.Context, key string) (string, string, error) {
	var ventureID, domainID string
	err := h.tx.QueryRowContext(ctx, `
		SELECT id, domain_id FROM ventures
		WHERE lower(name) = lower(?) OR lower(slug) = lower(?) OR slug = ?
		ORDER BY id LIMIT 1`,
		key, key, store.Slug(key),
	).Scan(&ventureID, &domainID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", store.ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	return ventureID, domainID, nil
}

func (h *hierarchyTx) FindDomain(ctx context.Context, key string) (string, error) {
	return h.findID(ctx, `
		SELECT id FROM domains
		WHERE lower(name) = lower(?) OR lower(slug) = lower(?) OR slug = ?
		ORDER BY id LIMIT 1`,
		key, key, store.Slug(key),
	)
}

func (h *hierarchyTx) FindProject(ctx context.Context, domainID, ventureID, name string) (string, error) {
	return h.findID(ctx, `
		SELECT id FROM projects
		WHERE domain_id = ? AND venture_id IS ? AND lower(name) = lower(?)
		ORDER BY id LIMIT 1`,
		domainID, stringToNull(ventureID), name,
	)
}

func (h *hierarchyTx) CreateProject(ctx context.Context, id, domainID, ventureID, name string) error {
	_, err := h.tx.ExecContext(ctx,
		`INSERT INTO projects (id, domain_id, venture_id, name) VALUES (?, ?, ?, ?)`,
		id, domainID, stringToNull(ventureID), name,
	)
	return err
}

func (h *hierarchyTx) FindMilestone(ctx context.Context, projectID, name string) (string, error) {
	return h.findID(ctx, `
		SELECT id FROM milestones
		WHERE project_id = ? AND lower(name) = lower(?)
		ORDER BY id LIMIT 1`,
		projectID, name,
	)
}

func (h *hierarchyTx) CreateMilestone(ctx context.Context, id, projectID, name string) error {
	_, err := h.tx.ExecContext(ctx,
		`INSERT INTO milestones (id, project_id, name) VALUES (?, ?, ?)`,
		id, projectID, name,
	)
	return err
}

func (h *hierarchyTx) FindTaskBySource(ctx context.Context, sourceID string) (string, error) {
	return h.findID(ctx, `SELECT id FROM tasks WHERE source_id = ?`, sourceID)
}

func (h *hierarchyTx) InsertTask(ctx context.Context, row *store.TaskRow) error {
	now := row.Now.Format(time.RFC3339Nano)
	_, err := h.tx.ExecContext(ctx, `
		INSERT INTO tasks (
			id, title, domain_id, venture_id, project_id, milestone_id,
			priority, status, due_date, assignee, source_id,
			focus_date, focus_slot, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, 'P2'), COALESCE(?, 'To Do'), ?, ?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.Title,
		row.DomainID,
		stringToNull(row.VentureID),
		stringToNull(row.ProjectID),
		stringToNull(row.MilestoneID),
		stringToNull(row.Priority),
		stringToNull(row.Status),
		dateToNullString(row.DueDate),
		stringToNull(row.Assignee),
		stringToNull(row.SourceID),
		dateToNullString(row.FocusDate),
		stringToNull(row.FocusSlot),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", row.ID, err)
	}
	return nil
}

func (h *hierarchyTx) UpdateTask(ctx context.Context, row *store.TaskRow) error {
	_, err := h.tx.ExecContext(ctx, `
		UPDATE tasks SET
			title = ?,
			domain_id = ?,
			venture_id = ?,
			project_id = COALESCE(?, project_id),
			milestone_id = COALESCE(?, milestone_id),
			priority = COALESCE(?, priority),
			status = COALESCE(?, status),
			due_date = COALESCE(?, due_date),
			assignee = COALESCE(?, assignee),
			focus_date = COALESCE(?, focus_date),
			focus_slot = COALESCE(?, focus_slot),
			updated_at = ?
		WHERE id = ?`,
		row.Title,
		row.DomainID,
		stringToNull(row.VentureID),
		stringToNull(row.ProjectID),
		stringToNull(row.MilestoneID),
		stringToNull(row.Priority),
		stringToNull(row.Status),
		dateToNullString(row.DueDate),
		stringToNull(row.Assignee),
		dateToNullString(row.FocusDate),
		stringToNull(row.FocusSlot),
		row.Now.Format(time.RFC3339Nano),
		row.ID,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", row.ID, err)
	}
	return nil
}

func (h *hierarchyTx) findID(ctx context.Context, query string, args ...any) (string, error) {
	var id string
	err := h.tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}
