package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/notionsync/notionsync/internal/store"
)

type hierarchyTx struct {
	tx pgx.Tx
}

var _ store.HierarchyTx = (*hierarchyTx)(nil)

func (h *hierarchyTx) FindVenture(ctx context.Context, key string) (string, string, error) {
	var ventureID, domainID string
	err := h.tx.QueryRow(ctx,
		`SELECT id::text, domain_id::text FROM ventures
		 WHERE lower(name) = lower($1) OR lower(slug) = lower($1) OR slug = $2
		 ORDER BY id LIMIT 1`,
		key, store.Slug(key),
	).Scan(&ventureID, &domainID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", store.ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	return ventureID, domainID, nil
}

func (h *hierarchyTx) FindDomain(ctx context.Context, key string) (string, error) {
	return h.findID(ctx,
		`SELECT id::text FROM domains
		 WHERE lower(name) = lower($1) OR lower(slug) = lower($1) OR slug = $2
		 ORDER BY id LIMIT 1`,
		key, store.Slug(key),
	)
}

func (h *hierarchyTx) FindProject(ctx context.Context, domainID, ventureID, name string) (string, error) {
	return h.findID(ctx,
		`SELECT id::text FROM projects
		 WHERE domain_id = $1::uuid
		   AND venture_id IS NOT DISTINCT FROM $2::uuid
		   AND lower(name) = lower($3)
		 ORDER BY id LIMIT 1`,
		domainID, nullable(ventureID), name,
	)
}

func (h *hierarchyTx) CreateProject(ctx context.Context, id, domainID, ventureID, name string) error {
	_, err := h.tx.Exec(ctx,
		`INSERT INTO projects (id, domain_id, venture_id, name)
		 VALUES ($1::uuid, $2::uuid, $3::uuid, $4)`,
		id, domainID, nullable(ventureID), name,
	)
	return err
}

func (h *hierarchyTx) FindMilestone(ctx context.Context, projectID, name string) (string, error) {
	return h.findID(ctx,
		`SELECT id::text FROM milestones
		 WHERE project_id = $1::uuid AND lower(name) = lower($2)
		 ORDER BY id LIMIT 1`,
		projectID, name,
	)
}

func (h *hierarchyTx) CreateMilestone(ctx context.Context, id, projectID, name string) error {
	_, err := h.tx.Exec(ctx,
		`INSERT INTO milestones (id, project_id, name) VALUES ($1::uuid, $2::uuid, $3)`,
		id, projectID, name,
	)
	return err
}

func (h *hierarchyTx) FindTaskBySource(ctx context.Context, sourceID string) (string, error) {
	return h.findID(ctx, `SELECT id::text FROM tasks WHERE source_id = $1`, sourceID)
}

func (h *hierarchyTx) InsertTask(ctx context.Context, row *store.TaskRow) error {
	_, err := h.tx.Exec(ctx,
		`INSERT INTO tasks (
		   id, title, domain_id, venture_id, project_id, milestone_id,
		   priority, status, due_date, assignee, source_id,
		   focus_date, focus_slot, created_at, updated_at
		 ) VALUES (
		   $1::uuid, $2, $3::uuid, $4::uuid, $5::uuid, $6::uuid,
		   COALESCE($7, 'P2'), COALESCE($8, 'To Do'), $9::date, $10, $11,
		   $12::date, $13, $14, $14
		 )`,
		row.ID,
		row.Title,
		row.DomainID,
		nullable(row.VentureID),
		nullable(row.ProjectID),
		nullable(row.MilestoneID),
		nullable(row.Priority),
		nullable(row.Status),
		row.DueDate,
		nullable(row.Assignee),
		nullable(row.SourceID),
		row.FocusDate,
		nullable(row.FocusSlot),
		row.Now,
	)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", row.ID, err)
	}
	return nil
}

func (h *hierarchyTx) UpdateTask(ctx context.Context, row *store.TaskRow) error {
	_, err := h.tx.Exec(ctx,
		`UPDATE tasks SET
		   title = $2,
		   domain_id = $3::uuid,
		   venture_id = $4::uuid,
		   project_id = COALESCE($5::uuid, project_id),
		   milestone_id = COALESCE($6::uuid, milestone_id),
		   priority = COALESCE($7, priority),
		   status = COALESCE($8, status),
		   due_date = COALESCE($9::date, due_date),
		   assignee = COALESCE($10, assignee),
		   focus_date = COALESCE($11::date, focus_date),
		   focus_slot = COALESCE($12, focus_slot),
		   updated_at = $13
		 WHERE id = $1::uuid`,
		row.ID,
		row.Title,
		row.DomainID,
		nullable(row.VentureID),
		nullable(row.ProjectID),
		nullable(row.MilestoneID),
		nullable(row.Priority),
		nullable(row.Status),
		row.DueDate,
		nullable(row.Assignee),
		row.FocusDate,
		nullable(row.FocusSlot),
		row.Now,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", row.ID, err)
	}
	return nil
}

func (h *hierarchyTx) findID(ctx context.Context, query string, args ...any) (string, error) {
	var id string
	err := h.tx.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}
