package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// HierarchyTx is the set of statements Resolve runs inside one
// transaction. Find* methods return ErrNotFound when nothing matches;
// name comparisons are case-insensitive.
type HierarchyTx interface {
	// FindVenture matches key against venture name or slug.
	FindVenture(ctx context.Context, key string) (ventureID, domainID string, err error)
	// FindDomain matches key against domain name or slug.
	FindDomain(ctx context.Context, key string) (domainID string, err error)

	// FindProject looks under the venture when ventureID is set, otherwise
	// among the domain's projects without a venture.
	FindProject(ctx context.Context, domainID, ventureID, name string) (string, error)
	CreateProject(ctx context.Context, id, domainID, ventureID, name string) error

	FindMilestone(ctx context.Context, projectID, name string) (string, error)
	CreateMilestone(ctx context.Context, id, projectID, name string) error

	FindTaskBySource(ctx context.Context, sourceID string) (string, error)
	InsertTask(ctx context.Context, row *TaskRow) error
	// UpdateTask overwrites provided columns and keeps the rest
	// (COALESCE semantics). Domain and venture are one resolved category
	// and are always replaced together.
	UpdateTask(ctx context.Context, row *TaskRow) error
}

// TaskRow is a task write with the hierarchy already resolved.
type TaskRow struct {
	ID          string
	Title       string
	DomainID    string
	VentureID   string
	ProjectID   string
	MilestoneID string
	Priority    string
	Status      string
	DueDate     *time.Time
	Assignee    string
	SourceID    string
	FocusDate   *time.Time
	FocusSlot   string
	Now         time.Time
}

// Resolve performs the upsert against tx:
//
//  1. category key → venture (name or slug), else domain; neither is
//     ErrCategoryNotFound
//  2. project under the venture (or domain), created if absent
//  3. milestone under the project, created if absent
//  4. task by source id → update, otherwise insert
//
// newID supplies ids for created rows.
func Resolve(ctx context.Context, tx HierarchyTx, in *UpsertInput, newID func() string, now time.Time) (*UpsertResult, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.CategoryKey == "" {
		return nil, fmt.Errorf("%w: category is required", ErrInvalidInput)
	}

	res := &UpsertResult{}

	ventureID, domainID, err := tx.FindVenture(ctx, in.CategoryKey)
	switch {
	case err == nil:
		res.VentureID, res.DomainID = ventureID, domainID
	case errors.Is(err, ErrNotFound):
		domainID, err = tx.FindDomain(ctx, in.CategoryKey)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrCategoryNotFound, in.CategoryKey)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up domain: %w", err)
		}
		res.DomainID = domainID
	default:
		return nil, fmt.Errorf("failed to look up venture: %w", err)
	}

	if in.ProjectName != "" {
		id, err := tx.FindProject(ctx, res.DomainID, res.VentureID, in.ProjectName)
		if errors.Is(err, ErrNotFound) {
			id = newID()
			err = tx.CreateProject(ctx, id, res.DomainID, res.VentureID, in.ProjectName)
			if err != nil {
				return nil, fmt.Errorf("failed to create project %q: %w", in.ProjectName, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to look up project: %w", err)
		}
		res.ProjectID = id
	}

	if in.MilestoneName != "" && res.ProjectID != "" {
		id, err := tx.FindMilestone(ctx, res.ProjectID, in.MilestoneName)
		if errors.Is(err, ErrNotFound) {
			id = newID()
			err = tx.CreateMilestone(ctx, id, res.ProjectID, in.MilestoneName)
			if err != nil {
				return nil, fmt.Errorf("failed to create milestone %q: %w", in.MilestoneName, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to look up milestone: %w", err)
		}
		res.MilestoneID = id
	}

	row := &TaskRow{
		Title:       in.Title,
		DomainID:    res.DomainID,
		VentureID:   res.VentureID,
		ProjectID:   res.ProjectID,
		MilestoneID: res.MilestoneID,
		Priority:    in.Priority,
		Status:      in.Status,
		DueDate:     in.DueDate,
		Assignee:    in.Assignee,
		SourceID:    in.SourceID,
		FocusDate:   in.FocusDate,
		FocusSlot:   in.FocusSlot,
		Now:         now.UTC(),
	}

	if in.SourceID != "" {
		id, err := tx.FindTaskBySource(ctx, in.SourceID)
		switch {
		case err == nil:
			row.ID = id
			if err := tx.UpdateTask(ctx, row); err != nil {
				return nil, fmt.Errorf("failed to update task: %w", err)
			}
			res.TaskID = id
			return res, nil
		case !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("failed to look up task: %w", err)
		}
	}

	row.ID = newID()
	if err := tx.InsertTask(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	res.TaskID = row.ID
	res.Created = true
	return res, nil
}
