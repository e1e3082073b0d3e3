package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeVenture struct{ id, domainID, name, slug string }
type fakeProject struct{ id, domainID, ventureID, name string }
type fakeMilestone struct{ id, projectID, name string }

// fakeTx is an in-memory HierarchyTx.
type fakeTx struct {
	domains    map[string]string // id -> name
	ventures   []fakeVenture
	projects   []fakeProject
	milestones []fakeMilestone
	tasks      map[string]*TaskRow // id -> row
	failFind   error
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		domains: map[string]string{"d-health": "Health", "d-work": "Work"},
		ventures: []fakeVenture{
			{id: "v-acme", domainID: "d-work", name: "Acme Labs", slug: "acme-labs"},
		},
		tasks: map[string]*TaskRow{},
	}
}

func (f *fakeTx) FindVenture(_ context.Context, key string) (string, string, error) {
	if f.failFind != nil {
		return "", "", f.failFind
	}
	for _, v := range f.ventures {
		if strings.EqualFold(v.name, key) || strings.EqualFold(v.slug, key) || v.slug == Slug(key) {
			return v.id, v.domainID, nil
		}
	}
	return "", "", ErrNotFound
}

func (f *fakeTx) FindDomain(_ context.Context, key string) (string, error) {
	for id, name := range f.domains {
		if strings.EqualFold(name, key) || Slug(name) == Slug(key) {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (f *fakeTx) FindProject(_ context.Context, domainID, ventureID, name string) (string, error) {
	for _, p := range f.projects {
		if p.domainID == domainID && p.ventureID == ventureID && strings.EqualFold(p.name, name) {
			return p.id, nil
		}
	}
	return "", ErrNotFound
}

func (f *fakeTx) CreateProject(_ context.Context, id, domainID, ventureID, name string) error {
	f.projects = append(f.projects, fakeProject{id, domainID, ventureID, name})
	return nil
}

func (f *fakeTx) FindMilestone(_ context.Context, projectID, name string) (string, error) {
	for _, m := range f.milestones {
		if m.projectID == projectID && strings.EqualFold(m.name, name) {
			return m.id, nil
		}
	}
	return "", ErrNotFound
}

func (f *fakeTx) CreateMilestone(_ context.Context, id, projectID, name string) error {
	f.milestones = append(f.milestones, fakeMilestone{id, projectID, name})
	return nil
}

func (f *fakeTx) FindTaskBySource(_ context.Context, sourceID string) (string, error) {
	for id, t := range f.tasks {
		if t.SourceID == sourceID {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (f *fakeTx) InsertTask(_ context.Context, row *TaskRow) error {
	cp := *row
	f.tasks[row.ID] = &cp
	return nil
}

func (f *fakeTx) UpdateTask(_ context.Context, row *TaskRow) error {
	cp := *row
	f.tasks[row.ID] = &cp
	return nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestResolve_VentureThenDomain(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		key         string
		wantDomain  string
		wantVenture string
	}{
		{"Acme Labs", "d-work", "v-acme"},
		{"ACME-LABS", "d-work", "v-acme"},
		{"acme labs", "d-work", "v-acme"},
		{"health", "d-health", ""},
		{"Work", "d-work", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			tx := newFakeTx()
			res, err := Resolve(ctx, tx, &UpsertInput{Title: "t", CategoryKey: tt.key}, sequentialIDs(), now)
			if err != nil {
				t.Fatalf("Resolve() failed: %v", err)
			}
			if res.DomainID != tt.wantDomain || res.VentureID != tt.wantVenture {
				t.Errorf("resolved (%q, %q), want (%q, %q)", res.DomainID, res.VentureID, tt.wantDomain, tt.wantVenture)
			}
			if !res.Created {
				t.Error("Created = false for a task without source id")
			}
		})
	}
}

func TestResolve_CategoryNotFound(t *testing.T) {
	tx := newFakeTx()
	_, err := Resolve(context.Background(), tx, &UpsertInput{Title: "t", CategoryKey: "unknown-region"}, sequentialIDs(), time.Now())
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("err = %v, want ErrCategoryNotFound", err)
	}
	if len(tx.tasks) != 0 {
		t.Errorf("tasks written = %d, want 0", len(tx.tasks))
	}
}

func TestResolve_InvalidInput(t *testing.T) {
	tx := newFakeTx()
	for _, in := range []*UpsertInput{
		{CategoryKey: "health"},
		{Title: "t"},
	} {
		if _, err := Resolve(context.Background(), tx, in, sequentialIDs(), time.Now()); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Resolve(%+v) err = %v, want ErrInvalidInput", in, err)
		}
	}
}

func TestResolve_LookupErrorPropagates(t *testing.T) {
	tx := newFakeTx()
	boom := errors.New("connection lost")
	tx.failFind = boom

	_, err := Resolve(context.Background(), tx, &UpsertInput{Title: "t", CategoryKey: "health"}, sequentialIDs(), time.Now())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if errors.Is(err, ErrCategoryNotFound) {
		t.Error("lookup failure reported as category not found")
	}
}

func TestResolve_CreatesProjectAndMilestoneOnce(t *testing.T) {
	ctx := context.Background()
	tx := newFakeTx()
	ids := sequentialIDs()

	in := &UpsertInput{
		Title:         "Draft deck",
		CategoryKey:   "Acme Labs",
		ProjectName:   "Launch",
		MilestoneName: "Beta",
		SourceID:      "page-1",
	}
	first, err := Resolve(ctx, tx, in, ids, time.Now())
	if err != nil {
		t.Fatalf("first Resolve() failed: %v", err)
	}
	if !first.Created {
		t.Error("first upsert Created = false")
	}

	in2 := *in
	in2.ProjectName = "launch"
	in2.MilestoneName = "BETA"
	second, err := Resolve(ctx, tx, &in2, ids, time.Now())
	if err != nil {
		t.Fatalf("second Resolve() failed: %v", err)
	}

	if second.Created {
		t.Error("second upsert with same source id Created = true")
	}
	if second.TaskID != first.TaskID {
		t.Errorf("TaskID = %q, want %q", second.TaskID, first.TaskID)
	}
	if second.ProjectID != first.ProjectID || second.MilestoneID != first.MilestoneID {
		t.Error("case-different names created new project or milestone")
	}
	if len(tx.projects) != 1 || len(tx.milestones) != 1 {
		t.Errorf("projects = %d, milestones = %d, want 1 each", len(tx.projects), len(tx.milestones))
	}
	if tx.projects[0].ventureID != "v-acme" || tx.projects[0].domainID != "d-work" {
		t.Errorf("project inherited (%q, %q), want (d-work, v-acme)", tx.projects[0].domainID, tx.projects[0].ventureID)
	}
}

func TestResolve_MilestoneNeedsProject(t *testing.T) {
	tx := newFakeTx()
	res, err := Resolve(context.Background(), tx, &UpsertInput{Title: "t", CategoryKey: "health", MilestoneName: "Beta"}, sequentialIDs(), time.Now())
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if res.MilestoneID != "" || len(tx.milestones) != 0 {
		t.Error("milestone created without a project")
	}
}

func TestResolve_NoSourceAlwaysCreates(t *testing.T) {
	tx := newFakeTx()
	ids := sequentialIDs()
	in := &UpsertInput{Title: "t", CategoryKey: "health"}
	for i := 0; i < 2; i++ {
		if _, err := Resolve(context.Background(), tx, in, ids, time.Now()); err != nil {
			t.Fatalf("Resolve() failed: %v", err)
		}
	}
	if len(tx.tasks) != 2 {
		t.Errorf("tasks = %d, want 2", len(tx.tasks))
	}
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Acme Labs", "acme-labs"},
		{"  Acme   Labs! ", "acme-labs"},
		{"health", "health"},
		{"R&D / Ops", "r-d-ops"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
