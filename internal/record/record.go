// Package record defines the typed intermediate structures that sit between
// the Notion API payload and the upsert into the task tables.
//
// A SourceRecord is what extraction produced from one page: plain strings
// and optional dates, nothing normalized yet. Normalize turns it into a
// Normalized record whose vocabulary fields are canonical or empty, and
// whose Hash is the change-detection digest stored on the sync link.
package record

import (
	"time"

	"github.com/notionsync/notionsync/internal/normalize"
)

// Field names used by the required-field gate and the content hash.
const (
	FieldTitle     = "title"
	FieldCategory  = "category"
	FieldProject   = "project"
	FieldMilestone = "milestone"
	FieldPriority  = "priority"
	FieldDue       = "due"
	FieldAssignee  = "assignee"
	FieldStatus    = "status"
	FieldFocusSlot = "focus_slot"
	FieldFocusDate = "focus_date"
)

// HashOrder is the fixed serialization order of the content hash.
var HashOrder = []string{
	FieldTitle,
	FieldCategory,
	FieldProject,
	FieldMilestone,
	FieldPriority,
	FieldDue,
	FieldAssignee,
	FieldStatus,
	FieldFocusSlot,
	FieldFocusDate,
}

// DefaultRequired is the required-field set used when none is configured.
var DefaultRequired = []string{FieldTitle, FieldCategory, FieldPriority}

// DateLayout is the calendar-date form used in hashes and date columns.
const DateLayout = "2006-01-02"

// IsField reports whether name is one of the known field names.
func IsField(name string) bool {
	for _, f := range HashOrder {
		if f == name {
			return true
		}
	}
	return false
}

// SourceRecord is one page as read from the task capture database.
type SourceRecord struct {
	ExternalID   string
	LastModified time.Time

	Title     string
	Domain    string
	Venture   string
	Project   string
	Milestone string
	Priority  string
	Status    string
	DueDate   *time.Time
	FocusDate *time.Time
	FocusSlot string
	Assignee  string

	// Write-back fields.
	Linked   bool
	TargetID string

	// Err is set when the page could not be fully extracted. Only
	// ExternalID and LastModified are reliable then.
	Err error
}

// IsLinked reports whether the page claims to be linked to a task, either
// through the checkbox or a previously written target id.
func (s *SourceRecord) IsLinked() bool {
	return s.Linked || s.TargetID != ""
}

// Normalized is a SourceRecord after normalization. An empty string or a
// nil date means null.
type Normalized struct {
	Title     string
	Category  string
	Project   string
	Milestone string
	Priority  string
	Status    string
	Due       *time.Time
	FocusDate *time.Time
	FocusSlot string
	Assignee  string
}

// Drift describes a non-empty source value that did not map onto the
// canonical vocabulary and was dropped to null.
type Drift struct {
	Field string
	Value string
}

// Normalize maps src onto the canonical vocabulary. focusSlots is the
// canonical focus-slot list. Values that were present but could not be
// mapped are returned as drift so the caller can log them.
func Normalize(src *SourceRecord, focusSlots []string) (*Normalized, []Drift) {
	var drift []Drift

	category := normalize.Text(src.Venture)
	if category == "" {
		category = normalize.Text(src.Domain)
	}

	slot, ok := normalize.FocusSlot(src.FocusSlot, focusSlots)
	if !ok {
		drift = append(drift, Drift{Field: FieldFocusSlot, Value: src.FocusSlot})
	}

	return &Normalized{
		Title:     normalize.Text(src.Title),
		Category:  category,
		Project:   normalize.Text(src.Project),
		Milestone: normalize.Text(src.Milestone),
		Priority:  normalize.Priority(src.Priority),
		Status:    normalize.Status(src.Status),
		Due:       dateOnly(src.DueDate),
		FocusDate: dateOnly(src.FocusDate),
		FocusSlot: slot,
		Assignee:  normalize.Text(src.Assignee),
	}, drift
}

// Fields returns the hashable fields keyed by field name. Null values are
// empty strings.
func (n *Normalized) Fields() map[string]string {
	return map[string]string{
		FieldTitle:     n.Title,
		FieldCategory:  n.Category,
		FieldProject:   n.Project,
		FieldMilestone: n.Milestone,
		FieldPriority:  n.Priority,
		FieldDue:       formatDate(n.Due),
		FieldAssignee:  n.Assignee,
		FieldStatus:    n.Status,
		FieldFocusSlot: n.FocusSlot,
		FieldFocusDate: formatDate(n.FocusDate),
	}
}

// Hash returns the content hash of n.
func (n *Normalized) Hash() string {
	return HashFields(n.Fields())
}

// Missing returns the names in required whose value is null, in the order
// given.
func (n *Normalized) Missing(required []string) []string {
	fields := n.Fields()
	var missing []string
	for _, name := range required {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}
