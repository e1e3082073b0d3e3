package notion

import (
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/notionsync/notionsync/internal/record"
)

// Properties names the task capture database columns.
type Properties struct {
	Title     string `mapstructure:"title"`
	Domain    string `mapstructure:"domain"`
	Venture   string `mapstructure:"venture"`
	Project   string `mapstructure:"project"`
	Milestone string `mapstructure:"milestone"`
	Priority  string `mapstructure:"priority"`
	Status    string `mapstructure:"status"`
	DueDate   string `mapstructure:"due_date"`
	FocusDate string `mapstructure:"focus_date"`
	FocusSlot string `mapstructure:"focus_slot"`
	Assignee  string `mapstructure:"assignee"`
	Linked    string `mapstructure:"linked"`
	TargetID  string `mapstructure:"target_id"`
}

// DefaultProperties returns the column names of the standard template.
func DefaultProperties() Properties {
	return Properties{
		Title:     "Name",
		Domain:    "Domain",
		Venture:   "Venture",
		Project:   "Project",
		Milestone: "Milestone",
		Priority:  "Priority",
		Status:    "Status",
		DueDate:   "Due Date",
		FocusDate: "Focus Date",
		FocusSlot: "Focus Slot",
		Assignee:  "Assignee",
		Linked:    "Synced",
		TargetID:  "Task ID",
	}
}

// Extract reads one page into a SourceRecord. Absent properties and
// properties of an unexpected type read as empty. A date column holding
// text that is not a date is an error; the returned record still carries
// the page id and edit time.
func Extract(page *notionapi.Page, props Properties) (*record.SourceRecord, error) {
	rec := &record.SourceRecord{
		ExternalID:   string(page.ID),
		LastModified: page.LastEditedTime,
		Title:        textOf(page.Properties[props.Title]),
		Domain:       textOf(page.Properties[props.Domain]),
		Venture:      textOf(page.Properties[props.Venture]),
		Project:      textOf(page.Properties[props.Project]),
		Milestone:    textOf(page.Properties[props.Milestone]),
		Priority:     textOf(page.Properties[props.Priority]),
		Status:       textOf(page.Properties[props.Status]),
		FocusSlot:    textOf(page.Properties[props.FocusSlot]),
		Assignee:     textOf(page.Properties[props.Assignee]),
		Linked:       checkboxOf(page.Properties[props.Linked]),
		TargetID:     textOf(page.Properties[props.TargetID]),
	}

	var err error
	if rec.DueDate, err = dateOf(page.Properties[props.DueDate]); err != nil {
		return rec, fmt.Errorf("malformed %q: %w", props.DueDate, err)
	}
	if rec.FocusDate, err = dateOf(page.Properties[props.FocusDate]); err != nil {
		return rec, fmt.Errorf("malformed %q: %w", props.FocusDate, err)
	}
	return rec, nil
}

// textOf flattens any text-like property to a string. Multi-valued
// properties take their first value.
func textOf(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return plainText(v.Title)
	case *notionapi.RichTextProperty:
		return plainText(v.RichText)
	case *notionapi.SelectProperty:
		return v.Select.Name
	case *notionapi.StatusProperty:
		return v.Status.Name
	case *notionapi.MultiSelectProperty:
		if len(v.MultiSelect) > 0 {
			return v.MultiSelect[0].Name
		}
	case *notionapi.PeopleProperty:
		if len(v.People) > 0 {
			return v.People[0].Name
		}
	case *notionapi.FormulaProperty:
		return v.Formula.String
	}
	return ""
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, t := range rt {
		switch {
		case t.PlainText != "":
			b.WriteString(t.PlainText)
		case t.Text != nil:
			b.WriteString(t.Text.Content)
		}
	}
	return b.String()
}

func checkboxOf(p notionapi.Property) bool {
	if v, ok := p.(*notionapi.CheckboxProperty); ok {
		return v.Checkbox
	}
	return false
}

// dateOf reads a date property, or a text property holding an ISO date.
func dateOf(p notionapi.Property) (*time.Time, error) {
	if v, ok := p.(*notionapi.DateProperty); ok {
		return dateObject(v.Date), nil
	}

	s := strings.TrimSpace(textOf(p))
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{record.DateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as a date", s)
}

func dateObject(d *notionapi.DateObject) *time.Time {
	if d == nil || d.Start == nil {
		return nil
	}
	t := time.Time(*d.Start)
	if t.IsZero() {
		return nil
	}
	return &t
}
