package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jomei/notionapi"
)

// MarkLinked writes targetID into the page's target-id property and ticks
// its linked checkbox.
func (c *Client) MarkLinked(ctx context.Context, pageID, targetID string) error {
	req := &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			c.cfg.Properties.TargetID: richText(targetID),
			c.cfg.Properties.Linked: notionapi.CheckboxProperty{
				Type:     notionapi.PropertyTypeCheckbox,
				Checkbox: true,
			},
		},
	}

	_, err := call(ctx, c, func(ctx context.Context) (*notionapi.Page, error) {
		return c.pages.Update(ctx, notionapi.PageID(pageID), req)
	})
	if err != nil {
		return fmt.Errorf("failed to mark page %s linked: %w", pageID, err)
	}
	return nil
}

// AlertProperties names the columns of the alerts database.
type AlertProperties struct {
	Title         string `mapstructure:"title"`
	Severity      string `mapstructure:"severity"`
	Service       string `mapstructure:"service"`
	Environment   string `mapstructure:"environment"`
	Context       string `mapstructure:"context"`
	CorrelationID string `mapstructure:"correlation_id"`
	Status        string `mapstructure:"status"`
	Created       string `mapstructure:"created"`
}

// DefaultAlertProperties returns the column names of the alerts template.
func DefaultAlertProperties() AlertProperties {
	return AlertProperties{
		Title:         "Title",
		Severity:      "Severity",
		Service:       "Service",
		Environment:   "Environment",
		Context:       "Context",
		CorrelationID: "Correlation ID",
		Status:        "Status",
		Created:       "Created",
	}
}

// Alert is one row of the alerts database.
type Alert struct {
	Title         string
	Severity      string
	Service       string
	Environment   string
	Context       map[string]any
	CorrelationID string
	Created       time.Time
}

// Alert lifecycle states. New alerts are always open.
const (
	AlertOpen          = "open"
	AlertInvestigating = "investigating"
	AlertResolved      = "resolved"
)

// maxRichText is Notion's limit for one rich text element.
const maxRichText = 2000

// CreateAlert files a as a page in the alerts database.
func (c *Client) CreateAlert(ctx context.Context, a *Alert) error {
	if c.cfg.AlertsDatabaseID == "" {
		return fmt.Errorf("alerts database id is not configured")
	}

	blob, err := json.Marshal(a.Context)
	if err != nil {
		blob = []byte(fmt.Sprintf("%q", fmt.Sprint(a.Context)))
	}
	created := notionapi.Date(a.Created.UTC())

	props := c.cfg.Alerts
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(c.cfg.AlertsDatabaseID),
		},
		Properties: notionapi.Properties{
			props.Title: notionapi.TitleProperty{
				Type:  notionapi.PropertyTypeTitle,
				Title: []notionapi.RichText{textRun(a.Title)},
			},
			props.Severity:      selectOption(a.Severity),
			props.Service:       richText(a.Service),
			props.Environment:   selectOption(a.Environment),
			props.Context:       richText(string(blob)),
			props.CorrelationID: richText(a.CorrelationID),
			props.Status:        selectOption(AlertOpen),
			props.Created: notionapi.DateProperty{
				Type: notionapi.PropertyTypeDate,
				Date: &notionapi.DateObject{Start: &created},
			},
		},
	}

	_, err = call(ctx, c, func(ctx context.Context) (*notionapi.Page, error) {
		return c.pages.Create(ctx, req)
	})
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{textRun(s)},
	}
}

func selectOption(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: name},
	}
}

func textRun(s string) notionapi.RichText {
	s = truncate(s, maxRichText)
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}
}

// truncate cuts s to at most n runes without splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
