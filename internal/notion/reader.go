package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"

	"github.com/notionsync/notionsync/internal/record"
)

// FetchSince returns every page of the task database edited at or after
// since, newest first, following pagination until the API reports no more
// results. Pages that fail extraction are still returned with Err set, so
// the caller can count them and still advance past their edit time.
func (c *Client) FetchSince(ctx context.Context, since time.Time) ([]*record.SourceRecord, error) {
	onOrAfter := notionapi.Date(since.UTC())
	req := &notionapi.DatabaseQueryRequest{
		Filter: &notionapi.TimestampFilter{
			Timestamp: notionapi.TimestampLastEdited,
			LastEditedTime: &notionapi.DateFilterCondition{
				OnOrAfter: &onOrAfter,
			},
		},
		Sorts: []notionapi.SortObject{{
			Timestamp: notionapi.TimestampLastEdited,
			Direction: notionapi.SortOrderDESC,
		}},
		PageSize: c.cfg.PageSize,
	}

	var records []*record.SourceRecord
	dbID := notionapi.DatabaseID(c.cfg.DatabaseID)

	for page := 1; ; page++ {
		resp, err := call(ctx, c, func(ctx context.Context) (*notionapi.DatabaseQueryResponse, error) {
			return c.databases.Query(ctx, dbID, req)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query database page %d: %w", page, err)
		}

		for i := range resp.Results {
			rec, err := Extract(&resp.Results[i], c.cfg.Properties)
			if err != nil {
				rec.Err = err
			}
			records = append(records, rec)
		}

		if !resp.HasMore || resp.NextCursor == "" {
			return records, nil
		}
		req.StartCursor = resp.NextCursor
	}
}
