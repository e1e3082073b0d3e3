// Package notion talks to the Notion API: it reads changed task capture
// pages, writes the link-back properties, and files alert pages.
//
// Every API call goes through one Pacer (fixed spacing between calls) and
// one retry policy, so rate limits are respected regardless of which of
// the three roles made the call.
package notion

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jomei/notionapi"

	"github.com/notionsync/notionsync/internal/retry"
)

// databaseQuerier is the part of notionapi.DatabaseService we use.
type databaseQuerier interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// pageWriter is the part of notionapi.PageService we use.
type pageWriter interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	Update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// Config holds the Notion side of the configuration.
type Config struct {
	Token            string
	DatabaseID       string
	AlertsDatabaseID string

	// PageSize is the query page size (Notion caps it at 100).
	PageSize int

	// CallDelay is the minimum spacing between two API calls.
	CallDelay time.Duration

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	Retry      retry.Policy
	Properties Properties
	Alerts     AlertProperties
}

// DefaultConfig returns the defaults without credentials or database ids.
func DefaultConfig() Config {
	return Config{
		PageSize:   25,
		CallDelay:  350 * time.Millisecond,
		Timeout:    30 * time.Second,
		Retry:      retry.DefaultPolicy(),
		Properties: DefaultProperties(),
		Alerts:     DefaultAlertProperties(),
	}
}

// Client wraps the Notion SDK with pacing and retries.
type Client struct {
	databases databaseQuerier
	pages     pageWriter

	cfg    Config
	pacer  *retry.Pacer
	policy retry.Policy
}

// New creates a client authenticated with cfg.Token.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("notion token cannot be empty")
	}
	if cfg.DatabaseID == "" {
		return nil, errors.New("notion database id cannot be empty")
	}

	api := notionapi.NewClient(
		notionapi.Token(cfg.Token),
		notionapi.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	return newClient(api.Database, api.Page, cfg), nil
}

func newClient(databases databaseQuerier, pages pageWriter, cfg Config) *Client {
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 25
	}
	policy := cfg.Retry
	if policy.IsRetryable == nil {
		policy.IsRetryable = IsRetryable
	}
	return &Client{
		databases: databases,
		pages:     pages,
		cfg:       cfg,
		pacer:     retry.NewPacer(cfg.CallDelay),
		policy:    policy,
	}
}

// call paces and retries one API request.
func call[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, c.policy, func(ctx context.Context) (T, error) {
		if err := c.pacer.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx)
	})
}

// IsRetryable extends retry.IsTransient with the SDK's error types:
// API errors with status 429 or 5xx, and the SDK's own rate-limit error
// after its internal retries ran out.
func IsRetryable(err error) bool {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	var rateErr *notionapi.RateLimitedError
	if errors.As(err, &rateErr) {
		return true
	}
	return retry.IsTransient(err)
}
