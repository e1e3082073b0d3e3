package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/notionsync/notionsync/internal/config"
	"github.com/notionsync/notionsync/internal/normalize"
	"github.com/notionsync/notionsync/internal/notion"
	"github.com/notionsync/notionsync/internal/observe"
	"github.com/notionsync/notionsync/internal/retry"
	"github.com/notionsync/notionsync/internal/store"
	"github.com/notionsync/notionsync/internal/store/postgres"
	"github.com/notionsync/notionsync/internal/store/sqlite"
)

// components holds what a command needs, built once from the config.
type components struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observe.Metrics
	notion  *notion.Client
	store   store.Store

	closers []io.Closer
}

// newComponents loads the config and builds the logger and store. With
// withNotion the full config is validated and the Notion client is built
// and used as the alert sink, except on dry runs.
func newComponents(ctx context.Context, withNotion, dryRun bool) (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if withNotion {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration:\n%w", err)
		}
	}

	c := &components{
		cfg:     cfg,
		metrics: observe.NewMetrics(),
		logger:  slog.Default(),
	}

	var sink observe.AlertSink
	if withNotion {
		ncfg := cfg.NotionClient()
		ncfg.Retry.OnRetry = c.onRetry("notion")
		client, err := notion.New(ncfg)
		if err != nil {
			return nil, err
		}
		c.notion = client
		sink = alertSink(cfg, client, dryRun)
	}

	logger, closer, err := observe.NewLogger(cfg.Log, cfg.Alerts.AlertConfig, os.Stderr, verbose, sink)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closer)
	c.logger = logger
	slog.SetDefault(logger)

	raw, retryable, err := openStore(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.closers = append(c.closers, raw)

	policy, pacer := cfg.StoreRetry()
	policy.IsRetryable = retry.Any(retryable, retry.IsTransient)
	policy.OnRetry = c.onRetry("store")
	c.store = store.WithRetry(raw, policy, pacer)

	return c, nil
}

// alertSink returns where warnings are filed, or nil when they are only
// logged. A dry run writes nothing to Notion, alerts included.
func alertSink(cfg *config.Config, sink observe.AlertSink, dryRun bool) observe.AlertSink {
	if dryRun || !cfg.Alerts.Enabled {
		return nil
	}
	return sink
}

func (c *components) onRetry(op string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		c.metrics.ObserveRetry(op)
		c.logger.Info("retrying call", "op", op, "attempt", attempt, "delay", delay, "error", err)
	}
}

// Close releases resources in reverse order of creation.
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			c.logger.Warn("close failed", "error", err)
		}
	}
	c.closers = nil
}

// openStore opens the configured backend without retries and returns its
// retryable-error predicate.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(error) bool, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if cfg.Store.URL == "" {
			return nil, nil, errors.New("store.url is not set (or set DATABASE_URL)")
		}
		s, err := postgres.Open(ctx, cfg.Store.URL)
		if err != nil {
			return nil, nil, err
		}
		return s, postgres.IsRetryable, nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.IsRetryable, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// loadCatalog builds the focus-slot catalog from the vocabulary file, or
// from the built-in list when none is configured.
func loadCatalog(path string) (*normalize.Catalog, error) {
	if path == "" {
		return normalize.NewCatalog(normalize.DefaultVocabulary()), nil
	}
	v, err := normalize.LoadVocabulary(path)
	if err != nil {
		return nil, err
	}
	return normalize.NewCatalog(v), nil
}
