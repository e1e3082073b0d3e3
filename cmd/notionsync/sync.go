package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/notionsync/notionsync/internal/daemon"
	"github.com/notionsync/notionsync/internal/observe"
	"github.com/notionsync/notionsync/internal/runlock"
	notionsync "github.com/notionsync/notionsync/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Sync edited Notion pages into the task tables",
	Long: `Run sync passes from the Notion task capture database.

Each pass:
  1. Reads the cursor (or looks back sync.lookback on the first run)
  2. Fetches every page edited since then
  3. Normalizes and upserts changed pages, skipping unchanged ones
  4. Writes the task id back onto new pages
  5. Advances the cursor to the newest edit seen

Without --once, passes repeat every daemon.interval until interrupted.

Examples:
  notionsync sync --once
  notionsync sync --once --dry-run --since "2 hours ago"
  notionsync sync --since 2025-06-01`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Bool("once", false, "run a single pass and exit")
	syncCmd.Flags().Bool("dry-run", false, "read and decide but write nothing (implies --once)")
	syncCmd.Flags().String("since", "", "override the cursor: RFC3339, YYYY-MM-DD or e.g. \"yesterday\"")

	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	once, _ := cmd.Flags().GetBool("once")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	sinceFlag, _ := cmd.Flags().GetString("since")
	ctx := cmd.Context()

	opts := notionsync.RunOptions{DryRun: dryRun}
	if sinceFlag != "" {
		since, err := parseSince(sinceFlag, time.Now())
		if err != nil {
			return err
		}
		opts.Since = &since
	}

	c, err := newComponents(ctx, true, dryRun)
	if err != nil {
		return err
	}
	defer c.Close()

	catalog, err := loadCatalog(c.cfg.Vocabulary.File)
	if err != nil {
		return err
	}

	if !once && !dryRun && c.cfg.Metrics.Addr != "" && c.cfg.Metrics.Events {
		c.metrics.WithFeed(observe.NewFeed(c.logger))
	}

	orch, err := notionsync.New(notionsync.Deps{
		Source:     c.notion,
		Store:      c.store,
		LinkWriter: c.notion,
		Vocabulary: catalog,
		Logger:     c.logger,
		Metrics:    c.metrics,
	}, c.cfg.SyncOrchestrator())
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	dcfg := c.cfg.DaemonLoop()
	dcfg.Logger = c.logger
	d, err := daemon.NewWithConfig(orch, runlock.New(c.cfg.LockFile), dcfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if once || dryRun {
		sum, err := d.RunOnce(ctx, opts)
		if sum != nil {
			printSummary(cmd.OutOrStdout(), sum)
		}
		return err
	}

	if file := c.cfg.Vocabulary.File; file != "" && c.cfg.Vocabulary.Watch {
		d.AddWorker("vocabulary", func(ctx context.Context) error {
			return catalog.Watch(ctx, file, c.logger)
		})
	}
	if addr := c.cfg.Metrics.Addr; addr != "" {
		d.AddWorker("metrics", func(ctx context.Context) error {
			return c.metrics.Serve(ctx, addr, c.logger)
		})
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%s Syncing every %s, press Ctrl+C to stop\n",
		renderAccent("🔄"), c.cfg.Daemon.Interval)
	return d.Start(ctx, opts)
}
