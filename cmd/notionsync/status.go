package main

import (
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/notionsync/notionsync/internal/config"
	"github.com/notionsync/notionsync/internal/store"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show cursor, link and task counts",
	Long: `Display the sync state kept in the store:

Shows:
  - Backend and location
  - Number of tasks and sync links
  - Every cursor with its last sync time and age`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newComponents(cmd.Context(), false, false)
		if err != nil {
			return err
		}
		defer c.Close()

		stats, err := c.store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), c.cfg, stats, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(w io.Writer, cfg *config.Config, stats *store.Stats, now time.Time) {
	rows := []row{
		{"Backend", cfg.Store.Driver},
		{"Location", storeLocation(cfg)},
		{"Tasks", fmt.Sprint(stats.Tasks)},
		{"Sync links", fmt.Sprint(stats.Links)},
	}
	if len(stats.Cursors) == 0 {
		rows = append(rows, row{"Cursor", renderWarn("never synced")})
	}
	for _, c := range stats.Cursors {
		age := now.Sub(c.LastSyncedAt).Round(time.Second)
		value := fmt.Sprintf("%s %s (%s ago)", c.Source, c.LastSyncedAt.Format(time.RFC3339), age)
		if age > 24*time.Hour {
			value = renderWarn(value)
		}
		rows = append(rows, row{"Cursor", value})
	}
	fmt.Fprintln(w, renderBox("📊 Sync status", rows))
}

// storeLocation describes the store without credentials.
func storeLocation(cfg *config.Config) string {
	if cfg.Store.Driver == config.DriverSQLite {
		return cfg.Store.Path
	}
	u, err := url.Parse(cfg.Store.URL)
	if err != nil || u.Host == "" {
		return "(connection string)"
	}
	return u.Redacted()
}
