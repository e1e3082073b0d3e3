// Command notionsync copies task capture pages from a Notion database into
// the Postgres task tables and writes the resulting task id back.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/notionsync/notionsync/internal/observe"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitPanic = 2
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "notionsync",
	Short: "Notion task capture to Postgres sync",
	Long: `notionsync reads pages edited in a Notion task capture database,
normalizes their priority, status and focus slot, and upserts them into
the task tables, creating projects and milestones on the way.

Each synced page gets the task id written back so the capture database
shows what has been picked up.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default notionsync.yaml in . or ~/.config/notionsync)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
	)
}

func main() {
	os.Exit(run())
}

func run() (code int) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			slog.Default().Log(ctx, observe.LevelFatal, "panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			fmt.Fprintf(os.Stderr, "%s notionsync crashed: %v\n", renderFail("✗"), r)
			code = exitPanic
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", renderFail("Error:"), err)
		return exitError
	}
	return exitOK
}
