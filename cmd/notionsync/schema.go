package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notionsync/notionsync/internal/config"
)

var schemaCmd = &cobra.Command{
	Use:     "schema",
	GroupID: "admin",
	Short:   "Manage the task and sync tables",
}

var schemaInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the task hierarchy and sync tables if missing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := newComponents(ctx, false, false)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.store.InitSchema(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Schema ready on %s\n", renderPass("✓"), storeLocation(c.cfg))
		return nil
	},
}

// categoryWriter is implemented by both store backends.
type categoryWriter interface {
	AddDomain(ctx context.Context, name string) (string, error)
	AddVenture(ctx context.Context, domainID, name string) (string, error)
}

var schemaAddCategoryCmd = &cobra.Command{
	Use:   "add-category <domain> [venture]",
	Short: "Register a domain, and optionally a venture under it",
	Long: `Register the categories pages may reference.

Pages name a venture or a domain; the upsert never creates either, so they
must exist first. Re-running with the same names is harmless.

Examples:
  notionsync schema add-category Health
  notionsync schema add-category Work "Acme Labs"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		raw, _, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer raw.Close()

		cw, ok := raw.(categoryWriter)
		if !ok {
			return fmt.Errorf("store driver %q cannot add categories", cfg.Store.Driver)
		}

		domainID, err := cw.AddDomain(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Domain %s (%s)\n", renderPass("✓"), args[0], domainID)

		if len(args) == 2 {
			ventureID, err := cw.AddVenture(ctx, domainID, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Venture %s (%s)\n", renderPass("✓"), args[1], ventureID)
		}
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaInitCmd)
	schemaCmd.AddCommand(schemaAddCategoryCmd)
	rootCmd.AddCommand(schemaCmd)
}
