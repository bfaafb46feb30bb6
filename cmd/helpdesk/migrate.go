package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/database"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tools",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", n)
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		db, _, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Rollback(cmd.Context(), migrateSteps)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migration(s)\n", n)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations have been applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		states, err := db.MigrationStatus()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MIGRATION\tAPPLIED")
		for _, s := range states {
			applied := "no"
			if s.Applied {
				applied = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\n", s.ID, applied)
		}
		return w.Flush()
	},
}

func init() {
	migrateDownCmd.Flags().IntVarP(&migrateSteps, "steps", "n", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

// openDatabase connects without applying migrations.
func openDatabase(ctx context.Context) (*database.DB, *config.Config, error) {
	loader, log, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg := loader.Config()
	dbCfg := cfg.Database
	dbCfg.AutoMigrate = false
	db, err := database.Open(ctx, dbCfg, log.Logger)
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}
