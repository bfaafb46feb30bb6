package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anri-helpdesk/helpdesk/internal/app"
)

var cleanupTasks []string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run the scheduled cleanup tasks once",
	Long: `Runs the expired temporary attachment purge and the stale login
attempt sweep immediately instead of waiting for their schedule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, log, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := app.New(cmd.Context(), loader, log)
		if err != nil {
			return err
		}
		defer a.Close()

		names := cleanupTasks
		if len(names) == 0 {
			names = a.Tasks.Names()
		}
		for _, name := range names {
			if err := a.Runner.RunOnce(cmd.Context(), name); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: done\n", name)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().StringSliceVarP(&cleanupTasks, "task", "t", nil, "Task to run (repeatable, default all)")
}
