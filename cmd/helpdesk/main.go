package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/logger"
	"github.com/anri-helpdesk/helpdesk/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "helpdesk",
	Short: "Help desk reply service",
	Long: `Help desk reply service

Accepts customer replies to existing tickets, migrates their attachments
and notifies staff by email and push channels.`,
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Full())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ANRI_CONFIG"), "Path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(bansCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config and builds the logger
// it describes.
func loadConfig() (*config.Loader, *logger.Logger, error) {
	loader, err := config.NewLoader(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(loader.Config().Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return loader, log, nil
}
