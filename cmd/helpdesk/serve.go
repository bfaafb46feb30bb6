package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/anri-helpdesk/helpdesk/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and scheduled tasks",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	loader, log, err := loadConfig()
	if err != nil {
		return err
	}
	if loader.Config().App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, loader, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if path := loader.Path(); path != "" {
		log.Info("loaded configuration", "file", path)
	}
	if err := a.Serve(ctx); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}
