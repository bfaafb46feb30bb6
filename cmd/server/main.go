// Command server runs the help desk HTTP server. It reads its config path
// from CONFIG_PATH and is the entry point of the container image; the
// helpdesk command offers the same through "helpdesk serve".
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/anri-helpdesk/helpdesk/internal/app"
	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/logger"
)

func main() {
	loader, err := config.NewLoader(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := loader.Config()

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, loader, lg)
	if err != nil {
		lg.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Serve(ctx); err != nil {
		lg.Error("server stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
}
