// Package api exposes the customer reply workflow over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/middleware"
	"github.com/anri-helpdesk/helpdesk/internal/session"
	"github.com/anri-helpdesk/helpdesk/internal/version"
)

// HealthCheck checks one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterDeps are the collaborators of the HTTP layer. Uploads may be nil
// when attachments are disabled; Metrics may be nil.
type RouterDeps struct {
	Config   func() *config.Config
	Replies  ReplySubmitter
	Uploads  TempUploader
	Sessions session.Store
	Metrics  http.Handler
	Health   []HealthCheck
	Logger   *slog.Logger
}

// NewRouter builds the gin engine with every customer route.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config()
	log := deps.Logger.With("component", "api")

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(deps.Logger))

	r.GET("/healthz", handleHealth(deps.Health))
	if deps.Metrics != nil && cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(deps.Metrics))
	}

	site := SiteInfo{Title: cfg.App.HelpdeskTitle, URL: cfg.App.HelpdeskURL}
	customer := r.Group("/",
		middleware.Maintenance(func() bool { return deps.Config().App.MaintenanceMode }),
		middleware.BodyLimit(cfg.Server.MaxPostSize),
		middleware.Session(deps.Sessions, cfg.Session, deps.Logger),
	)
	customer.Any("/reply_ticket.php", handleReplyTicket(deps.Replies, site, log))
	customer.POST("/upload_attachment.php", handleUploadAttachment(deps.Uploads, log))

	v1 := customer.Group("/api/v1")
	v1.POST("/tickets/:trackid/replies", handleCreateReply(deps.Replies, log))

	return r
}

func handleHealth(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[hc.Name] = err.Error()
				continue
			}
			results[hc.Name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":  state,
			"checks":  results,
			"version": version.GetInfo(),
		})
	}
}
