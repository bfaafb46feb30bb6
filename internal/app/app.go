// Package app wires the configured components into a running help desk.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/anri-helpdesk/helpdesk/internal/api"
	"github.com/anri-helpdesk/helpdesk/internal/attachments"
	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/database"
	"github.com/anri-helpdesk/helpdesk/internal/floodguard"
	"github.com/anri-helpdesk/helpdesk/internal/logger"
	"github.com/anri-helpdesk/helpdesk/internal/metrics"
	"github.com/anri-helpdesk/helpdesk/internal/notifications"
	"github.com/anri-helpdesk/helpdesk/internal/push"
	"github.com/anri-helpdesk/helpdesk/internal/render"
	"github.com/anri-helpdesk/helpdesk/internal/repository"
	"github.com/anri-helpdesk/helpdesk/internal/runner"
	"github.com/anri-helpdesk/helpdesk/internal/runner/tasks"
	"github.com/anri-helpdesk/helpdesk/internal/session"
	"github.com/anri-helpdesk/helpdesk/internal/storage"
	"github.com/anri-helpdesk/helpdesk/internal/tickets"
	"github.com/anri-helpdesk/helpdesk/internal/ticketutil"
)

// App holds every long-lived component.
type App struct {
	loader *config.Loader
	log    *logger.Logger

	DB       *database.DB
	Redis    *redis.Client
	Storage  storage.Backend
	Sessions session.Store
	Metrics  *metrics.Metrics
	Logins   *repository.LoginRepository
	Migrator *attachments.Migrator
	Fanout   *notifications.Fanout
	Replies  *tickets.ReplyService
	Tasks    *runner.TaskRegistry
	Runner   *runner.Runner
	Router   *gin.Engine
}

// New connects to the database, Redis and attachment storage and builds the
// reply workflow on top of them.
func New(ctx context.Context, loader *config.Loader, log *logger.Logger) (*App, error) {
	cfg := loader.Config()
	a := &App{loader: loader, log: log, Metrics: metrics.New()}

	warnings, err := config.ValidateSecrets(cfg)
	for _, w := range warnings {
		log.Warn("insecure configuration", "detail", strings.TrimSpace(w))
	}
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, cfg.Database, log.Logger)
	if err != nil {
		return nil, err
	}
	a.DB = db

	if err := a.initSessions(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	backend, err := storage.NewStorageFactory().Create(cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("attachment storage: %w", err)
	}
	a.Storage = backend

	renderer, err := render.New(cfg.Ticket.MessageFormat)
	if err != nil {
		a.Close()
		return nil, err
	}

	fanout := a.buildFanout(ctx, cfg)
	a.Fanout = fanout

	ticketRepo := repository.NewTicketRepository(db)
	a.Logins = repository.NewLoginRepository(db)
	policy := attachments.NewPolicy(cfg.Attachments)
	a.Migrator = attachments.NewMigrator(backend, repository.NewTempAttachmentRepository(db), policy, cfg.Attachments.TempTTL, log.Logger)

	guard := floodguard.New(cfg.Security, a.Sessions, a.Logins, ticketRepo, log.Logger, floodguard.WithObserver(a.Metrics))

	deps := tickets.Dependencies{
		Tickets:  ticketRepo,
		Guard:    guard,
		Renderer: renderer,
		Status:   ticketutil.NewStatusPolicy(cfg.Ticket.FixedStatuses),
		Notifier: fanout,
		Observer: a.Metrics,
		Logger:   log.Logger,
	}
	if cfg.Attachments.Use {
		deps.Migrator = a.Migrator
		deps.Uploader = attachments.NewUploader(backend, log.Logger)
	}
	a.Replies = tickets.NewReplyService(cfg, deps)

	a.Tasks = runner.NewTaskRegistry()
	a.Tasks.Register(
		tasks.NewTempCleanupTask(a.Migrator, cfg.Runner.TempCleanupSchedule, a.Metrics, log.Logger),
		tasks.NewLoginCleanupTask(a.Logins, cfg.Security.AttemptBanMin, cfg.Runner.BanCleanupSchedule, log.Logger),
	)
	a.Runner = runner.NewRunner(a.Tasks, log.Logger, a.Metrics)

	routerDeps := api.RouterDeps{
		Config:   loader.Config,
		Replies:  a.Replies,
		Sessions: a.Sessions,
		Metrics:  a.Metrics.Handler(),
		Health:   a.healthChecks(),
		Logger:   log.Logger,
	}
	if cfg.Attachments.Use {
		routerDeps.Uploads = a.Migrator
	}
	a.Router = api.NewRouter(routerDeps)

	return a, nil
}

func (a *App) initSessions(ctx context.Context, cfg *config.Config) error {
	if !cfg.Redis.Enabled {
		a.log.Warn("redis disabled, sessions are kept in memory")
		a.Sessions = session.NewMemoryStore()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.Redis = client
	a.Sessions = session.NewRedisStore(client, cfg.Redis.Prefix, cfg.Session.TTL)
	return nil
}

// buildFanout assembles staff email and the enabled push channels.
func (a *App) buildFanout(ctx context.Context, cfg *config.Config) *notifications.Fanout {
	staff := notifications.NewEmailStaffNotifier(
		repository.NewStaffRepository(a.DB),
		notifications.NewSMTPProvider(&cfg.Email),
		cfg.App.HelpdeskTitle,
		cfg.App.HelpdeskURL,
		a.log.Logger,
	)
	opts := []notifications.FanoutOption{notifications.WithObserver(a.Metrics)}

	if channels := a.pushChannels(ctx, cfg); len(channels) > 0 {
		multi := push.NewMulti(channels...)
		a.log.Info("push notifications enabled", "channels", multi.Name())
		opts = append(opts, notifications.WithPush(multi, cfg.Push.Timeout))
	}
	return notifications.NewFanout(staff, a.log.Logger, opts...)
}

// pushChannels builds the enabled push channels. A channel that cannot be
// built is logged and left out; push never blocks startup.
func (a *App) pushChannels(ctx context.Context, cfg *config.Config) []push.Notifier {
	if !cfg.Push.Enabled {
		return nil
	}
	var channels []push.Notifier

	if cfg.Push.Telegram.Enabled {
		tg, err := push.NewTelegram(cfg.Push.Telegram, cfg.App.HelpdeskURL, cfg.Push.Timeout)
		if err != nil {
			a.log.Warn("telegram push disabled", "error", err)
		} else {
			channels = append(channels, tg)
		}
	}
	if cfg.Push.FCM.Enabled {
		fcm, err := push.NewFCM(ctx, cfg.Push.FCM, repository.NewDeviceTokenRepository(a.DB), a.log.Logger)
		if err != nil {
			a.log.Warn("fcm push disabled", "error", err)
		} else {
			channels = append(channels, fcm)
		}
	}
	if cfg.Push.Webhook.Enabled {
		channels = append(channels, push.NewWebhook(cfg.Push.Webhook, &http.Client{Timeout: cfg.Push.Timeout}))
	}
	return channels
}

func (a *App) healthChecks() []api.HealthCheck {
	checks := []api.HealthCheck{
		{Name: "database", Check: a.DB.PingContext},
		{Name: "storage", Check: a.Storage.HealthCheck},
	}
	if a.Redis != nil {
		checks = append(checks, api.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}})
	}
	return checks
}

// Serve runs the HTTP server and the task runner until ctx is done, then
// shuts both down.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.loader.Config()
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	a.loader.Watch(func(c *config.Config) {
		a.log.SetLevel(c.Logging.Level)
		a.log.Info("configuration reloaded", "log_level", c.Logging.Level, "maintenance", c.App.MaintenanceMode)
	}, func(err error) {
		a.log.Error("configuration reload failed", "error", err)
	})

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runnerDone := make(chan error, 1)
	if cfg.Runner.Enabled {
		go func() { runnerDone <- a.Runner.Start(ctx) }()
	} else {
		runnerDone <- nil
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("http shutdown", "error", err)
	}
	if err := <-runnerDone; err != nil {
		return err
	}
	return nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.log.Logger
}
