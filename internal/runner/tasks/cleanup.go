// Package tasks holds the scheduled maintenance jobs of the help desk.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anri-helpdesk/helpdesk/internal/repository"
	"github.com/anri-helpdesk/helpdesk/internal/runner"
)

const (
	TempCleanupName  = "temp-attachment-cleanup"
	LoginCleanupName = "login-attempt-cleanup"
)

// TempCleaner purges expired temporary uploads.
type TempCleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// PurgeObserver counts purged temporary uploads.
type PurgeObserver interface {
	TempPurged(n int)
}

// TempCleanupTask removes temp attachments whose handle has expired.
type TempCleanupTask struct {
	cleaner  TempCleaner
	schedule string
	observer PurgeObserver
	logger   *slog.Logger
}

// NewTempCleanupTask creates the temp attachment cleanup task. observer may be nil.
func NewTempCleanupTask(cleaner TempCleaner, schedule string, observer PurgeObserver, log *slog.Logger) runner.Task {
	return &TempCleanupTask{
		cleaner:  cleaner,
		schedule: schedule,
		observer: observer,
		logger:   log.With("task", TempCleanupName),
	}
}

func (t *TempCleanupTask) Name() string           { return TempCleanupName }
func (t *TempCleanupTask) Schedule() string       { return t.schedule }
func (t *TempCleanupTask) Timeout() time.Duration { return 5 * time.Minute }

func (t *TempCleanupTask) Run(ctx context.Context) error {
	n, err := t.cleaner.Cleanup(ctx)
	if n > 0 {
		t.logger.Info("purged expired temp attachments", "count", n)
		if t.observer != nil {
			t.observer.TempPurged(n)
		}
	}
	if err != nil {
		return fmt.Errorf("temp attachment cleanup: %w", err)
	}
	return nil
}

// LoginCleanupTask deletes login attempt rows older than the ban window.
type LoginCleanupTask struct {
	logins   repository.LoginAttemptStore
	banMin   int
	schedule string
	logger   *slog.Logger
	now      func() time.Time
}

// NewLoginCleanupTask creates the login attempt cleanup task.
func NewLoginCleanupTask(logins repository.LoginAttemptStore, banMinutes int, schedule string, log *slog.Logger) *LoginCleanupTask {
	return &LoginCleanupTask{
		logins:   logins,
		banMin:   banMinutes,
		schedule: schedule,
		logger:   log.With("task", LoginCleanupName),
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (t *LoginCleanupTask) WithClock(now func() time.Time) *LoginCleanupTask {
	t.now = now
	return t
}

func (t *LoginCleanupTask) Name() string           { return LoginCleanupName }
func (t *LoginCleanupTask) Schedule() string       { return t.schedule }
func (t *LoginCleanupTask) Timeout() time.Duration { return time.Minute }

func (t *LoginCleanupTask) Run(ctx context.Context) error {
	before := t.now().Add(-time.Duration(t.banMin) * time.Minute)
	n, err := t.logins.DeleteExpired(ctx, before)
	if err != nil {
		return fmt.Errorf("login attempt cleanup: %w", err)
	}
	if n > 0 {
		t.logger.Info("deleted stale login attempts", "count", n)
	}
	return nil
}
