package attachments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anri-helpdesk/helpdesk/internal/models"
	"github.com/anri-helpdesk/helpdesk/internal/repository"
	"github.com/anri-helpdesk/helpdesk/internal/storage"
)

const cleanupBatch = 100

// Migrator owns temporary uploads: it creates them, moves them to a ticket
// and purges the ones that expired.
type Migrator struct {
	backend storage.Backend
	temps   repository.TempAttachmentStore
	policy  Policy
	ttl     time.Duration
	log     *slog.Logger
	now     func() time.Time
}

// Option customises a Migrator.
type Option func(*Migrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Migrator) { m.now = now }
}

// NewMigrator stores uploads in backend and tracks temp uploads in temps.
// Temp uploads older than ttl are removed by Cleanup.
func NewMigrator(backend storage.Backend, temps repository.TempAttachmentStore, policy Policy, ttl time.Duration, log *slog.Logger, opts ...Option) *Migrator {
	m := &Migrator{backend: backend, temps: temps, policy: policy, ttl: ttl, log: log, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Migration is the result of moving temp uploads to a ticket. The permanent
// copies exist in storage; the temp files are kept until Finalize.
type Migration struct {
	Attachments []*models.Attachment
	// Consumed lists the temp rows to delete together with the reply.
	Consumed []int64

	tempKeys []string
	m        *Migrator
}

// Migrate copies every temp upload named by handles to a permanent key for
// trackingID. Unknown, expired and missing uploads are skipped.
func (m *Migrator) Migrate(ctx context.Context, handles []string, trackingID string) (*Migration, error) {
	mig := &Migration{m: m}
	seen := make(map[string]struct{}, len(handles))

	for _, h := range handles {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}

		tmp, err := m.temps.GetTemp(ctx, h)
		if errors.Is(err, repository.ErrNotFound) {
			m.log.Debug("temp attachment not found, skipping", "handle", h)
			continue
		}
		if err != nil {
			mig.Abort(ctx)
			return nil, fmt.Errorf("load temp attachment %s: %w", h, err)
		}
		if !tmp.ExpiresAt.After(m.now()) {
			m.log.Debug("temp attachment expired, skipping", "handle", h)
			continue
		}

		saved := SavedName(trackingID, tmp.RealName)
		err = m.backend.Copy(ctx, TempKey(tmp.SavedName), saved)
		if errors.Is(err, storage.ErrNotExist) {
			m.log.Debug("temp attachment file missing, skipping", "handle", h, "saved_name", tmp.SavedName)
			continue
		}
		if err != nil {
			mig.Abort(ctx)
			return nil, fmt.Errorf("migrate temp attachment %s: %w", h, err)
		}

		mig.Attachments = append(mig.Attachments, &models.Attachment{
			TicketID:  trackingID,
			SavedName: saved,
			RealName:  tmp.RealName,
			Size:      tmp.Size,
		})
		mig.Consumed = append(mig.Consumed, tmp.ID)
		mig.tempKeys = append(mig.tempKeys, TempKey(tmp.SavedName))
	}
	return mig, nil
}

// Finalize removes the temp files once the reply is committed.
func (mig *Migration) Finalize(ctx context.Context) {
	if mig == nil {
		return
	}
	for _, key := range mig.tempKeys {
		if err := mig.m.backend.Delete(ctx, key); err != nil {
			mig.m.log.Warn("failed to remove migrated temp file", "key", key, "error", err)
		}
	}
	mig.tempKeys = nil
}

// Abort removes the permanent copies after a failed commit. The temp uploads
// stay so the customer can resubmit.
func (mig *Migration) Abort(ctx context.Context) {
	if mig == nil {
		return
	}
	for _, a := range mig.Attachments {
		if err := mig.m.backend.Delete(ctx, a.SavedName); err != nil {
			mig.m.log.Warn("failed to remove migrated copy", "saved_name", a.SavedName, "error", err)
		}
	}
	mig.Attachments = nil
	mig.Consumed = nil
}

// UploadTemporary stores an upload made before the reply form is posted and
// returns its temp record. The UniqueName is the handle the form posts back.
func (m *Migrator) UploadTemporary(ctx context.Context, up Upload) (*models.TempAttachment, error) {
	if issues := m.policy.Check(up); len(issues) > 0 {
		return nil, &PolicyError{Issues: issues}
	}
	if up.Open == nil {
		return nil, fmt.Errorf("upload %s has no content", up.Name)
	}
	rc, err := up.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", up.Name, err)
	}
	defer rc.Close()

	realName := CleanName(up.Name)
	tmp := &models.TempAttachment{
		UniqueName: newHandle(),
		SavedName:  SavedName("tmp", realName),
		RealName:   realName,
		Size:       up.Size,
		ExpiresAt:  m.now().Add(m.ttl),
	}
	if err := m.backend.Put(ctx, TempKey(tmp.SavedName), rc, up.Size, up.ContentType); err != nil {
		return nil, fmt.Errorf("store temp upload %s: %w", realName, err)
	}
	err = m.temps.CreateTemp(ctx, tmp)
	if errors.Is(err, repository.ErrDuplicate) {
		tmp.UniqueName = newHandle()
		err = m.temps.CreateTemp(ctx, tmp)
	}
	if err != nil {
		if derr := m.backend.Delete(ctx, TempKey(tmp.SavedName)); derr != nil {
			m.log.Warn("failed to remove orphaned temp file", "saved_name", tmp.SavedName, "error", derr)
		}
		return nil, fmt.Errorf("record temp upload %s: %w", realName, err)
	}
	return tmp, nil
}

// Cleanup purges expired temp uploads and returns how many were removed.
func (m *Migrator) Cleanup(ctx context.Context) (int, error) {
	now := m.now()
	removed := 0
	for {
		expired, err := m.temps.ListExpiredTemp(ctx, now, cleanupBatch)
		if err != nil {
			return removed, fmt.Errorf("list expired temp attachments: %w", err)
		}
		if len(expired) == 0 {
			return removed, nil
		}
		for _, t := range expired {
			if err := m.backend.Delete(ctx, TempKey(t.SavedName)); err != nil {
				return removed, fmt.Errorf("delete temp file %s: %w", t.SavedName, err)
			}
			if err := m.temps.DeleteTemp(ctx, t.ID); err != nil {
				return removed, fmt.Errorf("delete temp row %d: %w", t.ID, err)
			}
			removed++
		}
		if len(expired) < cleanupBatch {
			return removed, nil
		}
	}
}

func newHandle() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
