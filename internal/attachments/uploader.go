package attachments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anri-helpdesk/helpdesk/internal/models"
	"github.com/anri-helpdesk/helpdesk/internal/storage"
)

// Uploader writes legacy multipart uploads straight to their permanent keys.
type Uploader struct {
	backend storage.Backend
	log     *slog.Logger
}

func NewUploader(backend storage.Backend, log *slog.Logger) *Uploader {
	return &Uploader{backend: backend, log: log}
}

// Store saves every upload for trackID. If one fails, the files already
// written are removed and the error is returned.
func (u *Uploader) Store(ctx context.Context, trackID string, uploads []Upload) ([]*models.Attachment, error) {
	stored := make([]*models.Attachment, 0, len(uploads))
	for _, up := range uploads {
		att, err := u.put(ctx, trackID, up)
		if err != nil {
			u.Remove(ctx, stored)
			return nil, err
		}
		stored = append(stored, att)
	}
	return stored, nil
}

func (u *Uploader) put(ctx context.Context, trackID string, up Upload) (*models.Attachment, error) {
	if up.Open == nil {
		return nil, fmt.Errorf("upload %s has no content", up.Name)
	}
	rc, err := up.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", up.Name, err)
	}
	defer rc.Close()

	realName := CleanName(up.Name)
	saved := SavedName(trackID, realName)
	if err := u.backend.Put(ctx, saved, rc, up.Size, up.ContentType); err != nil {
		return nil, fmt.Errorf("store upload %s: %w", realName, err)
	}
	return &models.Attachment{TicketID: trackID, SavedName: saved, RealName: realName, Size: up.Size}, nil
}

// Remove deletes stored files. Failures are logged.
func (u *Uploader) Remove(ctx context.Context, atts []*models.Attachment) {
	for _, a := range atts {
		if err := u.backend.Delete(ctx, a.SavedName); err != nil {
			u.log.Warn("failed to remove attachment", "saved_name", a.SavedName, "error", err)
		}
	}
}
