package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/anri-helpdesk/helpdesk/internal/database"
	"github.com/anri-helpdesk/helpdesk/internal/models"
)

const tempColumns = `id, unique_name, saved_name, real_name, size, expires_at`

// TempAttachmentRepository is the SQL implementation of TempAttachmentStore.
type TempAttachmentRepository struct {
	db *database.DB
}

func NewTempAttachmentRepository(db *database.DB) *TempAttachmentRepository {
	return &TempAttachmentRepository{db: db}
}

var _ TempAttachmentStore = (*TempAttachmentRepository)(nil)

func (r *TempAttachmentRepository) CreateTemp(ctx context.Context, att *models.TempAttachment) error {
	id, err := r.db.InsertID(ctx, r.db,
		fmt.Sprintf(`INSERT INTO %s (unique_name, saved_name, real_name, size, expires_at) VALUES ($1, $2, $3, $4, $5)`, r.db.Tables.TempAttachments()),
		"id", att.UniqueName, att.SavedName, att.RealName, att.Size, att.ExpiresAt)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert temp attachment: %w", err)
	}
	att.ID = id
	return nil
}

func (r *TempAttachmentRepository) GetTemp(ctx context.Context, uniqueName string) (*models.TempAttachment, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE unique_name = $1`, tempColumns, r.db.Tables.TempAttachments())

	var att models.TempAttachment
	q, args := r.db.Dialect.Prepare(query, uniqueName)
	if err := r.db.GetContext(ctx, &att, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load temp attachment: %w", err)
	}
	return &att, nil
}

// ListExpiredTemp returns up to limit rows whose expiry is not after now.
func (r *TempAttachmentRepository) ListExpiredTemp(ctx context.Context, now time.Time, limit int) ([]*models.TempAttachment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE expires_at <= $1 ORDER BY id ASC LIMIT $2`, tempColumns, r.db.Tables.TempAttachments())

	var out []*models.TempAttachment
	q, args := r.db.Dialect.Prepare(query, now, limit)
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("list expired temp attachments: %w", err)
	}
	return out, nil
}

func (r *TempAttachmentRepository) DeleteTemp(ctx context.Context, id int64) error {
	_, err := r.db.Execute(ctx, r.db, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.db.Tables.TempAttachments()), id)
	if err != nil {
		return fmt.Errorf("delete temp attachment %d: %w", id, err)
	}
	return nil
}
