package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/anri-helpdesk/helpdesk/internal/database"
)

// DeviceTokenRepository stores FCM registration tokens.
type DeviceTokenRepository struct {
	db *database.DB
}

func NewDeviceTokenRepository(db *database.DB) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

var _ DeviceTokenStore = (*DeviceTokenRepository)(nil)

func (r *DeviceTokenRepository) ListDeviceTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	query := fmt.Sprintf(`SELECT token FROM %s ORDER BY id ASC`, r.db.Tables.DeviceTokens())
	if err := r.db.SelectContext(ctx, &tokens, query); err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	return tokens, nil
}

// RegisterDeviceToken stores token for staffID, moving it if it already exists.
func (r *DeviceTokenRepository) RegisterDeviceToken(ctx context.Context, staffID int64, token, platform string) error {
	table := r.db.Tables.DeviceTokens()

	var query string
	if r.db.Dialect == database.MySQL {
		query = fmt.Sprintf(`INSERT INTO %s (staff_id, token, platform) VALUES ($1, $2, $3)
ON DUPLICATE KEY UPDATE staff_id = VALUES(staff_id), platform = VALUES(platform)`, table)
	} else {
		query = fmt.Sprintf(`INSERT INTO %s (staff_id, token, platform) VALUES ($1, $2, $3)
ON CONFLICT (token) DO UPDATE SET staff_id = excluded.staff_id, platform = excluded.platform`, table)
	}
	if _, err := r.db.Execute(ctx, r.db, query, staffID, token, platform); err != nil {
		return fmt.Errorf("register device token: %w", err)
	}
	return nil
}

// DeleteDeviceTokens removes tokens FCM reported as unregistered.
func (r *DeviceTokenRepository) DeleteDeviceTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	q, args, err := sqlx.In(fmt.Sprintf(`DELETE FROM %s WHERE token IN (?)`, r.db.Tables.DeviceTokens()), tokens)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(q), args...); err != nil {
		return fmt.Errorf("delete device tokens: %w", err)
	}
	return nil
}
