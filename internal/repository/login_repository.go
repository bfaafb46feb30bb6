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

// LoginRepository manages the logins table used for temporary IP bans.
type LoginRepository struct {
	db *database.DB
}

func NewLoginRepository(db *database.DB) *LoginRepository {
	return &LoginRepository{db: db}
}

var _ LoginAttemptStore = (*LoginRepository)(nil)

// LatestAttempt returns the counter for ip when its last attempt is after since.
func (r *LoginRepository) LatestAttempt(ctx context.Context, ip string, since time.Time) (*models.LoginAttempt, error) {
	query := fmt.Sprintf(`SELECT ip, number, last_attempt FROM %s
WHERE ip = $1 AND last_attempt IS NOT NULL AND last_attempt > $2
LIMIT 1`, r.db.Tables.Logins())

	var a models.LoginAttempt
	q, args := r.db.Dialect.Prepare(query, ip, since)
	if err := r.db.GetContext(ctx, &a, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load login attempts for %s: %w", ip, err)
	}
	return &a, nil
}

// UpsertBan writes number for ip, replacing any existing counter. The ip
// column is unique so concurrent bans collapse into one row.
func (r *LoginRepository) UpsertBan(ctx context.Context, ip string, number int, at time.Time) error {
	table := r.db.Tables.Logins()

	var query string
	if r.db.Dialect == database.MySQL {
		query = fmt.Sprintf(`INSERT INTO %s (ip, number, last_attempt) VALUES ($1, $2, $3)
ON DUPLICATE KEY UPDATE number = VALUES(number), last_attempt = VALUES(last_attempt)`, table)
	} else {
		query = fmt.Sprintf(`INSERT INTO %s (ip, number, last_attempt) VALUES ($1, $2, $3)
ON CONFLICT (ip) DO UPDATE SET number = excluded.number, last_attempt = excluded.last_attempt`, table)
	}

	if _, err := r.db.Execute(ctx, r.db, query, ip, number, at); err != nil {
		return fmt.Errorf("ban %s: %w", ip, err)
	}
	return nil
}

// ListActive returns every counter touched after since, newest first.
func (r *LoginRepository) ListActive(ctx context.Context, since time.Time) ([]*models.LoginAttempt, error) {
	query := fmt.Sprintf(`SELECT ip, number, last_attempt FROM %s
WHERE last_attempt > $1
ORDER BY last_attempt DESC`, r.db.Tables.Logins())

	var out []*models.LoginAttempt
	q, args := r.db.Dialect.Prepare(query, since)
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("list login attempts: %w", err)
	}
	return out, nil
}

// Clear deletes the counter for ip, or all counters when ip is empty.
func (r *LoginRepository) Clear(ctx context.Context, ip string) (int64, error) {
	table := r.db.Tables.Logins()

	var (
		res sql.Result
		err error
	)
	if ip == "" {
		res, err = r.db.Execute(ctx, r.db, fmt.Sprintf(`DELETE FROM %s`, table))
	} else {
		res, err = r.db.Execute(ctx, r.db, fmt.Sprintf(`DELETE FROM %s WHERE ip = $1`, table), ip)
	}
	if err != nil {
		return 0, fmt.Errorf("clear login attempts: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpired removes counters whose last attempt is before the cutoff.
func (r *LoginRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.Execute(ctx, r.db,
		fmt.Sprintf(`DELETE FROM %s WHERE last_attempt < $1`, r.db.Tables.Logins()), before)
	if err != nil {
		return 0, fmt.Errorf("delete expired login attempts: %w", err)
	}
	return res.RowsAffected()
}
