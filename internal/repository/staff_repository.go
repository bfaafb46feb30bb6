package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/anri-helpdesk/helpdesk/internal/database"
	"github.com/anri-helpdesk/helpdesk/internal/models"
)

const staffColumns = `id, name, email, active, notify_reply_my, notify_reply_unassigned`

// preferenceColumns maps preferences to the users column holding the switch.
var preferenceColumns = map[models.NotifyPreference]string{
	models.PrefReplyMy:         "notify_reply_my",
	models.PrefReplyUnassigned: "notify_reply_unassigned",
}

// StaffRepository reads staff accounts from the HESK users table.
type StaffRepository struct {
	db *database.DB
}

func NewStaffRepository(db *database.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

var _ StaffDirectory = (*StaffRepository)(nil)

func (r *StaffRepository) GetStaff(ctx context.Context, id int64) (*models.Staff, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, staffColumns, r.db.Tables.Users())

	var s models.Staff
	q, args := r.db.Dialect.Prepare(query, id)
	if err := r.db.GetContext(ctx, &s, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load staff %d: %w", id, err)
	}
	return &s, nil
}

// ListStaffByPreference returns active staff with pref switched on.
func (r *StaffRepository) ListStaffByPreference(ctx context.Context, pref models.NotifyPreference) ([]*models.Staff, error) {
	col, ok := preferenceColumns[pref]
	if !ok {
		return nil, fmt.Errorf("unknown notification preference %q", pref)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE active = 1 AND %s = 1 ORDER BY id ASC`, staffColumns, r.db.Tables.Users(), col)

	var out []*models.Staff
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("list staff by %s: %w", pref, err)
	}
	return out, nil
}
