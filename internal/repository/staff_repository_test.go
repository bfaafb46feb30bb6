package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/anri-helpdesk/helpdesk/internal/database"
	"github.com/anri-helpdesk/helpdesk/internal/models"
)

func TestListStaffByPreference(t *testing.T) {
	db, mock := newMockDB(t, database.MySQL)
	repo := NewStaffRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE active = 1 AND notify_reply_unassigned = 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "active", "notify_reply_my", "notify_reply_unassigned"}).
			AddRow(1, "Admin", "admin@example.com", 1, 1, 1).
			AddRow(3, "Sari", "sari@example.com", 1, 0, 1))

	staff, err := repo.ListStaffByPreference(context.Background(), models.PrefReplyUnassigned)
	if err != nil {
		t.Fatalf("ListStaffByPreference failed: %v", err)
	}
	if len(staff) != 2 || staff[1].Email != "sari@example.com" || staff[1].NotifyReplyMy {
		t.Fatalf("unexpected staff %+v", staff)
	}
}

func TestListStaffByUnknownPreference(t *testing.T) {
	db, _ := newMockDB(t, database.MySQL)
	if _, err := NewStaffRepository(db).ListStaffByPreference(context.Background(), "notify_everything"); err == nil {
		t.Fatalf("expected error for unknown preference")
	}
}

func TestDeviceTokens(t *testing.T) {
	db, mock := newMockDB(t, database.MySQL)
	repo := NewDeviceTokenRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT token FROM hesk_device_tokens")).
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("t1").AddRow("t2"))
	tokens, err := repo.ListDeviceTokens(context.Background())
	if err != nil || len(tokens) != 2 {
		t.Fatalf("ListDeviceTokens: %v %v", tokens, err)
	}

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM hesk_device_tokens WHERE token IN (?, ?)")).
		WithArgs("t1", "t2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	if err := repo.DeleteDeviceTokens(context.Background(), []string{"t1", "t2"}); err != nil {
		t.Fatalf("DeleteDeviceTokens failed: %v", err)
	}
	if err := repo.DeleteDeviceTokens(context.Background(), nil); err != nil {
		t.Fatalf("empty delete should be a no-op: %v", err)
	}
}
