package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/anri-helpdesk/helpdesk/internal/database"
)

func TestLatestAttempt(t *testing.T) {
	db, mock := newMockDB(t, database.MySQL)
	repo := NewLoginRepository(db)
	since := time.Now().Add(-time.Hour)
	last := time.Now().Add(-time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT ip, number, last_attempt FROM hesk_logins")).
		WithArgs("10.0.0.1", since).
		WillReturnRows(sqlmock.NewRows([]string{"ip", "number", "last_attempt"}).AddRow("10.0.0.1", 7, last))

	a, err := repo.LatestAttempt(context.Background(), "10.0.0.1", since)
	if err != nil {
		t.Fatalf("LatestAttempt failed: %v", err)
	}
	if a.Number != 7 || a.LastAttempt == nil || !a.LastAttempt.Equal(last) {
		t.Fatalf("unexpected attempt %+v", a)
	}

	mock.ExpectQuery("FROM hesk_logins").WillReturnRows(sqlmock.NewRows([]string{"ip", "number", "last_attempt"}))
	if _, err := repo.LatestAttempt(context.Background(), "10.0.0.2", since); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertBan(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("mysql", func(t *testing.T) {
		db, mock := newMockDB(t, database.MySQL)
		mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE number = VALUES(number)")).
			WithArgs("10.0.0.1", 7, at).
			WillReturnResult(sqlmock.NewResult(1, 1))

		if err := NewLoginRepository(db).UpsertBan(context.Background(), "10.0.0.1", 7, at); err != nil {
			t.Fatalf("UpsertBan failed: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})

	t.Run("postgres", func(t *testing.T) {
		db, mock := newMockDB(t, database.Postgres)
		mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3)\nON CONFLICT (ip) DO UPDATE")).
			WithArgs("10.0.0.1", 7, at).
			WillReturnResult(sqlmock.NewResult(1, 1))

		if err := NewLoginRepository(db).UpsertBan(context.Background(), "10.0.0.1", 7, at); err != nil {
			t.Fatalf("UpsertBan failed: %v", err)
		}
	})
}

func TestClearAndDeleteExpired(t *testing.T) {
	db, mock := newMockDB(t, database.MySQL)
	repo := NewLoginRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM hesk_logins WHERE ip = ?")).
		WithArgs("10.0.0.1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	n, err := repo.Clear(context.Background(), "10.0.0.1")
	if err != nil || n != 1 {
		t.Fatalf("Clear: n=%d err=%v", n, err)
	}

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM hesk_logins")).
		WillReturnResult(sqlmock.NewResult(0, 4))
	n, err = repo.Clear(context.Background(), "")
	if err != nil || n != 4 {
		t.Fatalf("Clear all: n=%d err=%v", n, err)
	}

	cutoff := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM hesk_logins WHERE last_attempt < ?")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = repo.DeleteExpired(context.Background(), cutoff)
	if err != nil || n != 2 {
		t.Fatalf("DeleteExpired: n=%d err=%v", n, err)
	}
}
