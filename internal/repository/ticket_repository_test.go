package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/anri-helpdesk/helpdesk/internal/database"
	"github.com/anri-helpdesk/helpdesk/internal/models"
)

func newMockDB(t *testing.T, dialect database.Dialect) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock setup failed: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	return database.New(raw, dialect, "hesk_"), mock
}

var ticketRowColumns = []string{
	"id", "trackid", "name", "email", "category", "priority", "subject", "owner", "status", "locked",
	"dt", "lastchange", "replies", "lastreplier", "due_date", "time_worked",
}

func TestFindByTrackingID(t *testing.T) {
	db, mock := newMockDB(t, database.MySQL)
	repo := NewTicketRepository(db)

	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(append(append([]string{}, ticketRowColumns...), "custom1", "custom2")).
		AddRow(7, "ABC-123-DEF", "Budi", "budi@example.com", 1, 3, "Printer", 4, 2, 0,
			created, created, 3, 1, nil, "00:10:00", "INV-9", nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, trackid")).
		WithArgs("ABC-123-DEF").
		WillReturnRows(rows)

	ticket, err := repo.FindByTrackingID(context.Background(), "ABC-123-DEF", []string{"custom1", "custom2"})
	if err != nil {
		t.Fatalf("FindByTrackingID failed: %v", err)
	}
	if ticket.ID != 7 || ticket.Owner != 4 {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if ticket.Status != models.StatusWaitingCustomer {
		t.Fatalf("unexpected status %v", ticket.Status)
	}
	if ticket.LastReplier != models.ReplierStaff {
		t.Fatalf("unexpected last replier %v", ticket.LastReplier)
	}
	if ticket.DueDate != nil {
		t.Fatalf("expected nil due date")
	}
	if ticket.CustomFields["custom1"] != "INV-9" || ticket.CustomFields["custom2"] != "" {
		t.Fatalf("unexpected custom fields %v", ticket.CustomFields)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByTrackingIDNotFoundAndAmbiguous(t *testing.T) {
	db, mock := newMockDB(t, database.MySQL)
	repo := NewTicketRepository(db)
	now := time.Now()

	mock.ExpectQuery("FROM hesk_tickets").WillReturnRows(sqlmock.NewRows(ticketRowColumns))
	if _, err := repo.FindByTrackingID(context.Background(), "NOPE", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	dup := sqlmock.NewRows(ticketRowColumns).
		AddRow(1, "DUP", "a", "", 1, 3, "s", 0, 0, 0, now, now, 0, 0, nil, "").
		AddRow(2, "DUP", "b", "", 1, 3, "s", 0, 0, 0, now, now, 0, 0, nil, "")
	mock.ExpectQuery("LIMIT 2").WillReturnRows(dup)
	if _, err := repo.FindByTrackingID(context.Background(), "DUP", nil); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
}

func TestFindByTrackingIDRejectsBadColumn(t *testing.T) {
	db, _ := newMockDB(t, database.MySQL)
	repo := NewTicketRepository(db)

	if _, err := repo.FindByTrackingID(context.Background(), "X", []string{"custom1; DROP TABLE x"}); err == nil {
		t.Fatalf("expected error for invalid custom column")
	}
}

func TestSaveReply(t *testing.T) {
	db, mock := newMockDB(t, database.MySQL)
	repo := NewTicketRepository(db)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	sub := &models.ReplySubmission{
		Ticket: &models.Ticket{ID: 7, Status: models.StatusWaitingStaff, LastChange: now, Replies: 3, LastReplier: models.ReplierStaff},
		Reply:  &models.Reply{ReplyTo: 7, Name: "Budi", Message: "hi", MessageHTML: "hi", Dt: now},
		Attachments: []*models.Attachment{
			{TicketID: "ABC-123-DEF", SavedName: "a.txt", RealName: "a.txt", Size: 10},
			{TicketID: "ABC-123-DEF", SavedName: "b.pdf", RealName: "b.pdf", Size: 20},
		},
		ConsumedTemp: []int64{11, 12},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hesk_attachments (ticket_id, saved_name, real_name, size) VALUES (?, ?, ?, ?)")).
		WithArgs("ABC-123-DEF", "a.txt", "a.txt", int64(10)).
		WillReturnResult(sqlmock.NewResult(101, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hesk_attachments")).
		WithArgs("ABC-123-DEF", "b.pdf", "b.pdf", int64(20)).
		WillReturnResult(sqlmock.NewResult(102, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE hesk_tickets SET lastchange = ?, status = ?, replies = replies + 1, lastreplier = ? WHERE id = ?")).
		WithArgs(now, 1, 0, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hesk_replies")).
		WithArgs(int64(7), "Budi", "hi", "hi", now, "101#a.txt,102#b.pdf,", int64(0)).
		WillReturnResult(sqlmock.NewResult(555, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM hesk_temp_attachments WHERE id IN (?, ?)")).
		WithArgs(int64(11), int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := repo.SaveReply(context.Background(), sub); err != nil {
		t.Fatalf("SaveReply failed: %v", err)
	}
	if sub.Reply.ID != 555 {
		t.Fatalf("expected reply id 555, got %d", sub.Reply.ID)
	}
	if sub.Reply.Attachments != "101#a.txt,102#b.pdf," {
		t.Fatalf("unexpected refs %q", sub.Reply.Attachments)
	}
	if sub.Ticket.Replies != 4 || sub.Ticket.LastReplier != models.ReplierCustomer {
		t.Fatalf("ticket counters not updated: %+v", sub.Ticket)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveReplyRollsBack(t *testing.T) {
	db, mock := newMockDB(t, database.MySQL)
	repo := NewTicketRepository(db)
	now := time.Now()

	sub := &models.ReplySubmission{
		Ticket: &models.Ticket{ID: 7, LastChange: now, Replies: 3},
		Reply:  &models.Reply{ReplyTo: 7, Name: "Budi", Message: "hi", MessageHTML: "hi", Dt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE hesk_tickets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO hesk_replies").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.SaveReply(context.Background(), sub)
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected wrapped ErrConnDone, got %v", err)
	}
	if sub.Ticket.Replies != 3 {
		t.Fatalf("reply counter must not change on failure, got %d", sub.Ticket.Replies)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveReplyPostgresReturning(t *testing.T) {
	db, mock := newMockDB(t, database.Postgres)
	repo := NewTicketRepository(db)
	now := time.Now()

	sub := &models.ReplySubmission{
		Ticket: &models.Ticket{ID: 3, LastChange: now},
		Reply:  &models.Reply{ReplyTo: 3, Name: "Ani", Message: "m", MessageHTML: "m", Dt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE hesk_tickets SET lastchange = $1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO hesk_replies (replyto, name, message, message_html, dt, attachments, staffid) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(77))
	mock.ExpectCommit()

	if err := repo.SaveReply(context.Background(), sub); err != nil {
		t.Fatalf("SaveReply failed: %v", err)
	}
	if sub.Reply.ID != 77 {
		t.Fatalf("expected reply id 77, got %d", sub.Reply.ID)
	}
}

func TestRecentReplyAuthors(t *testing.T) {
	db, mock := newMockDB(t, database.MySQL)
	repo := NewTicketRepository(db)
	since := time.Date(2025, 3, 1, 9, 50, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT staffid FROM hesk_replies WHERE replyto = ? AND dt > ? ORDER BY id ASC")).
		WithArgs(int64(7), since).
		WillReturnRows(sqlmock.NewRows([]string{"staffid"}).AddRow(0).AddRow(2).AddRow(0))

	authors, err := repo.RecentReplyAuthors(context.Background(), 7, since)
	if err != nil {
		t.Fatalf("RecentReplyAuthors failed: %v", err)
	}
	if len(authors) != 3 || authors[1] != 2 {
		t.Fatalf("unexpected authors %v", authors)
	}
}

func TestCustomColumns(t *testing.T) {
	got := CustomColumns([]string{"custom1", " Custom20 ", "custom21", "owner"})
	if len(got) != 2 || got[0] != "custom1" || got[1] != "custom20" {
		t.Fatalf("unexpected columns %v", got)
	}
}
