package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/anri-helpdesk/helpdesk/internal/database"
	"github.com/anri-helpdesk/helpdesk/internal/models"
)

var customColumnRe = regexp.MustCompile(`^custom([1-9]|1[0-9]|20)$`)

const ticketColumns = `id, trackid, name, email, category, priority, subject, owner, status, locked,
       dt, lastchange, replies, lastreplier, due_date, time_worked`

// TicketRepository is the SQL implementation of TicketStore.
type TicketRepository struct {
	db *database.DB
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(db *database.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

var _ TicketStore = (*TicketRepository)(nil)

// FindByTrackingID loads the ticket with the given tracking id plus the
// requested customN columns. Zero rows yield ErrNotFound, several ErrAmbiguous.
func (r *TicketRepository) FindByTrackingID(ctx context.Context, trackID string, customFields []string) (*models.Ticket, error) {
	cols := ticketColumns
	for _, f := range customFields {
		if !customColumnRe.MatchString(f) {
			return nil, fmt.Errorf("invalid custom field column %q", f)
		}
		cols += ", " + f
	}

	query := fmt.Sprintf(`SELECT %s
FROM %s
WHERE trackid = $1
LIMIT 2`, cols, r.db.Tables.Tickets())

	q, args := r.db.Dialect.Prepare(query, trackID)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ticket %s: %w", trackID, err)
	}
	defer rows.Close()

	var found []*models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows, customFields)
		if err != nil {
			return nil, err
		}
		found = append(found, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return nil, ErrAmbiguous
	}
}

func scanTicket(rows *sql.Rows, customFields []string) (*models.Ticket, error) {
	var (
		t          models.Ticket
		email      sql.NullString
		dueDate    sql.NullTime
		timeWorked sql.NullString
		custom     = make([]sql.NullString, len(customFields))
	)

	dest := []any{
		&t.ID, &t.TrackID, &t.Name, &email, &t.Category, &t.Priority, &t.Subject, &t.Owner,
		&t.Status, &t.Locked, &t.Created, &t.LastChange, &t.Replies, &t.LastReplier,
		&dueDate, &timeWorked,
	}
	for i := range custom {
		dest = append(dest, &custom[i])
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan ticket: %w", err)
	}

	t.Email = email.String
	t.TimeWorked = timeWorked.String
	if dueDate.Valid {
		d := dueDate.Time
		t.DueDate = &d
	}
	if len(customFields) > 0 {
		t.CustomFields = make(map[string]string, len(customFields))
		for i, name := range customFields {
			t.CustomFields[name] = custom[i].String
		}
	}
	return &t, nil
}

// SaveReply inserts the attachments and the reply and updates the ticket in
// one transaction, then drops the consumed temp rows in the same commit.
func (r *TicketRepository) SaveReply(ctx context.Context, sub *models.ReplySubmission) error {
	if sub == nil || sub.Ticket == nil || sub.Reply == nil {
		return fmt.Errorf("incomplete reply submission")
	}
	tables := r.db.Tables

	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, att := range sub.Attachments {
			id, err := r.db.InsertID(ctx, tx,
				fmt.Sprintf(`INSERT INTO %s (ticket_id, saved_name, real_name, size) VALUES ($1, $2, $3, $4)`, tables.Attachments()),
				"att_id", att.TicketID, att.SavedName, att.RealName, att.Size)
			if err != nil {
				return fmt.Errorf("insert attachment %s: %w", att.RealName, err)
			}
			att.ID = id
		}
		sub.Reply.Attachments = models.EncodeAttachmentRefs(sub.Attachments)

		if _, err := r.db.Execute(ctx, tx,
			fmt.Sprintf(`UPDATE %s SET lastchange = $1, status = $2, replies = replies + 1, lastreplier = $3 WHERE id = $4`, tables.Tickets()),
			sub.Ticket.LastChange, int(sub.Ticket.Status), int(models.ReplierCustomer), sub.Ticket.ID); err != nil {
			return fmt.Errorf("update ticket %d: %w", sub.Ticket.ID, err)
		}

		id, err := r.db.InsertID(ctx, tx,
			fmt.Sprintf(`INSERT INTO %s (replyto, name, message, message_html, dt, attachments, staffid) VALUES ($1, $2, $3, $4, $5, $6, $7)`, tables.Replies()),
			"id", sub.Reply.ReplyTo, sub.Reply.Name, sub.Reply.Message, sub.Reply.MessageHTML, sub.Reply.Dt, sub.Reply.Attachments, sub.Reply.StaffID)
		if err != nil {
			return fmt.Errorf("insert reply: %w", err)
		}
		sub.Reply.ID = id

		if len(sub.ConsumedTemp) > 0 {
			q, args, err := sqlx.In(fmt.Sprintf(`DELETE FROM %s WHERE id IN (?)`, tables.TempAttachments()), sub.ConsumedTemp)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
				return fmt.Errorf("delete temp attachments: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	sub.Ticket.Replies++
	sub.Ticket.LastReplier = models.ReplierCustomer
	return nil
}

// RecentReplyAuthors returns the staffid column of replies newer than since.
func (r *TicketRepository) RecentReplyAuthors(ctx context.Context, ticketID int64, since time.Time) ([]int64, error) {
	query := fmt.Sprintf(`SELECT staffid FROM %s WHERE replyto = $1 AND dt > $2 ORDER BY id ASC`, r.db.Tables.Replies())

	var authors []int64
	q, args := r.db.Dialect.Prepare(query, ticketID, since)
	if err := r.db.SelectContext(ctx, &authors, q, args...); err != nil {
		return nil, fmt.Errorf("recent replies for ticket %d: %w", ticketID, err)
	}
	return authors, nil
}

// CustomColumns filters names down to valid customN columns.
func CustomColumns(names []string) []string {
	var cols []string
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if customColumnRe.MatchString(n) {
			cols = append(cols, n)
		}
	}
	return cols
}
