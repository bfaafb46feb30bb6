package models

import "time"

// Reply is a single message posted to a ticket (HESK replies table).
// StaffID is zero for customer-authored replies.
type Reply struct {
	ID          int64     `json:"id" db:"id"`
	ReplyTo     int64     `json:"replyto" db:"replyto"`
	Name        string    `json:"name" db:"name"`
	Message     string    `json:"message" db:"message"`
	MessageHTML string    `json:"message_html" db:"message_html"`
	Dt          time.Time `json:"dt" db:"dt"`
	StaffID     int64     `json:"staffid" db:"staffid"`
	Attachments string    `json:"attachments" db:"attachments"`
}

// ByStaff reports whether the reply was written by a staff member.
func (r *Reply) ByStaff() bool {
	return r.StaffID > 0
}

// ReplySubmission groups every write of one customer reply so the store can
// apply them in a single transaction.
type ReplySubmission struct {
	// Ticket carries the new status and last-change time; the store increments
	// the reply counter and marks the customer as last replier.
	Ticket *Ticket
	Reply  *Reply
	// Attachments are inserted first; their IDs feed Reply.Attachments.
	Attachments []*Attachment
	// ConsumedTemp lists temp_attachments rows to delete with the commit.
	ConsumedTemp []int64
}
