package models

import "time"

// Notification event names understood by the email and push subsystems.
const (
	EventNewReplyByCustomer = "new_reply_by_customer"
	PushTagReplyCustomer    = "reply_customer"
)

// NotificationPayload is the read-only view of a ticket handed to notifiers
// after a reply has been committed.
type NotificationPayload struct {
	ID           int64             `json:"id"`
	TrackID      string            `json:"trackid"`
	Email        string            `json:"email"`
	Name         string            `json:"name"`
	Subject      string            `json:"subject"`
	Category     int64             `json:"category"`
	Priority     int               `json:"priority"`
	Owner        int64             `json:"owner"`
	Status       Status            `json:"status"`
	Message      string            `json:"message"`
	Attachments  string            `json:"attachments"`
	Created      time.Time         `json:"dt"`
	LastChange   time.Time         `json:"lastchange"`
	DueDate      *time.Time        `json:"due_date,omitempty"`
	TimeWorked   string            `json:"time_worked"`
	LastReplyBy  string            `json:"last_reply_by"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// NewNotificationPayload builds the payload from the committed ticket state.
// Every configured custom field gets a key; disabled ones are left empty.
func NewNotificationPayload(t *Ticket, reply *Reply, customFields []string) *NotificationPayload {
	p := &NotificationPayload{
		ID:          t.ID,
		TrackID:     t.TrackID,
		Email:       t.Email,
		Name:        t.Name,
		Subject:     t.Subject,
		Category:    t.Category,
		Priority:    t.Priority,
		Owner:       t.Owner,
		Status:      t.Status,
		Created:     t.Created,
		LastChange:  t.LastChange,
		DueDate:     t.DueDate,
		TimeWorked:  t.TimeWorked,
		LastReplyBy: t.Name,
	}
	if reply != nil {
		p.Message = reply.MessageHTML
		p.Attachments = reply.Attachments
	}
	p.CustomFields = make(map[string]string, len(customFields))
	for _, name := range customFields {
		p.CustomFields[name] = t.CustomFields[name]
	}
	return p
}
