package repository

import (
	"context"
	"errors"
	"time"

	"github.com/anri-helpdesk/helpdesk/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrAmbiguous is returned when a lookup expected to be unique matches several rows.
	ErrAmbiguous = errors.New("lookup matched more than one record")
	// ErrDuplicate is returned when an insert hits a unique key.
	ErrDuplicate = errors.New("record already exists")
)

// TicketStore covers the ticket and reply writes of the reply workflow.
type TicketStore interface {
	FindByTrackingID(ctx context.Context, trackID string, customFields []string) (*models.Ticket, error)
	// SaveReply applies a ReplySubmission atomically. On success the
	// attachment IDs, reply ID and ticket counters are updated in place.
	SaveReply(ctx context.Context, sub *models.ReplySubmission) error
	// RecentReplyAuthors returns the staff id of each reply newer than since,
	// oldest first. Zero means the customer wrote it.
	RecentReplyAuthors(ctx context.Context, ticketID int64, since time.Time) ([]int64, error)
}

// LoginAttemptStore reads and writes the per-IP ban counters.
type LoginAttemptStore interface {
	// LatestAttempt returns the row for ip if its last attempt is after since.
	LatestAttempt(ctx context.Context, ip string, since time.Time) (*models.LoginAttempt, error)
	UpsertBan(ctx context.Context, ip string, number int, at time.Time) error
	ListActive(ctx context.Context, since time.Time) ([]*models.LoginAttempt, error)
	// Clear removes the row for ip, or every row when ip is empty.
	Clear(ctx context.Context, ip string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// TempAttachmentStore tracks uploads that are not yet bound to a ticket.
type TempAttachmentStore interface {
	CreateTemp(ctx context.Context, att *models.TempAttachment) error
	GetTemp(ctx context.Context, uniqueName string) (*models.TempAttachment, error)
	ListExpiredTemp(ctx context.Context, now time.Time, limit int) ([]*models.TempAttachment, error)
	DeleteTemp(ctx context.Context, id int64) error
}

// StaffDirectory resolves notification recipients.
type StaffDirectory interface {
	GetStaff(ctx context.Context, id int64) (*models.Staff, error)
	ListStaffByPreference(ctx context.Context, pref models.NotifyPreference) ([]*models.Staff, error)
}

// DeviceTokenStore holds FCM registration tokens of staff devices.
type DeviceTokenStore interface {
	ListDeviceTokens(ctx context.Context) ([]string, error)
	RegisterDeviceToken(ctx context.Context, staffID int64, token, platform string) error
	DeleteDeviceTokens(ctx context.Context, tokens []string) error
}
