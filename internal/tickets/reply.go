// Package tickets implements the customer reply workflow: validation, flood
// control, attachment handling, the status transition, the transactional
// write and the notifications that follow it.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anri-helpdesk/helpdesk/internal/attachments"
	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/floodguard"
	"github.com/anri-helpdesk/helpdesk/internal/models"
	"github.com/anri-helpdesk/helpdesk/internal/repository"
	"github.com/anri-helpdesk/helpdesk/internal/session"
	"github.com/anri-helpdesk/helpdesk/internal/ticketutil"
)

// FloodGuard is implemented by *floodguard.Guard.
type FloodGuard interface {
	CheckReplyInterval(ctx context.Context, sessionID string) error
	CheckIPBan(ctx context.Context, ip string) error
	CheckSequentialReplies(ctx context.Context, ticketID int64, ip string) error
}

// TempMigrator moves async uploads to a ticket.
type TempMigrator interface {
	Migrate(ctx context.Context, handles []string, trackingID string) (*attachments.Migration, error)
}

// LegacyUploader stores multipart uploads directly.
type LegacyUploader interface {
	Store(ctx context.Context, trackID string, uploads []attachments.Upload) ([]*models.Attachment, error)
	Remove(ctx context.Context, atts []*models.Attachment)
}

// MessageRenderer turns raw reply text into message_html.
type MessageRenderer interface {
	HTML(raw string) (string, error)
}

// Notifier is told about committed replies.
type Notifier interface {
	ReplyByCustomer(ctx context.Context, payload *models.NotificationPayload, rawMessage string)
}

// Observer counts reply outcomes.
type Observer interface {
	ReplyOutcome(outcome string)
}

type nopObserver struct{}

func (nopObserver) ReplyOutcome(string) {}

// Reply outcomes reported to the Observer.
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation"
	OutcomeFlood      = "flood"
	OutcomeBanned     = "banned"
	OutcomeNotFound   = "not_found"
	OutcomeLocked     = "locked"
	OutcomeEmail      = "email_mismatch"
	OutcomeError      = "error"
)

// ReplyRequest is one customer reply as posted by the form or the API.
type ReplyRequest struct {
	TrackingID string
	Email      string
	Message    string
	Reopen     bool
	ClientIP   string

	// TempAttachments are handles of async uploads.
	TempAttachments []string
	// UseLegacyAttachments selects Uploads instead of TempAttachments.
	UseLegacyAttachments bool
	Uploads              []attachments.Upload
}

// ReplyResult describes a committed reply.
type ReplyResult struct {
	Ticket      *models.Ticket
	Reply       *models.Reply
	Attachments []*models.Attachment
	Payload     *models.NotificationPayload
}

// Dependencies are the collaborators of a ReplyService. Migrator and Uploader
// may be nil when attachments are disabled.
type Dependencies struct {
	Tickets  repository.TicketStore
	Guard    FloodGuard
	Migrator TempMigrator
	Uploader LegacyUploader
	Renderer MessageRenderer
	Status   ticketutil.StatusPolicy
	Notifier Notifier
	Observer Observer
	Logger   *slog.Logger
	Clock    func() time.Time
}

// ReplyService runs the customer reply workflow.
type ReplyService struct {
	tickets  repository.TicketStore
	guard    FloodGuard
	migrator TempMigrator
	uploader LegacyUploader
	renderer MessageRenderer
	status   ticketutil.StatusPolicy
	notifier Notifier
	observer Observer
	log      *slog.Logger
	now      func() time.Time

	policy         attachments.Policy
	useAttachments bool
	verifyEmail    bool
	selectFields   []string
	payloadFields  []string
}

// NewReplyService builds the reply workflow from cfg and its collaborators.
// A nil Observer, Clock or Logger in deps falls back to a no-op, time.Now and
// slog.Default.
func NewReplyService(cfg *config.Config, deps Dependencies) *ReplyService {
	s := &ReplyService{
		tickets:  deps.Tickets,
		guard:    deps.Guard,
		migrator: deps.Migrator,
		uploader: deps.Uploader,
		renderer: deps.Renderer,
		status:   deps.Status,
		notifier: deps.Notifier,
		observer: deps.Observer,
		log:      deps.Logger,
		now:      deps.Clock,

		policy:         attachments.NewPolicy(cfg.Attachments),
		useAttachments: cfg.Attachments.Use,
		verifyEmail:    cfg.Security.EmailViewTicket,
		selectFields:   repository.CustomColumns(cfg.Ticket.EnabledCustomFields()),
		payloadFields:  cfg.Ticket.CustomFieldNames(),
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "reply")
	return s
}

// SubmitReply validates and stores a customer reply, then notifies staff.
// Fatal conditions return sentinel errors, *floodguard.BanError or
// floodguard.ErrFlood; field problems return *ValidationError. Session
// changes are made on sess and must be saved by the caller.
func (s *ReplyService) SubmitReply(ctx context.Context, sess *session.Session, req ReplyRequest) (*ReplyResult, error) {
	res, err := s.submit(ctx, sess, req)
	s.observer.ReplyOutcome(outcomeOf(err))
	return res, err
}

func (s *ReplyService) submit(ctx context.Context, sess *session.Session, req ReplyRequest) (*ReplyResult, error) {
	if sess == nil {
		return nil, errors.New("reply without session")
	}

	if err := s.guard.CheckReplyInterval(ctx, sess.ID); err != nil {
		return nil, err
	}

	trackID := ticketutil.CleanTrackingID(req.TrackingID)
	if trackID == "" {
		return nil, ErrMissingTrackingID
	}

	email := ticketutil.NormalizeEmail(req.Email)
	if email == "" {
		email = sess.CustomerEmail()
	}
	sess.SetTicketAccess(trackID, email)

	message := strings.TrimSpace(req.Message)
	var issues []ValidationIssue
	if message == "" {
		issues = append(issues, ValidationIssue{Code: CodeEnterMessage, Field: "message"})
	}

	legacy := s.useAttachments && req.UseLegacyAttachments
	var handles []string
	if s.useAttachments && !legacy {
		handles = cleanHandles(req.TempAttachments)
	}
	if legacy {
		for _, is := range s.policy.Validate(req.Uploads) {
			issues = append(issues, attachmentIssue(is))
		}
	}

	if len(issues) > 0 {
		sess.SetDraft(req.Message, handles)
		if req.Reopen {
			sess.SetForceFormTop()
		}
		return nil, &ValidationError{Issues: issues}
	}

	if err := s.guard.CheckIPBan(ctx, req.ClientIP); err != nil {
		var ban *floodguard.BanError
		if errors.As(err, &ban) {
			sess.Destroy()
		}
		return nil, err
	}

	ticket, err := s.tickets.FindByTrackingID(ctx, trackID, s.selectFields)
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrAmbiguous) {
		return nil, fmt.Errorf("%s: %w", trackID, ErrTicketNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket %s: %w", trackID, err)
	}

	if s.verifyEmail && !ticketutil.EmailMatches(email, ticket.Email) {
		sess.Delete(session.KeyEmail)
		return nil, ErrEmailMismatch
	}

	if ticket.Locked {
		return nil, ErrTicketLocked
	}

	if err := s.guard.CheckSequentialReplies(ctx, ticket.ID, req.ClientIP); err != nil {
		return nil, err
	}

	html, err := s.renderer.HTML(message)
	if err != nil {
		return nil, err
	}

	var (
		atts      []*models.Attachment
		migration *attachments.Migration
	)
	switch {
	case legacy && len(req.Uploads) > 0 && s.uploader != nil:
		atts, err = s.uploader.Store(ctx, trackID, req.Uploads)
		if err != nil {
			return nil, fmt.Errorf("store attachments: %w", err)
		}
	case len(handles) > 0 && s.migrator != nil:
		migration, err = s.migrator.Migrate(ctx, handles, trackID)
		if err != nil {
			return nil, fmt.Errorf("migrate attachments: %w", err)
		}
		atts = migration.Attachments
	}

	now := s.now()
	ticket.Status = s.status.StatusAfterCustomerReply(ticket.Status)
	ticket.LastChange = now

	sub := &models.ReplySubmission{
		Ticket: ticket,
		Reply: &models.Reply{
			ReplyTo:     ticket.ID,
			Name:        ticket.Name,
			Message:     message,
			MessageHTML: html,
			Dt:          now,
		},
		Attachments: atts,
	}
	if migration != nil {
		sub.ConsumedTemp = migration.Consumed
	}

	if err := s.tickets.SaveReply(ctx, sub); err != nil {
		if migration != nil {
			migration.Abort(ctx)
		} else if len(atts) > 0 {
			s.uploader.Remove(ctx, atts)
		}
		return nil, fmt.Errorf("save reply to %s: %w", trackID, err)
	}
	migration.Finalize(ctx)

	s.log.InfoContext(ctx, "customer reply saved",
		"trackid", trackID, "reply_id", sub.Reply.ID, "attachments", len(atts), "status", ticket.Status.String())

	payload := models.NewNotificationPayload(ticket, sub.Reply, s.payloadFields)
	if s.notifier != nil {
		s.notifier.ReplyByCustomer(ctx, payload, message)
	}

	sess.ClearDraft()

	return &ReplyResult{Ticket: ticket, Reply: sub.Reply, Attachments: atts, Payload: payload}, nil
}

func cleanHandles(handles []string) []string {
	var out []string
	for _, h := range handles {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

func attachmentIssue(is attachments.Issue) ValidationIssue {
	code := CodeAttachmentType
	switch is.Code {
	case attachments.IssueTooMany:
		code = CodeTooManyAttachments
	case attachments.IssueTooLarge:
		code = CodeAttachmentTooLarge
	case attachments.IssueEmpty:
		code = CodeAttachmentEmpty
	}
	return ValidationIssue{Code: code, Field: "attachment", File: is.File}
}

func outcomeOf(err error) string {
	var (
		ban *floodguard.BanError
		ve  *ValidationError
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &ve):
		return OutcomeValidation
	case errors.Is(err, floodguard.ErrFlood):
		return OutcomeFlood
	case errors.As(err, &ban):
		return OutcomeBanned
	case errors.Is(err, ErrTicketNotFound), errors.Is(err, ErrMissingTrackingID):
		return OutcomeNotFound
	case errors.Is(err, ErrTicketLocked):
		return OutcomeLocked
	case errors.Is(err, ErrEmailMismatch):
		return OutcomeEmail
	}
	return OutcomeError
}
