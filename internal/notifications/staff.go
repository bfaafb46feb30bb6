package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/anri-helpdesk/helpdesk/internal/models"
	"github.com/anri-helpdesk/helpdesk/internal/repository"
)

// StaffNotifier emails staff about ticket events.
type StaffNotifier interface {
	// NotifyAssignedStaff emails the ticket owner if pref is on for them.
	NotifyAssignedStaff(ctx context.Context, event string, pref models.NotifyPreference, payload *models.NotificationPayload, rawMessage string) error
	// NotifyStaff emails every active staff member with pref on.
	NotifyStaff(ctx context.Context, event string, pref models.NotifyPreference, payload *models.NotificationPayload, rawMessage string) error
}

// EmailStaffNotifier renders the event templates and sends them through an
// EmailProvider.
type EmailStaffNotifier struct {
	staff     repository.StaffDirectory
	provider  EmailProvider
	templates map[string]*emailTemplate
	siteTitle string
	siteURL   string
	log       *slog.Logger
}

func NewEmailStaffNotifier(staff repository.StaffDirectory, provider EmailProvider, siteTitle, siteURL string, log *slog.Logger) *EmailStaffNotifier {
	return &EmailStaffNotifier{
		staff:     staff,
		provider:  provider,
		templates: defaultTemplates,
		siteTitle: siteTitle,
		siteURL:   strings.TrimRight(siteURL, "/"),
		log:       log,
	}
}

var _ StaffNotifier = (*EmailStaffNotifier)(nil)

func (n *EmailStaffNotifier) NotifyAssignedStaff(ctx context.Context, event string, pref models.NotifyPreference, payload *models.NotificationPayload, rawMessage string) error {
	if payload.Owner <= 0 {
		return nil
	}
	st, err := n.staff.GetStaff(ctx, payload.Owner)
	if errors.Is(err, repository.ErrNotFound) {
		n.log.Warn("ticket owner not found", "owner", payload.Owner, "trackid", payload.TrackID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load owner %d: %w", payload.Owner, err)
	}
	if !st.Active || !st.Enabled(pref) {
		n.log.Debug("owner opted out of notification", "owner", st.ID, "pref", string(pref))
		return nil
	}
	return n.send(ctx, event, st, payload, rawMessage)
}

func (n *EmailStaffNotifier) NotifyStaff(ctx context.Context, event string, pref models.NotifyPreference, payload *models.NotificationPayload, rawMessage string) error {
	staff, err := n.staff.ListStaffByPreference(ctx, pref)
	if err != nil {
		return fmt.Errorf("list staff by %s: %w", pref, err)
	}
	var errs []error
	for _, st := range staff {
		if err := n.send(ctx, event, st, payload, rawMessage); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *EmailStaffNotifier) send(ctx context.Context, event string, st *models.Staff, payload *models.NotificationPayload, rawMessage string) error {
	if st.Email == "" {
		return nil
	}
	tpl, ok := n.templates[event]
	if !ok {
		return fmt.Errorf("no email template for event %q", event)
	}
	out, err := tpl.render(n.context(st, payload, rawMessage))
	if err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}
	err = n.provider.Send(ctx, EmailMessage{
		To:       []string{st.Email},
		Subject:  out.Subject,
		Body:     out.Text,
		HTMLBody: out.HTML,
	})
	if err != nil {
		return fmt.Errorf("email staff %d: %w", st.ID, err)
	}
	return nil
}

func (n *EmailStaffNotifier) context(st *models.Staff, p *models.NotificationPayload, rawMessage string) pongo2.Context {
	ticket := map[string]any{
		"id":            p.ID,
		"trackid":       p.TrackID,
		"email":         p.Email,
		"name":          p.Name,
		"subject":       p.Subject,
		"category":      p.Category,
		"priority":      p.Priority,
		"owner":         p.Owner,
		"status":        p.Status.String(),
		"message":       p.Message,
		"attachments":   p.Attachments,
		"dt":            p.Created,
		"lastchange":    p.LastChange,
		"due_date":      p.DueDate,
		"time_worked":   p.TimeWorked,
		"last_reply_by": p.LastReplyBy,
	}
	for k, v := range p.CustomFields {
		ticket[k] = v
	}
	return pongo2.Context{
		"staff":       map[string]any{"id": st.ID, "name": st.Name},
		"ticket":      ticket,
		"raw_message": rawMessage,
		"attachments": models.ParseAttachmentRefs(p.Attachments),
		"url":         n.siteURL + "/admin/admin_ticket.php?track=" + url.QueryEscape(p.TrackID),
		"site_title":  n.siteTitle,
	}
}
