// Package session holds the per-visitor state the customer pages share.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Keys understood by the ticket pages.
const (
	KeyTrackID       = "t_track"
	KeyEmail         = "t_email"
	KeyLastReply     = "last_reply_timestamp"
	KeyTicketMessage = "ticket_message"
	KeyAttachments   = "r_attachments"
	KeyForceFormTop  = "force_form_top"
	KeyFlashType     = "flash_type"
	KeyFlashMessage  = "flash_message"
)

// Flash message kinds.
const (
	FlashSuccess = "SUCCESS"
	FlashNotice  = "NOTICE"
	FlashError   = "ERROR"
)

// Store persists sessions. ThrottleReply is the only operation that touches
// last_reply_timestamp and must be atomic per session.
type Store interface {
	// Load returns the session for id, or a fresh one when id is unknown.
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Destroy(ctx context.Context, id string) error
	// ThrottleReply records now as the last reply time unless the previous
	// one is younger than interval, in which case it returns false.
	ThrottleReply(ctx context.Context, id string, now time.Time, interval time.Duration) (bool, error)
}

// Session is a snapshot of one visitor's values plus the pending changes.
type Session struct {
	ID string

	values    map[string]string
	changed   map[string]bool
	isNew     bool
	destroyed bool
}

// New creates an empty session with a random ID.
func New() *Session {
	return &Session{
		ID:      uuid.NewString(),
		values:  make(map[string]string),
		changed: make(map[string]bool),
		isNew:   true,
	}
}

func loaded(id string, values map[string]string) *Session {
	if values == nil {
		values = make(map[string]string)
	}
	return &Session{ID: id, values: values, changed: make(map[string]bool)}
}

// IsNew reports whether the session did not exist before this request.
func (s *Session) IsNew() bool { return s.isNew }

// Destroyed reports whether Destroy was called.
func (s *Session) Destroyed() bool { return s.destroyed }

// Get returns a raw value.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores a raw value.
func (s *Session) Set(key, value string) {
	s.values[key] = value
	s.changed[key] = true
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.changed[key] = true
}

// Destroy drops every value; the store deletes the session on save.
func (s *Session) Destroy() {
	s.values = make(map[string]string)
	s.changed = make(map[string]bool)
	s.destroyed = true
}

// Dirty reports whether Save has anything to write.
func (s *Session) Dirty() bool { return len(s.changed) > 0 || s.isNew }

// changes splits pending changes into values to write and keys to remove.
func (s *Session) changes() (set map[string]string, removed []string) {
	set = make(map[string]string)
	for k := range s.changed {
		if v, ok := s.values[k]; ok {
			set[k] = v
		} else {
			removed = append(removed, k)
		}
	}
	return set, removed
}

func (s *Session) markSaved() {
	s.changed = make(map[string]bool)
	s.isNew = false
}

// SetTicketAccess remembers which ticket the visitor is looking at.
func (s *Session) SetTicketAccess(trackID, email string) {
	s.Set(KeyTrackID, trackID)
	s.Set(KeyEmail, email)
}

// CustomerEmail returns the email stored by a previous ticket view.
func (s *Session) CustomerEmail() string {
	return s.values[KeyEmail]
}

// SetDraft keeps the message and temp attachment handles for resubmission.
func (s *Session) SetDraft(message string, attachments []string) {
	s.Set(KeyTicketMessage, message)
	if len(attachments) == 0 {
		s.Delete(KeyAttachments)
		return
	}
	raw, _ := json.Marshal(attachments)
	s.Set(KeyAttachments, string(raw))
}

// Draft returns the stashed message and attachment handles.
func (s *Session) Draft() (string, []string) {
	var handles []string
	if raw, ok := s.values[KeyAttachments]; ok {
		_ = json.Unmarshal([]byte(raw), &handles)
	}
	return s.values[KeyTicketMessage], handles
}

// ClearDraft removes ticket_message and r_attachments.
func (s *Session) ClearDraft() {
	s.Delete(KeyTicketMessage)
	s.Delete(KeyAttachments)
}

// SetForceFormTop asks the ticket page to show the reply form first.
func (s *Session) SetForceFormTop() {
	s.Set(KeyForceFormTop, "1")
}

// SetFlash stores a message shown once on the next page.
func (s *Session) SetFlash(kind, message string) {
	s.Set(KeyFlashType, kind)
	s.Set(KeyFlashMessage, message)
}

// PopFlash returns and removes the pending flash message.
func (s *Session) PopFlash() (kind, message string, ok bool) {
	message, ok = s.values[KeyFlashMessage]
	if !ok {
		return "", "", false
	}
	kind = s.values[KeyFlashType]
	s.Delete(KeyFlashType)
	s.Delete(KeyFlashMessage)
	return kind, message, true
}
