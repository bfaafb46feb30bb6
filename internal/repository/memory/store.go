// Package memory provides an in-process implementation of the repository
// interfaces for tests and local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anri-helpdesk/helpdesk/internal/models"
	"github.com/anri-helpdesk/helpdesk/internal/repository"
)

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	tickets     map[int64]*models.Ticket
	replies     []*models.Reply
	attachments []*models.Attachment
	logins      map[string]*models.LoginAttempt
	temp        map[string]*models.TempAttachment
	staff       map[int64]*models.Staff
	tokens      map[string]int64

	nextTicket int64
	nextReply  int64
	nextAtt    int64
	nextTemp   int64

	// SaveErr, when set, makes SaveReply fail without writing anything.
	SaveErr error
}

var (
	_ repository.TicketStore         = (*Store)(nil)
	_ repository.LoginAttemptStore   = (*Store)(nil)
	_ repository.TempAttachmentStore = (*Store)(nil)
	_ repository.StaffDirectory      = (*Store)(nil)
	_ repository.DeviceTokenStore    = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		tickets: make(map[int64]*models.Ticket),
		logins:  make(map[string]*models.LoginAttempt),
		temp:    make(map[string]*models.TempAttachment),
		staff:   make(map[int64]*models.Staff),
		tokens:  make(map[string]int64),
	}
}

// AddTicket stores a copy of t, assigning an ID when it has none.
func (s *Store) AddTicket(t *models.Ticket) *models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := t.Clone()
	if c.ID == 0 {
		s.nextTicket++
		c.ID = s.nextTicket
	} else if c.ID > s.nextTicket {
		s.nextTicket = c.ID
	}
	s.tickets[c.ID] = c
	return c.Clone()
}

// AddReply appends a reply directly, bypassing the ticket update.
func (s *Store) AddReply(r *models.Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *r
	s.nextReply++
	c.ID = s.nextReply
	s.replies = append(s.replies, &c)
}

// AddStaff registers a staff account.
func (s *Store) AddStaff(st *models.Staff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *st
	s.staff[c.ID] = &c
}

// Ticket returns a copy of the stored ticket.
func (s *Store) Ticket(id int64) (*models.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Replies returns copies of the replies to ticketID in insertion order.
func (s *Store) Replies(ticketID int64) []*models.Reply {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Reply
	for _, r := range s.replies {
		if r.ReplyTo == ticketID {
			c := *r
			out = append(out, &c)
		}
	}
	return out
}

// Attachments returns copies of the attachments of a tracking id.
func (s *Store) Attachments(trackID string) []*models.Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attachment
	for _, a := range s.attachments {
		if a.TicketID == trackID {
			c := *a
			out = append(out, &c)
		}
	}
	return out
}

// Login returns the counter for ip.
func (s *Store) Login(ip string) (*models.LoginAttempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.logins[ip]
	if !ok {
		return nil, false
	}
	c := *a
	return &c, true
}

func (s *Store) FindByTrackingID(_ context.Context, trackID string, customFields []string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []*models.Ticket
	for _, t := range s.tickets {
		if t.TrackID == trackID {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return nil, repository.ErrNotFound
	case 1:
	default:
		return nil, repository.ErrAmbiguous
	}

	c := found[0].Clone()
	if len(customFields) > 0 {
		fields := make(map[string]string, len(customFields))
		for _, f := range customFields {
			fields[f] = c.CustomFields[f]
		}
		c.CustomFields = fields
	} else {
		c.CustomFields = nil
	}
	return c, nil
}

func (s *Store) SaveReply(_ context.Context, sub *models.ReplySubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return s.SaveErr
	}
	stored, ok := s.tickets[sub.Ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}

	for _, a := range sub.Attachments {
		s.nextAtt++
		a.ID = s.nextAtt
		c := *a
		s.attachments = append(s.attachments, &c)
	}
	sub.Reply.Attachments = models.EncodeAttachmentRefs(sub.Attachments)

	stored.LastChange = sub.Ticket.LastChange
	stored.Status = sub.Ticket.Status
	stored.Replies++
	stored.LastReplier = models.ReplierCustomer

	s.nextReply++
	sub.Reply.ID = s.nextReply
	r := *sub.Reply
	s.replies = append(s.replies, &r)

	for _, id := range sub.ConsumedTemp {
		for name, t := range s.temp {
			if t.ID == id {
				delete(s.temp, name)
			}
		}
	}

	sub.Ticket.Replies++
	sub.Ticket.LastReplier = models.ReplierCustomer
	return nil
}

func (s *Store) RecentReplyAuthors(_ context.Context, ticketID int64, since time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []int64
	for _, r := range s.replies {
		if r.ReplyTo == ticketID && r.Dt.After(since) {
			out = append(out, r.StaffID)
		}
	}
	return out, nil
}

func (s *Store) LatestAttempt(_ context.Context, ip string, since time.Time) (*models.LoginAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.logins[ip]
	if !ok || a.LastAttempt == nil || !a.LastAttempt.After(since) {
		return nil, repository.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *Store) UpsertBan(_ context.Context, ip string, number int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := at
	s.logins[ip] = &models.LoginAttempt{IP: ip, Number: number, LastAttempt: &t}
	return nil
}

func (s *Store) ListActive(_ context.Context, since time.Time) ([]*models.LoginAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.LoginAttempt
	for _, a := range s.logins {
		if a.LastAttempt != nil && a.LastAttempt.After(since) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAttempt.After(*out[j].LastAttempt) })
	return out, nil
}

func (s *Store) Clear(_ context.Context, ip string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ip == "" {
		n := int64(len(s.logins))
		s.logins = make(map[string]*models.LoginAttempt)
		return n, nil
	}
	if _, ok := s.logins[ip]; !ok {
		return 0, nil
	}
	delete(s.logins, ip)
	return 1, nil
}

func (s *Store) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for ip, a := range s.logins {
		if a.LastAttempt != nil && a.LastAttempt.Before(before) {
			delete(s.logins, ip)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateTemp(_ context.Context, att *models.TempAttachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.temp[att.UniqueName]; ok {
		return repository.ErrDuplicate
	}
	s.nextTemp++
	att.ID = s.nextTemp
	c := *att
	s.temp[c.UniqueName] = &c
	return nil
}

func (s *Store) GetTemp(_ context.Context, uniqueName string) (*models.TempAttachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.temp[uniqueName]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (s *Store) ListExpiredTemp(_ context.Context, now time.Time, limit int) ([]*models.TempAttachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.TempAttachment
	for _, t := range s.temp {
		if !t.ExpiresAt.After(now) {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteTemp(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, t := range s.temp {
		if t.ID == id {
			delete(s.temp, name)
		}
	}
	return nil
}

func (s *Store) GetStaff(_ context.Context, id int64) (*models.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.staff[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *st
	return &c, nil
}

func (s *Store) ListStaffByPreference(_ context.Context, pref models.NotifyPreference) ([]*models.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Staff
	for _, st := range s.staff {
		if st.Active && st.Enabled(pref) {
			c := *st
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListDeviceTokens(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.tokens))
	for tok := range s.tokens {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) RegisterDeviceToken(_ context.Context, staffID int64, token, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[strings.TrimSpace(token)] = staffID
	return nil
}

func (s *Store) DeleteDeviceTokens(_ context.Context, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		delete(s.tokens, t)
	}
	return nil
}
