package notifications

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/logger"
	"github.com/anri-helpdesk/helpdesk/internal/models"
	"github.com/anri-helpdesk/helpdesk/internal/push"
	"github.com/anri-helpdesk/helpdesk/internal/repository/memory"
)

type captureProvider struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (c *captureProvider) Send(_ context.Context, msg EmailMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureProvider) recipients() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.sent {
		out = append(out, m.To...)
	}
	return out
}

func staffStore() *memory.Store {
	s := memory.NewStore()
	s.AddStaff(&models.Staff{ID: 1, Name: "Owner", Email: "owner@example.com", Active: true, NotifyReplyMy: true, NotifyReplyUnassigned: true})
	s.AddStaff(&models.Staff{ID: 2, Name: "Quiet", Email: "quiet@example.com", Active: true, NotifyReplyMy: false, NotifyReplyUnassigned: false})
	s.AddStaff(&models.Staff{ID: 3, Name: "Watcher", Email: "watcher@example.com", Active: true, NotifyReplyUnassigned: true})
	s.AddStaff(&models.Staff{ID: 4, Name: "Gone", Email: "gone@example.com", Active: false, NotifyReplyUnassigned: true})
	return s
}

func payload(owner int64) *models.NotificationPayload {
	return &models.NotificationPayload{
		ID:          7,
		TrackID:     "ABC-DEF-1234",
		Subject:     "Login & password",
		Name:        "Jane",
		LastReplyBy: "Jane",
		Owner:       owner,
		Message:     "Still <b>broken</b>",
		Attachments: "5#log.txt,",
	}
}

func TestNotifyAssignedStaff(t *testing.T) {
	ctx := context.Background()
	provider := &captureProvider{}
	n := NewEmailStaffNotifier(staffStore(), provider, "Anri Helpdesk", "https://help.example.com/", logger.Discard())

	require.NoError(t, n.NotifyAssignedStaff(ctx, models.EventNewReplyByCustomer, models.PrefReplyMy, payload(1), "Still broken"))
	require.Len(t, provider.sent, 1)

	msg := provider.sent[0]
	assert.Equal(t, []string{"owner@example.com"}, msg.To)
	assert.Equal(t, "[#ABC-DEF-1234] New reply to: Login & password", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Owner,")
	assert.Contains(t, msg.Body, "Still broken")
	assert.Contains(t, msg.Body, " - log.txt")
	assert.Contains(t, msg.Body, "https://help.example.com/admin/admin_ticket.php?track=ABC-DEF-1234")
	assert.Contains(t, msg.HTMLBody, "Still <b>broken</b>")
	assert.Contains(t, msg.HTMLBody, "Login &amp; password")
}

func TestNotifyAssignedStaffRespectsPreference(t *testing.T) {
	ctx := context.Background()
	provider := &captureProvider{}
	n := NewEmailStaffNotifier(staffStore(), provider, "", "", logger.Discard())

	require.NoError(t, n.NotifyAssignedStaff(ctx, models.EventNewReplyByCustomer, models.PrefReplyMy, payload(2), "x"))
	require.NoError(t, n.NotifyAssignedStaff(ctx, models.EventNewReplyByCustomer, models.PrefReplyMy, payload(99), "x"))
	assert.Empty(t, provider.sent)
}

func TestNotifyStaffBroadcast(t *testing.T) {
	provider := &captureProvider{}
	n := NewEmailStaffNotifier(staffStore(), provider, "", "", logger.Discard())

	require.NoError(t, n.NotifyStaff(context.Background(), models.EventNewReplyByCustomer, models.PrefReplyUnassigned, payload(0), "x"))
	assert.Equal(t, []string{"owner@example.com", "watcher@example.com"}, provider.recipients())
}

func TestUnknownEvent(t *testing.T) {
	n := NewEmailStaffNotifier(staffStore(), &captureProvider{}, "", "", logger.Discard())
	err := n.NotifyAssignedStaff(context.Background(), "ticket_closed", models.PrefReplyMy, payload(1), "x")
	assert.Error(t, err)
}

type recordingStaff struct {
	assigned, broadcast int
	err                 error
}

func (r *recordingStaff) NotifyAssignedStaff(context.Context, string, models.NotifyPreference, *models.NotificationPayload, string) error {
	r.assigned++
	return r.err
}

func (r *recordingStaff) NotifyStaff(context.Context, string, models.NotifyPreference, *models.NotificationPayload, string) error {
	r.broadcast++
	return r.err
}

type recordingPush struct {
	events []push.Event
	err    error
	wait   time.Duration
}

func (r *recordingPush) Push(ctx context.Context, ev push.Event) error {
	if r.wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.wait):
		}
	}
	r.events = append(r.events, ev)
	return r.err
}

type recordingObserver struct {
	results map[string][]error
}

func (o *recordingObserver) NotificationResult(channel string, err error) {
	if o.results == nil {
		o.results = make(map[string][]error)
	}
	o.results[channel] = append(o.results[channel], err)
}

func TestFanoutRoutesEmailByOwner(t *testing.T) {
	staff := &recordingStaff{}
	f := NewFanout(staff, logger.Discard())

	f.ReplyByCustomer(context.Background(), payload(1), "x")
	f.ReplyByCustomer(context.Background(), payload(0), "x")

	assert.Equal(t, 1, staff.assigned)
	assert.Equal(t, 1, staff.broadcast)
	assert.False(t, f.HasPush())
}

func TestFanoutPushEvent(t *testing.T) {
	p := &recordingPush{}
	f := NewFanout(&recordingStaff{}, logger.Discard(), WithPush(p, time.Second))

	f.ReplyByCustomer(context.Background(), payload(0), "raw text")

	require.Len(t, p.events, 1)
	ev := p.events[0]
	assert.Equal(t, models.PushTagReplyCustomer, ev.Tag)
	assert.False(t, ev.ByStaff)
	assert.Equal(t, "raw text", ev.RawMessage)
	assert.Equal(t, "ABC-DEF-1234", ev.Payload.TrackID)
}

func TestFanoutSwallowsFailures(t *testing.T) {
	obs := &recordingObserver{}
	p := &recordingPush{err: errors.New("telegram down")}
	f := NewFanout(&recordingStaff{err: errors.New("smtp down")}, logger.Discard(), WithPush(p, time.Second), WithObserver(obs))

	assert.NotPanics(t, func() { f.ReplyByCustomer(context.Background(), payload(1), "x") })
	assert.EqualError(t, obs.results[ChannelEmail][0], "smtp down")
	assert.EqualError(t, obs.results[ChannelPush][0], "telegram down")
}

func TestFanoutPushTimeout(t *testing.T) {
	obs := &recordingObserver{}
	p := &recordingPush{wait: time.Second}
	f := NewFanout(nil, logger.Discard(), WithPush(p, 20*time.Millisecond), WithObserver(obs))

	start := time.Now()
	f.ReplyByCustomer(context.Background(), payload(0), "x")

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.ErrorIs(t, obs.results[ChannelPush][0], context.DeadlineExceeded)
}

func TestFanoutPushSurvivesCancelledRequest(t *testing.T) {
	p := &recordingPush{}
	f := NewFanout(nil, logger.Discard(), WithPush(p, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.ReplyByCustomer(ctx, payload(0), "x")
	assert.Len(t, p.events, 1)
}

type fakeDialer struct {
	msgs []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.msgs = append(d.msgs, m...)
	return d.err
}

func TestSMTPProvider(t *testing.T) {
	cfg := &config.EmailConfig{Enabled: true, From: "helpdesk@example.com", FromName: "Anri Helpdesk"}
	d := &fakeDialer{}
	p := NewSMTPProviderWithDialer(cfg, d)

	err := p.Send(context.Background(), EmailMessage{To: []string{"a@example.com"}, Subject: "Hi", Body: "plain", HTMLBody: "<p>html</p>"})
	require.NoError(t, err)
	require.Len(t, d.msgs, 1)

	var buf bytes.Buffer
	_, err = d.msgs[0].WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Hi")
	assert.Contains(t, raw, "To: a@example.com")
	assert.True(t, strings.Contains(raw, "text/html"))

	assert.Error(t, p.Send(context.Background(), EmailMessage{Subject: "no rcpt"}))

	d.err = errors.New("connection refused")
	assert.ErrorContains(t, p.Send(context.Background(), EmailMessage{To: []string{"a@example.com"}}), "connection refused")
}

func TestSMTPProviderDisabled(t *testing.T) {
	d := &fakeDialer{}
	p := NewSMTPProviderWithDialer(&config.EmailConfig{Enabled: false}, d)
	require.NoError(t, p.Send(context.Background(), EmailMessage{To: []string{"a@example.com"}}))
	assert.Empty(t, d.msgs)
}
