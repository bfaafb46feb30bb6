// Package notifications tells staff about committed replies, by email and
// through the optional push channels.
package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/anri-helpdesk/helpdesk/internal/models"
	"github.com/anri-helpdesk/helpdesk/internal/push"
)

// PushNotifier is the optional push capability.
type PushNotifier interface {
	Push(ctx context.Context, ev push.Event) error
}

// Observer is told how each channel fared. Metrics implement it.
type Observer interface {
	NotificationResult(channel string, err error)
}

type nopObserver struct{}

func (nopObserver) NotificationResult(string, error) {}

// Channel names reported to the Observer.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
)

// Fanout dispatches reply notifications. It never returns an error: the
// reply is already committed when it runs.
type Fanout struct {
	staff    StaffNotifier
	push     PushNotifier
	timeout  time.Duration
	log      *slog.Logger
	observer Observer
}

// FanoutOption customises a Fanout.
type FanoutOption func(*Fanout)

// WithPush enables the push branch. A nil notifier leaves it disabled.
func WithPush(p PushNotifier, timeout time.Duration) FanoutOption {
	return func(f *Fanout) {
		if p != nil {
			f.push = p
			f.timeout = timeout
		}
	}
}

// WithObserver reports per-channel results.
func WithObserver(o Observer) FanoutOption {
	return func(f *Fanout) {
		if o != nil {
			f.observer = o
		}
	}
}

// NewFanout notifies staff by email. Push delivery is added with WithPush.
func NewFanout(staff StaffNotifier, log *slog.Logger, opts ...FanoutOption) *Fanout {
	f := &Fanout{staff: staff, log: log, observer: nopObserver{}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// HasPush reports whether a push channel was configured.
func (f *Fanout) HasPush() bool {
	return f.push != nil
}

// ReplyByCustomer notifies staff about a customer reply.
func (f *Fanout) ReplyByCustomer(ctx context.Context, payload *models.NotificationPayload, rawMessage string) {
	f.email(ctx, payload, rawMessage)
	f.pushEvent(ctx, push.Event{
		Tag:        models.PushTagReplyCustomer,
		Payload:    payload,
		ByStaff:    false,
		RawMessage: rawMessage,
	})
}

func (f *Fanout) email(ctx context.Context, payload *models.NotificationPayload, rawMessage string) {
	if f.staff == nil {
		return
	}
	var err error
	if payload.Owner > 0 {
		err = f.staff.NotifyAssignedStaff(ctx, models.EventNewReplyByCustomer, models.PrefReplyMy, payload, rawMessage)
	} else {
		err = f.staff.NotifyStaff(ctx, models.EventNewReplyByCustomer, models.PrefReplyUnassigned, payload, rawMessage)
	}
	f.observer.NotificationResult(ChannelEmail, err)
	if err != nil {
		f.log.Error("staff email notification failed", "trackid", payload.TrackID, "error", err)
	}
}

func (f *Fanout) pushEvent(ctx context.Context, ev push.Event) {
	if f.push == nil {
		return
	}
	// Detached from the request so a client disconnect does not cancel the push.
	pctx := context.WithoutCancel(ctx)
	if f.timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(pctx, f.timeout)
		defer cancel()
	}

	err := f.push.Push(pctx, ev)
	f.observer.NotificationResult(ChannelPush, err)
	if err != nil {
		f.log.Warn("push notification failed", "event", ev.Tag, "trackid", ev.Payload.TrackID, "error", err)
		return
	}
	f.log.Debug("push notification sent", "event", ev.Tag, "trackid", ev.Payload.TrackID)
}
