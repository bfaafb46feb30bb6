// Package push delivers reply events to Telegram, Firebase Cloud Messaging
// and signed webhooks.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/anri-helpdesk/helpdesk/internal/models"
)

// Event is one notification handed to every push channel.
type Event struct {
	// Tag names the event, e.g. models.PushTagReplyCustomer.
	Tag     string
	Payload *models.NotificationPayload
	// ByStaff is false for customer-authored replies.
	ByStaff bool
	// RawMessage is the reply text before HTML rendering.
	RawMessage string
}

// Notifier sends an event to one channel.
type Notifier interface {
	Name() string
	Push(ctx context.Context, ev Event) error
}

// Multi fans an event out to several channels at once.
type Multi struct {
	notifiers []Notifier
}

// NewMulti groups notifiers. Nil entries are dropped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len returns the number of channels.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

func (m *Multi) Name() string {
	names := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		names[i] = n.Name()
	}
	return strings.Join(names, "+")
}

// Push sends to every channel concurrently. One failing channel does not
// stop the others; all failures are joined.
func (m *Multi) Push(ctx context.Context, ev Event) error {
	errs := make([]error, len(m.notifiers))
	var g errgroup.Group
	for i, n := range m.notifiers {
		g.Go(func() error {
			if err := n.Push(ctx, ev); err != nil {
				errs[i] = fmt.Errorf("%s: %w", n.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func title(ev Event) string {
	if ev.ByStaff {
		return "New staff reply"
	}
	return "New customer reply"
}

// truncate cuts s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
