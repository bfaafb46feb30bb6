// Package floodguard rejects replies that arrive too fast from one session
// and bans IPs that post long runs of customer replies.
package floodguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/repository"
)

// ErrFlood is returned when a session replies again within the flood interval.
var ErrFlood = errors.New("reply submitted too soon after the previous one")

// BanReason tells why an IP is locked out.
type BanReason int

const (
	// BanActive means an earlier ban is still running.
	BanActive BanReason = iota
	// BanSequential means this request tripped the sequential reply limit.
	BanSequential
)

// BanError rejects a request from a locked-out IP.
type BanError struct {
	Reason  BanReason
	IP      string
	Minutes int
}

func (e *BanError) Error() string {
	if e.Reason == BanSequential {
		return fmt.Sprintf("ip %s banned for %d minutes after too many sequential replies", e.IP, e.Minutes)
	}
	return fmt.Sprintf("ip %s is banned for %d minutes", e.IP, e.Minutes)
}

// Throttler is the atomic check-and-record on the session store.
type Throttler interface {
	ThrottleReply(ctx context.Context, sessionID string, now time.Time, interval time.Duration) (bool, error)
}

// ReplyHistory lists the authors of recent replies to a ticket, oldest first.
type ReplyHistory interface {
	RecentReplyAuthors(ctx context.Context, ticketID int64, since time.Time) ([]int64, error)
}

// Observer receives guard decisions. Metrics implement it.
type Observer interface {
	FloodRejected()
	BanRejected(reason string)
}

type nopObserver struct{}

func (nopObserver) FloodRejected()     {}
func (nopObserver) BanRejected(string) {}

// Guard applies the HESK flood and ban rules.
type Guard struct {
	throttle Throttler
	logins   repository.LoginAttemptStore
	replies  ReplyHistory
	cfg      config.SecurityConfig
	log      *slog.Logger
	observer Observer
	now      func() time.Time
}

// Option customises a Guard.
type Option func(*Guard)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithObserver reports decisions to o.
func WithObserver(o Observer) Option {
	return func(g *Guard) {
		if o != nil {
			g.observer = o
		}
	}
}

// New builds a Guard for the security settings in cfg. throttle holds the
// per-session reply timestamps, logins the failed-attempt rows used for bans.
func New(cfg config.SecurityConfig, throttle Throttler, logins repository.LoginAttemptStore, replies ReplyHistory, log *slog.Logger, opts ...Option) *Guard {
	g := &Guard{
		throttle: throttle,
		logins:   logins,
		replies:  replies,
		cfg:      cfg,
		log:      log.With("component", "floodguard"),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckReplyInterval rejects with ErrFlood when the session replied less than
// security.flood seconds ago, and otherwise records this reply. A flood
// setting of 0 disables the check.
func (g *Guard) CheckReplyInterval(ctx context.Context, sessionID string) error {
	if g.cfg.Flood <= 0 {
		return nil
	}
	ok, err := g.throttle.ThrottleReply(ctx, sessionID, g.now(), g.cfg.FloodInterval())
	if err != nil {
		return err
	}
	if !ok {
		g.observer.FloodRejected()
		g.log.InfoContext(ctx, "reply flood rejected", "session", sessionID)
		return ErrFlood
	}
	return nil
}

// CheckIPBan rejects an IP whose counter reached attempt_limit within the
// last attempt_banmin minutes.
func (g *Guard) CheckIPBan(ctx context.Context, ip string) error {
	since := g.now().Add(-g.cfg.BanDuration())
	attempt, err := g.logins.LatestAttempt(ctx, ip, since)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if attempt.Number >= g.cfg.AttemptLimit {
		g.observer.BanRejected("active")
		return &BanError{Reason: BanActive, IP: ip, Minutes: g.cfg.AttemptBanMin}
	}
	return nil
}

// CheckSequentialReplies bans ip when the trailing run of customer replies to
// the ticket inside the window exceeds the limit. A staff reply resets the run.
// The ban is written before the error is returned.
func (g *Guard) CheckSequentialReplies(ctx context.Context, ticketID int64, ip string) error {
	now := g.now()
	authors, err := g.replies.RecentReplyAuthors(ctx, ticketID, now.Add(-g.cfg.SequentialWindow))
	if err != nil {
		return err
	}

	if SequentialCustomerReplies(authors) <= g.cfg.SequentialLimit {
		return nil
	}

	if err := g.logins.UpsertBan(ctx, ip, g.cfg.AttemptLimit+1, now); err != nil {
		return fmt.Errorf("record sequential reply ban: %w", err)
	}
	g.observer.BanRejected("sequential")
	g.log.WarnContext(ctx, "ip banned for sequential replies", "ip", ip, "ticket", ticketID, "minutes", g.cfg.AttemptBanMin)
	return &BanError{Reason: BanSequential, IP: ip, Minutes: g.cfg.AttemptBanMin}
}

// SequentialCustomerReplies counts the customer replies after the last staff
// reply. authors are staff ids in reply order; zero is the customer.
func SequentialCustomerReplies(authors []int64) int {
	streak := 0
	for _, staffID := range authors {
		if staffID != 0 {
			streak = 0
			continue
		}
		streak++
	}
	return streak
}
