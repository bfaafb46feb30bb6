package floodguard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anri-helpdesk/helpdesk/internal/config"
	"github.com/anri-helpdesk/helpdesk/internal/logger"
	"github.com/anri-helpdesk/helpdesk/internal/models"
	"github.com/anri-helpdesk/helpdesk/internal/repository/memory"
	"github.com/anri-helpdesk/helpdesk/internal/session"
)

type countingObserver struct {
	floods int
	bans   []string
}

func (c *countingObserver) FloodRejected()       { c.floods++ }
func (c *countingObserver) BanRejected(r string) { c.bans = append(c.bans, r) }

func securityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		Flood:            3,
		AttemptLimit:     6,
		AttemptBanMin:    60,
		SequentialWindow: 10 * time.Minute,
		SequentialLimit:  10,
	}
}

func newGuard(t *testing.T, cfg config.SecurityConfig, now *time.Time) (*Guard, *memory.Store, *countingObserver) {
	t.Helper()
	store := memory.NewStore()
	obs := &countingObserver{}
	g := New(cfg, session.NewMemoryStore(), store, store, logger.Discard(),
		WithClock(func() time.Time { return *now }),
		WithObserver(obs))
	return g, store, obs
}

func TestCheckReplyInterval(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	g, _, obs := newGuard(t, securityConfig(), &now)
	ctx := context.Background()

	require.NoError(t, g.CheckReplyInterval(ctx, "s1"))

	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, g.CheckReplyInterval(ctx, "s1"), ErrFlood)
	assert.Equal(t, 1, obs.floods)

	now = now.Add(2 * time.Second)
	assert.NoError(t, g.CheckReplyInterval(ctx, "s1"))
}

func TestCheckReplyIntervalDisabled(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cfg := securityConfig()
	cfg.Flood = 0
	g, _, _ := newGuard(t, cfg, &now)

	for i := 0; i < 3; i++ {
		assert.NoError(t, g.CheckReplyInterval(context.Background(), "s1"))
	}
}

func TestCheckIPBan(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store, obs := newGuard(t, securityConfig(), &now)
	ctx := context.Background()

	assert.NoError(t, g.CheckIPBan(ctx, "10.0.0.1"), "no row, no ban")

	require.NoError(t, store.UpsertBan(ctx, "10.0.0.1", 5, now.Add(-time.Minute)))
	assert.NoError(t, g.CheckIPBan(ctx, "10.0.0.1"), "below the limit")

	require.NoError(t, store.UpsertBan(ctx, "10.0.0.1", 6, now.Add(-time.Minute)))
	err := g.CheckIPBan(ctx, "10.0.0.1")
	var ban *BanError
	require.ErrorAs(t, err, &ban)
	assert.Equal(t, BanActive, ban.Reason)
	assert.Equal(t, 60, ban.Minutes)
	assert.Equal(t, []string{"active"}, obs.bans)

	require.NoError(t, store.UpsertBan(ctx, "10.0.0.1", 7, now.Add(-61*time.Minute)))
	assert.NoError(t, g.CheckIPBan(ctx, "10.0.0.1"), "ban expired")
}

func TestSequentialCustomerReplies(t *testing.T) {
	assert.Equal(t, 0, SequentialCustomerReplies(nil))
	assert.Equal(t, 3, SequentialCustomerReplies([]int64{0, 0, 0}))
	assert.Equal(t, 2, SequentialCustomerReplies([]int64{0, 0, 4, 0, 0}))
	assert.Equal(t, 0, SequentialCustomerReplies([]int64{0, 0, 4}))
}

func TestCheckSequentialReplies(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store, obs := newGuard(t, securityConfig(), &now)
	ctx := context.Background()
	tk := store.AddTicket(&models.Ticket{TrackID: "ABC"})

	add := func(staff int64, ago time.Duration) {
		store.AddReply(&models.Reply{ReplyTo: tk.ID, StaffID: staff, Dt: now.Add(-ago)})
	}

	for i := 0; i < 10; i++ {
		add(0, time.Minute)
	}
	assert.NoError(t, g.CheckSequentialReplies(ctx, tk.ID, "10.0.0.9"), "ten in a row is allowed")

	add(0, 30*time.Second)
	err := g.CheckSequentialReplies(ctx, tk.ID, "10.0.0.9")
	var ban *BanError
	require.ErrorAs(t, err, &ban)
	assert.Equal(t, BanSequential, ban.Reason)
	assert.Equal(t, []string{"sequential"}, obs.bans)

	row, ok := store.Login("10.0.0.9")
	require.True(t, ok, "ban row must be written")
	assert.Equal(t, 7, row.Number)

	assert.Error(t, g.CheckIPBan(ctx, "10.0.0.9"), "later requests see the ban")
}

func TestCheckSequentialRepliesStaffResetsAndWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g, store, _ := newGuard(t, securityConfig(), &now)
	ctx := context.Background()
	tk := store.AddTicket(&models.Ticket{TrackID: "ABC"})

	for i := 0; i < 8; i++ {
		store.AddReply(&models.Reply{ReplyTo: tk.ID, Dt: now.Add(-time.Minute)})
	}
	store.AddReply(&models.Reply{ReplyTo: tk.ID, StaffID: 2, Dt: now.Add(-time.Minute)})
	for i := 0; i < 8; i++ {
		store.AddReply(&models.Reply{ReplyTo: tk.ID, Dt: now.Add(-time.Minute)})
	}
	assert.NoError(t, g.CheckSequentialReplies(ctx, tk.ID, "10.0.0.9"))

	other := store.AddTicket(&models.Ticket{TrackID: "OLD"})
	for i := 0; i < 20; i++ {
		store.AddReply(&models.Reply{ReplyTo: other.ID, Dt: now.Add(-11 * time.Minute)})
	}
	assert.NoError(t, g.CheckSequentialReplies(ctx, other.ID, "10.0.0.9"), "replies outside the window are ignored")
}

func TestBanError(t *testing.T) {
	err := error(&BanError{Reason: BanSequential, IP: "1.2.3.4", Minutes: 60})
	var ban *BanError
	assert.True(t, errors.As(err, &ban))
	assert.Contains(t, err.Error(), "sequential")
}
