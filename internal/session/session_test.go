package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "sess:", time.Hour), mr
}

func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t)
	return map[string]Store{"memory": NewMemoryStore(), "redis": rs}
}

func TestSessionAccessors(t *testing.T) {
	s := New()
	assert.True(t, s.IsNew())

	s.SetTicketAccess("ABC-123", "budi@example.com")
	assert.Equal(t, "budi@example.com", s.CustomerEmail())

	s.SetDraft("hello", []string{"h1", "h2"})
	msg, handles := s.Draft()
	assert.Equal(t, "hello", msg)
	assert.Equal(t, []string{"h1", "h2"}, handles)

	s.ClearDraft()
	msg, handles = s.Draft()
	assert.Empty(t, msg)
	assert.Empty(t, handles)

	s.SetFlash(FlashSuccess, "done")
	kind, text, ok := s.PopFlash()
	require.True(t, ok)
	assert.Equal(t, FlashSuccess, kind)
	assert.Equal(t, "done", text)
	_, _, ok = s.PopFlash()
	assert.False(t, ok)
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := store.Load(ctx, "")
			require.NoError(t, err)
			s.SetTicketAccess("ABC-123", "budi@example.com")
			s.SetDraft("draft", []string{"h1"})
			require.NoError(t, store.Save(ctx, s))

			again, err := store.Load(ctx, s.ID)
			require.NoError(t, err)
			assert.False(t, again.IsNew())
			v, _ := again.Get(KeyTrackID)
			assert.Equal(t, "ABC-123", v)

			again.ClearDraft()
			require.NoError(t, store.Save(ctx, again))

			third, err := store.Load(ctx, s.ID)
			require.NoError(t, err)
			_, ok := third.Get(KeyTicketMessage)
			assert.False(t, ok)

			third.Destroy()
			require.NoError(t, store.Save(ctx, third))
			fresh, err := store.Load(ctx, s.ID)
			require.NoError(t, err)
			assert.True(t, fresh.IsNew())
			assert.NotEqual(t, s.ID, fresh.ID)
		})
	}
}

func TestThrottleReply(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Unix(1_700_000_000, 0)

			ok, err := store.ThrottleReply(ctx, "s1", now, 3*time.Second)
			require.NoError(t, err)
			assert.True(t, ok, "first reply allowed")

			ok, err = store.ThrottleReply(ctx, "s1", now.Add(2*time.Second), 3*time.Second)
			require.NoError(t, err)
			assert.False(t, ok, "second reply within flood window rejected")

			ok, err = store.ThrottleReply(ctx, "s1", now.Add(3*time.Second), 3*time.Second)
			require.NoError(t, err)
			assert.True(t, ok, "reply after the window allowed")

			ok, err = store.ThrottleReply(ctx, "s2", now.Add(3*time.Second), 3*time.Second)
			require.NoError(t, err)
			assert.True(t, ok, "sessions are independent")
		})
	}
}

func TestSaveDoesNotClobberThrottle(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	s, err := store.Load(ctx, "")
	require.NoError(t, err)

	ok, err := store.ThrottleReply(ctx, s.ID, time.Unix(1_700_000_000, 0), 3*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	s.SetDraft("x", nil)
	require.NoError(t, store.Save(ctx, s))

	assert.Equal(t, "1700000000", mr.HGet("sess:"+s.ID, KeyLastReply))
	assert.True(t, mr.TTL("sess:"+s.ID) > 0)
}
