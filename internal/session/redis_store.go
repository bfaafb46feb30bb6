package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// throttleScript compares and records last_reply_timestamp in one step.
var throttleScript = redis.NewScript(`
local last = redis.call('HGET', KEYS[1], ARGV[4])
local now = tonumber(ARGV[1])
if last and (now - tonumber(last)) < tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[4], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisStore keeps each session as a hash under prefix+id.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return New(), nil
	}
	values, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(values) == 0 {
		return New(), nil
	}
	return loaded(id, values), nil
}

// Save writes only the changed fields so a concurrent ThrottleReply is never
// overwritten.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s.Destroyed() {
		return r.Destroy(ctx, s.ID)
	}
	if !s.Dirty() {
		return nil
	}

	set, removed := s.changes()
	key := r.key(s.ID)

	pipe := r.client.TxPipeline()
	if len(set) > 0 {
		fields := make([]any, 0, len(set)*2)
		for k, v := range set {
			fields = append(fields, k, v)
		}
		pipe.HSet(ctx, key, fields...)
	}
	if len(removed) > 0 {
		pipe.HDel(ctx, key, removed...)
	}
	if len(set) == 0 && s.IsNew() {
		// keeps an empty new session addressable until it expires
		pipe.HSet(ctx, key, "created", time.Now().Unix())
	}
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	s.markSaved()
	return nil
}

func (r *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

func (r *RedisStore) ThrottleReply(ctx context.Context, id string, now time.Time, interval time.Duration) (bool, error) {
	ok, err := throttleScript.Run(ctx, r.client, []string{r.key(id)},
		now.Unix(), int64(interval/time.Second), int64(r.ttl/time.Second), KeyLastReply).Int64()
	if err != nil {
		return false, fmt.Errorf("throttle reply: %w", err)
	}
	return ok == 1, nil
}
