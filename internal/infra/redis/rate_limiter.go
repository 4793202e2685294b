package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"product-entitlements/internal/domain/ports/repository"
)

var _ repository.AttemptStore = (*AttemptStore)(nil)

// AttemptStore keeps failed-attempt counters in Redis so every process
// shares the same limits. Keys expire with their window.
type AttemptStore struct {
	client *Client
}

func NewAttemptStore(client *Client) *AttemptStore {
	return &AttemptStore{client: client}
}

// INCR and the first-failure PEXPIRE run as one script so a crash between
// them cannot leave a counter without expiry.
var luaIncr = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}`)

func (s *AttemptStore) Get(ctx context.Context, key string) (int, time.Duration, error) {
	raw, err := s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, 0, err
	}
	ttl, err := s.client.PTTL(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		ttl = 0
	}
	return n, ttl, nil
}

func (s *AttemptStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	res, err := luaIncr.Run(ctx, s.client.cli, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, errors.New("unexpected script reply")
	}
	n, _ := res[0].(int64)
	ttl, _ := res[1].(int64)
	if ttl < 0 {
		ttl = 0
	}
	return int(n), time.Duration(ttl) * time.Millisecond, nil
}

func (s *AttemptStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, key)
}
