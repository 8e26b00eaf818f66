package httpx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter shared by every replica serving the public booking
// endpoints. Keys are "<prefix>:<client>".
type RedisLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

// takeScript increments the window counter, starts its expiry on first use and returns
// {count, remaining ttl in ms}.
var takeScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

func NewRedisLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window < time.Millisecond {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix}
}

func (l *RedisLimiter) Take(ctx context.Context, key string) (Quota, error) {
	res, err := takeScript.Run(ctx, l.rdb, []string{l.prefix + ":" + key}, l.window.Milliseconds()).Slice()
	if err != nil {
		return Quota{}, err
	}
	if len(res) != 2 {
		return Quota{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	count, err := toInt64(res[0])
	if err != nil {
		return Quota{}, err
	}
	ttl, err := toInt64(res[1])
	if err != nil {
		return Quota{}, err
	}
	resetIn := l.window
	if ttl > 0 {
		resetIn = time.Duration(ttl) * time.Millisecond
	}
	return quota(l.limit, count, resetIn), nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected rate limit value %T", v)
	}
}
