package httpx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a sliding-window counter shared by every instance
// behind the same Redis. The estimate for a key is the current window's
// count plus the previous window's count weighted by the unelapsed share of
// the current window.
type RedisRateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// KEYS[1] is the current window bucket, KEYS[2] the previous one.
var redisSlidingWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local previous = tonumber(redis.call("GET", KEYS[2]) or "0")
return {current, previous}
`)

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix, now: time.Now}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := rl.now()
	idx := now.UnixMilli() / rl.window.Milliseconds()
	elapsed := float64(now.UnixMilli()%rl.window.Milliseconds()) / float64(rl.window.Milliseconds())

	base := rl.prefix + ":" + key + ":"
	keys := []string{base + strconv.FormatInt(idx, 10), base + strconv.FormatInt(idx-1, 10)}
	res, err := redisSlidingWindowScript.Run(ctx, rl.rdb, keys, (2 * rl.window).Milliseconds()).Int64Slice()
	if err != nil {
		return false, err
	}
	if len(res) != 2 {
		return false, fmt.Errorf("unexpected rate limit script result %v", res)
	}
	estimate := float64(res[1])*(1-elapsed) + float64(res[0])
	return estimate <= float64(rl.limit), nil
}
