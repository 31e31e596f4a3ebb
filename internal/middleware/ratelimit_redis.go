package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript はキーのカウンタを加算し、初回のみ有効期限を設定する。
// 戻り値は {許可なら1, 残りミリ秒}。
const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if current > tonumber(ARGV[2]) then
  return {0, ttl}
end
return {1, ttl}
`

// RedisLimiter は固定ウィンドウ方式のレート制限をRedis上で行う。
// 複数インスタンスで上限を共有する。
type RedisLimiter struct {
	client  redis.Scripter
	script  *redis.Script
	prefix  string
	limit   int
	window  time.Duration
	timeout time.Duration
}

// NewRedisLimiter はpolicyの1分あたり上限を1分の固定ウィンドウで適用するRedisLimiterを生成する。
func NewRedisLimiter(client redis.Scripter, policy RatePolicy) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		script:  redis.NewScript(fixedWindowScript),
		prefix:  "showcase:ratelimit:",
		limit:   policy.PerMinute,
		window:  time.Minute,
		timeout: 250 * time.Millisecond,
	}
}

// Allow はkeyのカウンタを加算し、ウィンドウ内の上限を超えていないかを返す。
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.script.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds(), l.limit).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis rate limit script: unexpected result %v", res)
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}
