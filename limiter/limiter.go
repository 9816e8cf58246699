package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Strategy 定义限流算法策略接口
type Strategy interface {
	// Allow 检查是否允许通过
	// key: 限流标识 (如 IP)
	// limit: 限制次数 (或令牌桶容量)
	// window: 时间窗口 (或令牌生成速率单位)
	Allow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error)
}

// Manager 限流管理器
type Manager struct {
	rdb      *redis.Client
	strategy Strategy
	prefix   string
}

func NewManager(rdb *redis.Client, strategy Strategy) *Manager {
	return &Manager{
		rdb:      rdb,
		strategy: strategy,
		prefix:   "ratelimit:",
	}
}

func (m *Manager) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return m.strategy.Allow(ctx, m.rdb, m.prefix+key, limit, window)
}

// 固定窗口: INCR + EXPIRE, atomically.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
	return 0
end
return 1
`)

type FixedWindowStrategy struct{}

func (s *FixedWindowStrategy) Allow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error) {
	result, err := fixedWindowScript.Run(ctx, rdb, []string{key}, limit, window.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// 令牌桶: tokens and last refill time live in a hash.
// ARGV: capacity, rate (tokens per ms), now (ms), ttl (ms)
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local info = redis.call("HMGET", KEYS[1], "tokens", "last_time")
local tokens = tonumber(info[1])
local last_time = tonumber(info[2])
if tokens == nil then
	tokens = capacity
	last_time = now
end

tokens = math.min(capacity, tokens + math.max(0, now - last_time) * rate)
if tokens < 1 then
	return 0
end
redis.call("HSET", KEYS[1], "tokens", tokens - 1, "last_time", now)
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

type TokenBucketStrategy struct {
	Now func() time.Time
}

func (s *TokenBucketStrategy) Allow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 {
		window = time.Second
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	// limit tokens refill over one window
	rate := float64(limit) / float64(window.Milliseconds())
	result, err := tokenBucketScript.Run(ctx, rdb, []string{key},
		limit, rate, now().UnixMilli(), (2 * window).Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}
