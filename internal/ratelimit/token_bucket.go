package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens)}
`

var ErrInvalidLimit = errors.New("rate_limit_invalid")

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits one event for key when its bucket has a token.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
	rate   float64
	burst  int
}

func NewTokenBucket(client *redis.Client, ratePerSecond float64, burst int) (*TokenBucket, error) {
	if ratePerSecond <= 0 || burst <= 0 {
		return nil, ErrInvalidLimit
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		rate:   ratePerSecond,
		burst:  burst,
	}, nil
}

func (t *TokenBucket) Allow(ctx context.Context, key string) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}

	ttl := bucketTTL(t.rate, t.burst)
	res, err := t.script.Run(ctx, t.client, []string{key}, t.rate, t.burst, ttl.Milliseconds()).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 2 {
		return Result{}, errors.New("invalid rate limit script response")
	}

	allowed, _ := res[0].(int64)
	var remaining float64
	if s, ok := res[1].(string); ok {
		remaining, _ = strconv.ParseFloat(s, 64)
	}
	return newResult(allowed == 1, t.burst, remaining, t.rate), nil
}

// LocalLimiter keeps one x/time/rate bucket per key in memory.
type LocalLimiter struct {
	mu      sync.Mutex
	rate    float64
	burst   int
	buckets map[string]*rate.Limiter
}

func NewLocalLimiter(ratePerSecond float64, burst int) (*LocalLimiter, error) {
	if ratePerSecond <= 0 || burst <= 0 {
		return nil, ErrInvalidLimit
	}
	return &LocalLimiter{
		rate:    ratePerSecond,
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}, nil
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}

	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(l.rate), l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	allowed := bucket.Allow()
	return newResult(allowed, l.burst, bucket.Tokens(), l.rate), nil
}

func newResult(allowed bool, burst int, remaining, ratePerSecond float64) Result {
	out := Result{Allowed: allowed, Limit: burst, Remaining: int(math.Max(0, math.Floor(remaining)))}
	if !allowed && ratePerSecond > 0 {
		needed := 1 - remaining
		if needed > 0 {
			out.RetryAfter = time.Duration(needed / ratePerSecond * float64(time.Second))
		}
	}
	return out
}

func bucketTTL(ratePerSecond float64, burst int) time.Duration {
	seconds := math.Ceil((float64(burst) / ratePerSecond) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
