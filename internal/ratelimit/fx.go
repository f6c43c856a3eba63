package ratelimit

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyTrigger = "recoverly:trigger:%s:%s"

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(NewTriggerLimiter),
)

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled() {
		log.Info("ratelimit.redis.disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewLocker(client *redis.Client, clk clock.Clock) Locker {
	if client == nil {
		return NewLocalLocker(clk)
	}
	return NewRedisLocker(client)
}

// TriggerLimiter limits the manual sync/dispatch endpoints per tenant.
type TriggerLimiter struct {
	limiter Limiter
}

func NewTriggerLimiter(client *redis.Client, cfg config.Config) (*TriggerLimiter, error) {
	var (
		limiter Limiter
		err     error
	)
	if client != nil {
		limiter, err = NewTokenBucket(client, cfg.RateLimit.TriggerRate, cfg.RateLimit.TriggerBurst)
	} else {
		limiter, err = NewLocalLimiter(cfg.RateLimit.TriggerRate, cfg.RateLimit.TriggerBurst)
	}
	if err != nil {
		return nil, fmt.Errorf("trigger rate limit: %w", err)
	}
	return &TriggerLimiter{limiter: limiter}, nil
}

func NewTriggerLimiterFrom(limiter Limiter) *TriggerLimiter {
	return &TriggerLimiter{limiter: limiter}
}

func (l *TriggerLimiter) Allow(ctx context.Context, tenantID, endpoint string) (Result, error) {
	if l == nil || l.limiter == nil {
		return Result{Allowed: true}, nil
	}
	return l.limiter.Allow(ctx, fmt.Sprintf(keyTrigger, tenantID, endpoint))
}
