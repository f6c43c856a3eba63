package scheduler

import (
	"time"

	"github.com/smallbiznis/recoverly/internal/config"
)

// Config controls the recovery loop cadence and fan-out.
type Config struct {
	RunInterval    time.Duration
	MaxConcurrency int
	TenantTimeout  time.Duration
	JobTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    5 * time.Minute,
		MaxConcurrency: 4,
		TenantTimeout:  2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaults.MaxConcurrency
	}
	if c.TenantTimeout <= 0 {
		c.TenantTimeout = defaults.TenantTimeout
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = c.RunInterval
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:    cfg.Scheduler.RunInterval,
		MaxConcurrency: cfg.Scheduler.MaxConcurrency,
		TenantTimeout:  cfg.Scheduler.TenantTimeout,
	}.withDefaults()
}
