package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RecoveryConfig tunes the sync and reminder engine. It is reloaded from recovery.yml at runtime.
type RecoveryConfig struct {
	MaxPages            int                    `mapstructure:"maxPages"`
	CustomerPlaceholder string                 `mapstructure:"customerPlaceholder"`
	CartURLPattern      string                 `mapstructure:"cartURLPattern"`
	DispatchBatchLimit  int                    `mapstructure:"dispatchBatchLimit"`
	TokenRefreshSkew    time.Duration          `mapstructure:"tokenRefreshSkew"`
	CartExpiryDays      int                    `mapstructure:"cartExpiryDays"`
	DefaultTemplates    DefaultTemplatesConfig `mapstructure:"defaultTemplates"`
}

type DefaultTemplatesConfig struct {
	First  TemplateSeed `mapstructure:"first"`
	Second TemplateSeed `mapstructure:"second"`
}

type TemplateSeed struct {
	Name    string `mapstructure:"name"`
	Content string `mapstructure:"content"`
}

func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		MaxPages:            5,
		CustomerPlaceholder: "Customer",
		CartURLPattern:      "https://%s.mysalla.com/cart",
		DispatchBatchLimit:  500,
		TokenRefreshSkew:    5 * time.Minute,
		CartExpiryDays:      30,
		DefaultTemplates: DefaultTemplatesConfig{
			First: TemplateSeed{
				Name:    "First reminder",
				Content: "Hi {customer_name}, you left items in your cart. Complete your order here: {cart_url}",
			},
			Second: TemplateSeed{
				Name:    "Second reminder",
				Content: "Hi {customer_name}, your cart ({total} {currency}) is still waiting for you: {cart_url}",
			},
		},
	}
}

type RecoveryConfigHolder struct {
	current atomic.Value // holds RecoveryConfig
}

// NewRecoveryConfigHolderFrom returns a holder pinned to cfg, without a backing file.
func NewRecoveryConfigHolderFrom(cfg RecoveryConfig) *RecoveryConfigHolder {
	holder := &RecoveryConfigHolder{}
	holder.current.Store(cfg.withDefaults())
	return holder
}

func NewRecoveryConfigHolder() (*RecoveryConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("recovery")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/recoverly")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECOVERLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRecoveryConfig()
	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg := defaults
	if fileFound {
		if err := v.UnmarshalKey("recovery", &cfg); err != nil {
			return nil, err
		}
	}
	cfg = cfg.withDefaults()
	if err := validateRecoveryConfig(cfg); err != nil {
		return nil, err
	}

	holder := &RecoveryConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultRecoveryConfig()
		if err := v.UnmarshalKey("recovery", &updated); err != nil {
			log.Printf("[recovery-config] reload failed: %v", err)
			return
		}
		updated = updated.withDefaults()
		if err := validateRecoveryConfig(updated); err != nil {
			log.Printf("[recovery-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[recovery-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *RecoveryConfigHolder) Get() RecoveryConfig {
	if h == nil {
		return DefaultRecoveryConfig()
	}
	cfg, ok := h.current.Load().(RecoveryConfig)
	if !ok {
		return DefaultRecoveryConfig()
	}
	return cfg
}

func (c RecoveryConfig) withDefaults() RecoveryConfig {
	defaults := DefaultRecoveryConfig()
	if c.MaxPages <= 0 {
		c.MaxPages = defaults.MaxPages
	}
	if strings.TrimSpace(c.CustomerPlaceholder) == "" {
		c.CustomerPlaceholder = defaults.CustomerPlaceholder
	}
	if strings.TrimSpace(c.CartURLPattern) == "" {
		c.CartURLPattern = defaults.CartURLPattern
	}
	if c.DispatchBatchLimit <= 0 {
		c.DispatchBatchLimit = defaults.DispatchBatchLimit
	}
	if c.TokenRefreshSkew <= 0 {
		c.TokenRefreshSkew = defaults.TokenRefreshSkew
	}
	if c.CartExpiryDays <= 0 {
		c.CartExpiryDays = defaults.CartExpiryDays
	}
	if strings.TrimSpace(c.DefaultTemplates.First.Content) == "" {
		c.DefaultTemplates.First = defaults.DefaultTemplates.First
	}
	if strings.TrimSpace(c.DefaultTemplates.Second.Content) == "" {
		c.DefaultTemplates.Second = defaults.DefaultTemplates.Second
	}
	return c
}

func validateRecoveryConfig(cfg RecoveryConfig) error {
	if !strings.Contains(cfg.CartURLPattern, "%s") {
		return errors.New("recovery.cartURLPattern must contain %s")
	}
	if cfg.MaxPages > 100 {
		return errors.New("recovery.maxPages cannot exceed 100")
	}
	return nil
}
