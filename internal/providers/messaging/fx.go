package messaging

import (
	"fmt"
	"net/http"

	"github.com/smallbiznis/recoverly/internal/config"
	"github.com/smallbiznis/recoverly/internal/observability/tracing"
	"github.com/smallbiznis/recoverly/internal/reminder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ProviderNoOp    = config.SenderProviderNoOp
	ProviderWebhook = config.SenderProviderWebhook
	ProviderSMTP    = config.SenderProviderSMTP
)

var Module = fx.Module("providers.messaging",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns the single sender configured for the process.
func NewFromConfig(cfg config.Config, log *zap.Logger) (domain.Sender, error) {
	switch cfg.Sender.Provider {
	case "", ProviderNoOp:
		return NewNoOp(log), nil
	case ProviderWebhook:
		if cfg.Sender.WebhookURL == "" {
			return nil, fmt.Errorf("sender provider %q requires SENDER_WEBHOOK_URL", ProviderWebhook)
		}
		client := tracing.WrapHTTPClient(&http.Client{Timeout: cfg.Sender.Timeout})
		return NewWebhook(cfg.Sender.WebhookURL, cfg.Sender.WebhookAuth, client, log), nil
	case ProviderSMTP:
		return NewSMTP(SMTPConfig{
			Host:     cfg.Sender.SMTPHost,
			Port:     cfg.Sender.SMTPPort,
			Username: cfg.Sender.SMTPUsername,
			Password: cfg.Sender.SMTPPassword,
			From:     cfg.Sender.SMTPFrom,
			Subject:  cfg.Sender.SMTPSubject,
		}), nil
	default:
		return nil, fmt.Errorf("unknown sender provider %q", cfg.Sender.Provider)
	}
}
