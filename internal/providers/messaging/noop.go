package messaging

import (
	"context"

	"github.com/smallbiznis/recoverly/internal/reminder/domain"
	"go.uber.org/zap"
)

// NoOpSender logs reminders instead of delivering them.
type NoOpSender struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpSender {
	return &NoOpSender{log: log.Named("messaging.noop")}
}

func (s *NoOpSender) Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendResult{}, err
	}
	s.log.Info("messaging.noop.send",
		zap.String("tenant_id", req.TenantID),
		zap.String("cart_id", req.Cart.ID.String()),
		zap.String("stage", string(req.Stage)),
		zap.Int("content_length", len(req.Content)),
	)
	return domain.SendResult{Provider: ProviderNoOp, MessageID: "noop-" + req.Cart.ID.String() + "-" + string(req.Stage)}, nil
}
