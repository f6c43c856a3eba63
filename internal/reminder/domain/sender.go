package domain

import (
	"context"

	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
)

//go:generate mockgen -source=sender.go -destination=mock/mock_sender.go -package=mock

type SendRequest struct {
	TenantID string
	Stage    cartdomain.ReminderStage
	Cart     cartdomain.Cart
	Template Template
	Content  string
}

type SendResult struct {
	Provider  string
	MessageID string
}

// Sender delivers one rendered reminder. Delivery transport is owned by the implementation.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
