package domain

import (
	"context"
	"errors"
	"time"
)

const (
	EventStoreAuthorize    = "app.store.authorize"
	EventAppUninstalled    = "app.uninstalled"
	EventOrderStatusUpdate = "order.status.updated"
)

// WebhookEvent is the envelope of every storefront webhook.
type WebhookEvent struct {
	Event    string           `json:"event"`
	Merchant FlexString       `json:"merchant"`
	Data     WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	StoreID      FlexString       `json:"store_id"`
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresIn    int64            `json:"expires_in"`
	Store        *WebhookStore    `json:"store"`
	MerchantInfo *WebhookMerchant `json:"merchant"`

	// order events
	ID     FlexString          `json:"id"`
	Status *WebhookOrderStatus `json:"status"`
}

type WebhookStore struct {
	Name string `json:"name"`
}

type WebhookMerchant struct {
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Mobile FlexString `json:"mobile"`
}

type WebhookOrderStatus struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type WebhookAction string

const (
	WebhookActionIgnored     WebhookAction = "ignored"
	WebhookActionProvisioned WebhookAction = "provisioned"
	WebhookActionDeactivated WebhookAction = "deactivated"
	WebhookActionRecovered   WebhookAction = "recovered"
	WebhookActionExpired     WebhookAction = "expired"
)

type WebhookResult struct {
	Event    string        `json:"event"`
	Action   WebhookAction `json:"action"`
	TenantID string        `json:"tenant_id,omitempty"`
	StoreID  string        `json:"store_id,omitempty"`
}

type ConnectionStatus struct {
	Connected      bool       `json:"connected"`
	StoreID        string     `json:"store_id,omitempty"`
	StoreName      string     `json:"store_name,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
}

type Service interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error)
	GetConnectionStatus(ctx context.Context, tenantID string) (ConnectionStatus, error)
}

var (
	ErrNoConnection       = errors.New("no_connection")
	ErrTokenRefreshFailed = errors.New("token_refresh_failed")
	ErrFetchFailed        = errors.New("fetch_failed")
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidWebhook     = errors.New("invalid_webhook_payload")
	ErrMissingWebhookData = errors.New("missing_webhook_data")
	ErrDuplicateTenant    = errors.New("duplicate_tenant")
)
