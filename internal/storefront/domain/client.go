package domain

import (
	"context"
	"fmt"
)

//go:generate mockgen -source=client.go -destination=mock/mock_client.go -package=mock

// Client is the storefront admin API.
type Client interface {
	FetchPendingOrders(ctx context.Context, accessToken string, page, perPage int) (*OrderPage, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*Tokens, error)
	GetStoreInfo(ctx context.Context, accessToken string) (*StoreInfo, error)
}

// TokenManager hands out an access token that is valid for at least the refresh skew.
type TokenManager interface {
	GetValidAccessToken(ctx context.Context, tenantID string) (string, error)
}

// APIError is a non-2xx storefront response.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storefront %s: status %d", e.Operation, e.StatusCode)
}
