package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/recoverly/pkg/db/pagination"
)

type ListCartRequest struct {
	PageToken string
	PageSize  int32
	Status    string
}

type ListCartFilter struct {
	Status Status
}

type ListCartResponse struct {
	pagination.PageInfo
	Carts []Cart `json:"carts"`
}

type Stats struct {
	Pending   int64 `json:"pending"`
	Recovered int64 `json:"recovered"`
	Expired   int64 `json:"expired"`
	Total     int64 `json:"total"`
}

type Service interface {
	List(ctx context.Context, tenantID string, req ListCartRequest) (ListCartResponse, error)
	GetByID(ctx context.Context, tenantID, id string) (Cart, error)
	Stats(ctx context.Context, tenantID string) (Stats, error)
	// Resolve applies an external order outcome to a pending cart.
	Resolve(ctx context.Context, tenantID, externalID string, to Status) (bool, error)
	ExpireStale(ctx context.Context, tenantID string, olderThan time.Duration) (int64, error)
}

// SyncResult summarizes one storefront sync.
type SyncResult struct {
	TotalFetched   int  `json:"total_fetched"`
	Saved          int  `json:"saved"`
	Skipped        int  `json:"skipped"`
	Failed         int  `json:"failed"`
	PagesFetched   int  `json:"pages_fetched"`
	Truncated      bool `json:"truncated"`
	PageCapReached bool `json:"page_cap_reached"`
}

type Syncer interface {
	Sync(ctx context.Context, tenantID string) (SyncResult, error)
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrInvalidStage      = errors.New("invalid_reminder_stage")
	ErrNotFound          = errors.New("not_found")
	ErrDuplicateCart     = errors.New("duplicate_cart")
	ErrMissingExternalID = errors.New("missing_external_cart_id")
	ErrCartPersistFailed = errors.New("cart_persist_failed")
)
