package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	FindActiveConnection(ctx context.Context, tenantID string) (*Connection, error)
	FindConnectionByStoreID(ctx context.Context, storeID string) (*Connection, error)
	// UpsertConnection inserts or replaces the row keyed on store_id and deactivates any other
	// active connection of the same tenant. conn.ID is set to the persisted row id.
	UpsertConnection(ctx context.Context, conn *Connection) error
	UpdateTokens(ctx context.Context, connectionID snowflake.ID, tokens TokenUpdate) error
	UpdateLastSync(ctx context.Context, connectionID snowflake.ID, at time.Time) error
	Deactivate(ctx context.Context, connectionID snowflake.ID, at time.Time) error
	ListActiveTenantIDs(ctx context.Context) ([]string, error)

	FindTenant(ctx context.Context, id string) (*Tenant, error)
	FindTenantByEmail(ctx context.Context, email string) (*Tenant, error)
	InsertTenant(ctx context.Context, tenant *Tenant) error
}
