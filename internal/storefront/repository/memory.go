package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recoverly/internal/storefront/domain"
)

type memoryRepo struct {
	mu          sync.RWMutex
	connections map[snowflake.ID]domain.Connection
	tenants     map[string]domain.Tenant
}

func NewMemory() domain.Repository {
	return &memoryRepo{
		connections: make(map[snowflake.ID]domain.Connection),
		tenants:     make(map[string]domain.Tenant),
	}
}

func (r *memoryRepo) FindActiveConnection(ctx context.Context, tenantID string) (*domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *domain.Connection
	for _, conn := range r.connections {
		if conn.TenantID != tenantID || !conn.IsActive {
			continue
		}
		if found == nil || conn.UpdatedAt.After(found.UpdatedAt) {
			c := conn
			found = &c
		}
	}
	return found, nil
}

func (r *memoryRepo) FindConnectionByStoreID(ctx context.Context, storeID string) (*domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if conn, ok := r.byStoreID(storeID); ok {
		return &conn, nil
	}
	return nil, nil
}

func (r *memoryRepo) byStoreID(storeID string) (domain.Connection, bool) {
	for _, conn := range r.connections {
		if conn.StoreID == storeID {
			return conn, true
		}
	}
	return domain.Connection{}, false
}

func (r *memoryRepo) UpsertConnection(ctx context.Context, conn *domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byStoreID(conn.StoreID); ok {
		conn.ID = existing.ID
		conn.CreatedAt = existing.CreatedAt
	}
	r.connections[conn.ID] = *conn

	if !conn.IsActive {
		return nil
	}
	for id, other := range r.connections {
		if id != conn.ID && other.TenantID == conn.TenantID && other.IsActive {
			other.IsActive = false
			other.UpdatedAt = conn.UpdatedAt
			r.connections[id] = other
		}
	}
	return nil
}

func (r *memoryRepo) UpdateTokens(ctx context.Context, connectionID snowflake.ID, tokens domain.TokenUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		return nil
	}
	conn.AccessToken = tokens.AccessToken
	conn.RefreshToken = tokens.RefreshToken
	conn.TokenExpiresAt = tokens.ExpiresAt
	conn.UpdatedAt = tokens.UpdatedAt
	r.connections[connectionID] = conn
	return nil
}

func (r *memoryRepo) UpdateLastSync(ctx context.Context, connectionID snowflake.ID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		return nil
	}
	conn.LastSyncAt = &at
	conn.UpdatedAt = at
	r.connections[connectionID] = conn
	return nil
}

func (r *memoryRepo) Deactivate(ctx context.Context, connectionID snowflake.ID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		return nil
	}
	conn.IsActive = false
	conn.UpdatedAt = at
	r.connections[connectionID] = conn
	return nil
}

func (r *memoryRepo) ListActiveTenantIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	seen := make(map[string]struct{})
	for _, conn := range r.connections {
		if conn.IsActive {
			seen[conn.TenantID] = struct{}{}
		}
	}
	r.mu.RUnlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memoryRepo) FindTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenant, ok := r.tenants[id]
	if !ok {
		return nil, nil
	}
	return &tenant, nil
}

func (r *memoryRepo) FindTenantByEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tenant := range r.tenants {
		if tenant.Email != nil && *tenant.Email == email {
			t := tenant
			return &t, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) InsertTenant(ctx context.Context, tenant *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, other := range r.tenants {
		if id == tenant.ID {
			return domain.ErrDuplicateTenant
		}
		if tenant.Email != nil && other.Email != nil && *other.Email == *tenant.Email {
			return domain.ErrDuplicateTenant
		}
	}
	r.tenants[tenant.ID] = *tenant
	return nil
}
