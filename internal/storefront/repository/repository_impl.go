package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recoverly/internal/storefront/domain"
	"github.com/smallbiznis/recoverly/pkg/db"
	"gorm.io/gorm"
)

const connectionColumns = `id, tenant_id, store_id, store_name, access_token, refresh_token,
	token_expires_at, is_active, last_sync_at, created_at, updated_at`

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) FindActiveConnection(ctx context.Context, tenantID string) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+connectionColumns+`
		 FROM storefront_connections
		 WHERE tenant_id = ? AND is_active = ?
		 ORDER BY updated_at DESC, id DESC
		 LIMIT 1`,
		tenantID,
		true,
	).Scan(&conn).Error
	if err != nil {
		return nil, err
	}
	if conn.ID == 0 {
		return nil, nil
	}
	return &conn, nil
}

func (r *repo) FindConnectionByStoreID(ctx context.Context, storeID string) (*domain.Connection, error) {
	return findByStoreID(ctx, r.db, storeID)
}

func findByStoreID(ctx context.Context, db *gorm.DB, storeID string) (*domain.Connection, error) {
	var conn domain.Connection
	err := db.WithContext(ctx).Raw(
		`SELECT `+connectionColumns+`
		 FROM storefront_connections WHERE store_id = ?`,
		storeID,
	).Scan(&conn).Error
	if err != nil {
		return nil, err
	}
	if conn.ID == 0 {
		return nil, nil
	}
	return &conn, nil
}

func (r *repo) UpsertConnection(ctx context.Context, conn *domain.Connection) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findByStoreID(ctx, tx, conn.StoreID)
		if err != nil {
			return err
		}

		if existing != nil {
			conn.ID = existing.ID
			conn.CreatedAt = existing.CreatedAt
			if err := tx.Exec(
				`UPDATE storefront_connections
				 SET tenant_id = ?, store_name = ?, access_token = ?, refresh_token = ?,
				     token_expires_at = ?, is_active = ?, last_sync_at = ?, updated_at = ?
				 WHERE id = ?`,
				conn.TenantID,
				conn.StoreName,
				conn.AccessToken,
				conn.RefreshToken,
				conn.TokenExpiresAt,
				conn.IsActive,
				conn.LastSyncAt,
				conn.UpdatedAt,
				conn.ID,
			).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Exec(
				`INSERT INTO storefront_connections (`+connectionColumns+`)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				conn.ID,
				conn.TenantID,
				conn.StoreID,
				conn.StoreName,
				conn.AccessToken,
				conn.RefreshToken,
				conn.TokenExpiresAt,
				conn.IsActive,
				conn.LastSyncAt,
				conn.CreatedAt,
				conn.UpdatedAt,
			).Error; err != nil {
				return err
			}
		}

		if !conn.IsActive {
			return nil
		}
		// one active connection per tenant
		return tx.Exec(
			`UPDATE storefront_connections SET is_active = ?, updated_at = ?
			 WHERE tenant_id = ? AND id <> ? AND is_active = ?`,
			false,
			conn.UpdatedAt,
			conn.TenantID,
			conn.ID,
			true,
		).Error
	})
}

func (r *repo) UpdateTokens(ctx context.Context, connectionID snowflake.ID, tokens domain.TokenUpdate) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE storefront_connections
		 SET access_token = ?, refresh_token = ?, token_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		tokens.AccessToken,
		tokens.RefreshToken,
		tokens.ExpiresAt,
		tokens.UpdatedAt,
		connectionID,
	).Error
}

func (r *repo) UpdateLastSync(ctx context.Context, connectionID snowflake.ID, at time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE storefront_connections SET last_sync_at = ?, updated_at = ? WHERE id = ?`,
		at,
		at,
		connectionID,
	).Error
}

func (r *repo) Deactivate(ctx context.Context, connectionID snowflake.ID, at time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE storefront_connections SET is_active = ?, updated_at = ? WHERE id = ?`,
		false,
		at,
		connectionID,
	).Error
}

func (r *repo) ListActiveTenantIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Raw(
		`SELECT DISTINCT tenant_id FROM storefront_connections
		 WHERE is_active = ?
		 ORDER BY tenant_id`,
		true,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FindTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, email, created_at, updated_at FROM tenants WHERE id = ?`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == "" {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) FindTenantByEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, email, created_at, updated_at FROM tenants WHERE email = ?`,
		email,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == "" {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) InsertTenant(ctx context.Context, tenant *domain.Tenant) error {
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO tenants (id, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		tenant.ID,
		tenant.Name,
		tenant.Email,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateTenant
	}
	return err
}
