package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/recoverly/internal/storefront/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func repositories(t *testing.T) map[string]domain.Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Tenant{}, &domain.Connection{}))

	return map[string]domain.Repository{
		"sql":    Provide(conn),
		"memory": NewMemory(),
	}
}

func TestUpsertConnection_KeyedOnStoreID(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expires := now.Add(time.Hour)
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := &domain.Connection{
				ID: 10, TenantID: "t1", StoreID: "store-1", StoreName: "Demo",
				AccessToken: "a1", RefreshToken: "r1", TokenExpiresAt: &expires,
				IsActive: true, LastSyncAt: &now, CreatedAt: now, UpdatedAt: now,
			}
			require.NoError(t, repo.UpsertConnection(ctx, first))

			later := now.Add(time.Minute)
			again := &domain.Connection{
				ID: 11, TenantID: "t1", StoreID: "store-1", StoreName: "Demo 2",
				AccessToken: "a2", RefreshToken: "r2",
				IsActive: true, LastSyncAt: &later, CreatedAt: later, UpdatedAt: later,
			}
			require.NoError(t, repo.UpsertConnection(ctx, again))
			assert.EqualValues(t, 10, again.ID, "existing row is reused")

			got, err := repo.FindActiveConnection(ctx, "t1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "a2", got.AccessToken)
			assert.Equal(t, "Demo 2", got.StoreName)
			assert.Nil(t, got.TokenExpiresAt)
			assert.True(t, got.CreatedAt.Equal(now))
		})
	}
}

func TestUpsertConnection_DeactivatesOtherStoresOfTenant(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, repo.UpsertConnection(ctx, &domain.Connection{
				ID: 1, TenantID: "t1", StoreID: "old", AccessToken: "a", RefreshToken: "r",
				IsActive: true, CreatedAt: now, UpdatedAt: now,
			}))
			require.NoError(t, repo.UpsertConnection(ctx, &domain.Connection{
				ID: 2, TenantID: "t1", StoreID: "new", AccessToken: "b", RefreshToken: "s",
				IsActive: true, CreatedAt: now.Add(time.Hour), UpdatedAt: now.Add(time.Hour),
			}))

			old, err := repo.FindConnectionByStoreID(ctx, "old")
			require.NoError(t, err)
			require.NotNil(t, old)
			assert.False(t, old.IsActive)

			active, err := repo.FindActiveConnection(ctx, "t1")
			require.NoError(t, err)
			require.NotNil(t, active)
			assert.Equal(t, "new", active.StoreID)

			ids, err := repo.ListActiveTenantIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"t1"}, ids)

			require.NoError(t, repo.Deactivate(ctx, active.ID, now.Add(2*time.Hour)))
			active, err = repo.FindActiveConnection(ctx, "t1")
			require.NoError(t, err)
			assert.Nil(t, active)

			ids, err = repo.ListActiveTenantIDs(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestUpdateTokensAndLastSync(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.UpsertConnection(ctx, &domain.Connection{
				ID: 1, TenantID: "t1", StoreID: "s", AccessToken: "a", RefreshToken: "r",
				IsActive: true, CreatedAt: now, UpdatedAt: now,
			}))

			expires := now.Add(14 * 24 * time.Hour)
			require.NoError(t, repo.UpdateTokens(ctx, 1, domain.TokenUpdate{
				AccessToken: "a2", RefreshToken: "r2", ExpiresAt: &expires, UpdatedAt: now,
			}))
			synced := now.Add(time.Minute)
			require.NoError(t, repo.UpdateLastSync(ctx, 1, synced))

			conn, err := repo.FindConnectionByStoreID(ctx, "s")
			require.NoError(t, err)
			require.NotNil(t, conn)
			assert.Equal(t, "a2", conn.AccessToken)
			assert.Equal(t, "r2", conn.RefreshToken)
			require.NotNil(t, conn.TokenExpiresAt)
			assert.True(t, conn.TokenExpiresAt.Equal(expires))
			require.NotNil(t, conn.LastSyncAt)
			assert.True(t, conn.LastSyncAt.Equal(synced))
		})
	}
}

func TestTenants(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	email := "owner@example.com"
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, repo.InsertTenant(ctx, &domain.Tenant{
				ID: "01HZY3W3V1B8Q5T0M4ZQ7J6K2A", Name: "Demo", Email: &email, CreatedAt: now, UpdatedAt: now,
			}))

			byEmail, err := repo.FindTenantByEmail(ctx, email)
			require.NoError(t, err)
			require.NotNil(t, byEmail)
			assert.Equal(t, "Demo", byEmail.Name)

			byID, err := repo.FindTenant(ctx, "01HZY3W3V1B8Q5T0M4ZQ7J6K2A")
			require.NoError(t, err)
			require.NotNil(t, byID)

			missing, err := repo.FindTenantByEmail(ctx, "nobody@example.com")
			require.NoError(t, err)
			assert.Nil(t, missing)

			err = repo.InsertTenant(ctx, &domain.Tenant{
				ID: "01HZY3W3V1B8Q5T0M4ZQ7J6K2B", Name: "Again", Email: &email, CreatedAt: now, UpdatedAt: now,
			})
			assert.ErrorIs(t, err, domain.ErrDuplicateTenant)
		})
	}
}
