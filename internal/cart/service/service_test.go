package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/cart/repository"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (domain.Service, domain.Repository, *snowflake.Node, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	repo := repository.NewMemory()
	clk := clock.NewFakeClock(baseTime)
	svc := New(Params{Log: zaptest.NewLogger(t), Repo: repo, Clock: clk})
	return svc, repo, node, clk
}

func insertCart(t *testing.T, repo domain.Repository, node *snowflake.Node, tenantID, externalID string, createdAt time.Time) domain.Cart {
	t.Helper()
	cart := domain.NewCart(node.Generate(), domain.Draft{
		TenantID:       tenantID,
		ExternalCartID: externalID,
		CustomerName:   "Customer",
		Currency:       "SAR",
	}, createdAt)
	require.NoError(t, repo.Insert(context.Background(), &cart))
	return cart
}

func TestList_CursorPagination(t *testing.T) {
	svc, repo, node, _ := newService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		insertCart(t, repo, node, "t1", strconv.Itoa(i), baseTime.Add(time.Duration(i)*time.Minute))
	}
	insertCart(t, repo, node, "other", "x", baseTime)

	first, err := svc.List(ctx, "t1", domain.ListCartRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Carts, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "4", first.Carts[0].ExternalCartID)
	assert.Equal(t, "3", first.Carts[1].ExternalCartID)

	second, err := svc.List(ctx, "t1", domain.ListCartRequest{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Carts, 2)
	assert.Equal(t, "2", second.Carts[0].ExternalCartID)

	third, err := svc.List(ctx, "t1", domain.ListCartRequest{PageSize: 2, PageToken: second.NextPageToken})
	require.NoError(t, err)
	require.Len(t, third.Carts, 1)
	assert.False(t, third.HasMore)
	assert.Empty(t, third.NextPageToken)
}

func TestList_Validation(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, "", domain.ListCartRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	_, err = svc.List(ctx, "t1", domain.ListCartRequest{Status: "archived"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = svc.List(ctx, "t1", domain.ListCartRequest{PageToken: "%%%"})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestList_StatusFilter(t *testing.T) {
	svc, repo, node, _ := newService(t)
	ctx := context.Background()
	insertCart(t, repo, node, "t1", "a", baseTime)
	insertCart(t, repo, node, "t1", "b", baseTime)
	_, err := svc.Resolve(ctx, "t1", "b", domain.StatusRecovered)
	require.NoError(t, err)

	resp, err := svc.List(ctx, "t1", domain.ListCartRequest{Status: "Recovered"})
	require.NoError(t, err)
	require.Len(t, resp.Carts, 1)
	assert.Equal(t, "b", resp.Carts[0].ExternalCartID)
}

func TestGetByID(t *testing.T) {
	svc, repo, node, _ := newService(t)
	ctx := context.Background()
	cart := insertCart(t, repo, node, "t1", "a", baseTime)

	got, err := svc.GetByID(ctx, "t1", cart.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "a", got.ExternalCartID)

	_, err = svc.GetByID(ctx, "t2", cart.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByID(ctx, "t1", "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestResolveAndStats(t *testing.T) {
	svc, repo, node, _ := newService(t)
	ctx := context.Background()
	insertCart(t, repo, node, "t1", "a", baseTime)
	insertCart(t, repo, node, "t1", "b", baseTime)
	insertCart(t, repo, node, "t1", "c", baseTime)

	changed, err := svc.Resolve(ctx, "t1", "a", domain.StatusRecovered)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.Resolve(ctx, "t1", "a", domain.StatusExpired)
	require.NoError(t, err)
	assert.False(t, changed, "terminal carts never transition again")

	changed, err = svc.Resolve(ctx, "t1", "b", domain.StatusExpired)
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = svc.Resolve(ctx, "t1", "c", domain.StatusPending)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	changed, err = svc.Resolve(ctx, "t1", "missing", domain.StatusRecovered)
	require.NoError(t, err)
	assert.False(t, changed)

	stats, err := svc.Stats(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{Pending: 1, Recovered: 1, Expired: 1, Total: 3}, stats)

	recovered, err := repo.FindByExternalID(ctx, "t1", "a")
	require.NoError(t, err)
	require.NotNil(t, recovered.RecoveredAt)
	assert.True(t, recovered.RecoveredAt.Equal(baseTime))
}

func TestExpireStale(t *testing.T) {
	svc, repo, node, clk := newService(t)
	ctx := context.Background()
	insertCart(t, repo, node, "t1", "old", baseTime.Add(-31*24*time.Hour))
	insertCart(t, repo, node, "t1", "new", baseTime.Add(-29*24*time.Hour))

	expired, err := svc.ExpireStale(ctx, "t1", 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	clk.Advance(48 * time.Hour)
	expired, err = svc.ExpireStale(ctx, "t1", 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	expired, err = svc.ExpireStale(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Zero(t, expired)
}
