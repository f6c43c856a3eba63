package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/cart/repository"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/internal/config"
	storefrontdomain "github.com/smallbiznis/recoverly/internal/storefront/domain"
	"github.com/smallbiznis/recoverly/internal/storefront/domain/mock"
	storefrontrepository "github.com/smallbiznis/recoverly/internal/storefront/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type insertFailingRepo struct {
	domain.Repository
}

func (insertFailingRepo) Insert(context.Context, *domain.Cart) error {
	return domain.ErrDuplicateCart
}

type syncFixture struct {
	syncer      domain.Syncer
	carts       domain.Repository
	connections storefrontdomain.Repository
	client      *mock.MockClient
	tokens      *mock.MockTokenManager
}

func newSyncFixture(t *testing.T, carts domain.Repository, cfg config.RecoveryConfig) syncFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	connections := storefrontrepository.NewMemory()
	require.NoError(t, connections.UpsertConnection(context.Background(), &storefrontdomain.Connection{
		ID: 1, TenantID: "t1", StoreID: "s1", AccessToken: "tok", RefreshToken: "ref",
		IsActive: true, CreatedAt: baseTime, UpdatedAt: baseTime,
	}))

	client := mock.NewMockClient(ctrl)
	tokens := mock.NewMockTokenManager(ctrl)

	syncer := NewSyncer(SyncParams{
		Log:         zaptest.NewLogger(t),
		GenID:       node,
		Carts:       carts,
		Connections: connections,
		Tokens:      tokens,
		Client:      client,
		Clock:       clock.NewFakeClock(baseTime),
		Config:      config.NewRecoveryConfigHolderFrom(cfg),
	})
	return syncFixture{syncer: syncer, carts: carts, connections: connections, client: client, tokens: tokens}
}

func orders(from, n int) []storefrontdomain.Order {
	out := make([]storefrontdomain.Order, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, storefrontdomain.Order{
			ID:             storefrontdomain.FlexString(strconv.Itoa(i)),
			StoreSubdomain: "shop",
			Customer:       &storefrontdomain.OrderCustomer{FirstName: "Sara"},
		})
	}
	return out
}

func page(items []storefrontdomain.Order, current, total int) *storefrontdomain.OrderPage {
	return &storefrontdomain.OrderPage{
		Orders:     items,
		Pagination: &storefrontdomain.Pagination{CurrentPage: current, TotalPages: total},
	}
}

func TestSync_SavesAndIsIdempotent(t *testing.T) {
	f := newSyncFixture(t, repository.NewMemory(), config.DefaultRecoveryConfig())
	ctx := context.Background()

	f.tokens.EXPECT().GetValidAccessToken(gomock.Any(), "t1").Return("tok", nil).Times(2)
	f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 1, PageSize).Return(page(orders(1, 3), 1, 1), nil).Times(2)

	result, err := f.syncer.Sync(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{TotalFetched: 3, Saved: 3, PagesFetched: 1}, result)

	result, err = f.syncer.Sync(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{TotalFetched: 3, Skipped: 3, PagesFetched: 1}, result)

	stored, err := f.carts.FindByExternalID(ctx, "t1", "2")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Sara", stored.CustomerName)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.False(t, stored.FirstReminderSent)

	conn, err := f.connections.FindActiveConnection(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, conn.LastSyncAt)
	assert.True(t, conn.LastSyncAt.Equal(baseTime))
}

func TestSync_MixedBatchSavesNewAndSkipsKnown(t *testing.T) {
	f := newSyncFixture(t, repository.NewMemory(), config.DefaultRecoveryConfig())
	ctx := context.Background()

	gomock.InOrder(
		f.tokens.EXPECT().GetValidAccessToken(gomock.Any(), "t1").Return("tok", nil),
		f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 1, PageSize).Return(page(orders(1, 1), 1, 1), nil),
		f.tokens.EXPECT().GetValidAccessToken(gomock.Any(), "t1").Return("tok", nil),
		f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 1, PageSize).Return(page(orders(1, 2), 1, 1), nil),
	)

	_, err := f.syncer.Sync(ctx, "t1")
	require.NoError(t, err)

	result, err := f.syncer.Sync(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalFetched)
	assert.Equal(t, 1, result.Saved)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)

	counts, err := f.carts.CountByStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[domain.StatusPending])

	for _, id := range []string{"1", "2"} {
		stored, err := f.carts.FindByExternalID(ctx, "t1", id)
		require.NoError(t, err)
		assert.NotNil(t, stored, id)
	}
}

func TestSync_PagesUntilShortPage(t *testing.T) {
	f := newSyncFixture(t, repository.NewMemory(), config.DefaultRecoveryConfig())

	f.tokens.EXPECT().GetValidAccessToken(gomock.Any(), "t1").Return("tok", nil)
	gomock.InOrder(
		f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 1, PageSize).Return(page(orders(0, PageSize), 1, 0), nil),
		f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 2, PageSize).Return(page(orders(PageSize, 10), 2, 0), nil),
	)

	result, err := f.syncer.Sync(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.PagesFetched)
	assert.Equal(t, PageSize+10, result.Saved)
	assert.False(t, result.PageCapReached)
}

func TestSync_StopsAtTotalPages(t *testing.T) {
	f := newSyncFixture(t, repository.NewMemory(), config.DefaultRecoveryConfig())

	f.tokens.EXPECT().GetValidAccessToken(gomock.Any(), "t1").Return("tok", nil)
	f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 1, PageSize).Return(page(orders(0, PageSize), 1, 1), nil)

	result, err := f.syncer.Sync(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.PagesFetched)
}

func TestSync_PageCap(t *testing.T) {
	cfg := config.DefaultRecoveryConfig()
	cfg.MaxPages = 2
	f := newSyncFixture(t, repository.NewMemory(), cfg)

	f.tokens.EXPECT().GetValidAccessToken(gomock.Any(), "t1").Return("tok", nil)
	f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 1, PageSize).Return(page(orders(0, PageSize), 1, 10), nil)
	f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 2, PageSize).Return(page(orders(PageSize, PageSize), 2, 10), nil)

	result, err := f.syncer.Sync(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, result.PageCapReached)
	assert.Equal(t, 2, result.PagesFetched)
	assert.Equal(t, 2*PageSize, result.Saved)
}

func TestSync_FirstPageFailureWritesNothing(t *testing.T) {
	carts := repository.NewMemory()
	f := newSyncFixture(t, carts, config.DefaultRecoveryConfig())

	f.tokens.EXPECT().GetValidAccessToken(gomock.Any(), "t1").Return("tok", nil)
	f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 1, PageSize).
		Return(nil, &storefrontdomain.APIError{Operation: "fetch_orders", StatusCode: 500})

	_, err := f.syncer.Sync(context.Background(), "t1")
	require.ErrorIs(t, err, storefrontdomain.ErrFetchFailed)

	counts, err := carts.CountByStatus(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, counts)

	conn, err := f.connections.FindActiveConnection(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, conn.LastSyncAt)
}

func TestSync_LaterPageFailureTruncates(t *testing.T) {
	f := newSyncFixture(t, repository.NewMemory(), config.DefaultRecoveryConfig())

	f.tokens.EXPECT().GetValidAccessToken(gomock.Any(), "t1").Return("tok", nil)
	f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 1, PageSize).Return(page(orders(0, PageSize), 1, 3), nil)
	f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 2, PageSize).Return(nil, errors.New("timeout"))

	result, err := f.syncer.Sync(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Equal(t, 1, result.PagesFetched)
	assert.Equal(t, PageSize, result.Saved)
}

func TestSync_TokenErrorsPropagate(t *testing.T) {
	f := newSyncFixture(t, repository.NewMemory(), config.DefaultRecoveryConfig())

	f.tokens.EXPECT().GetValidAccessToken(gomock.Any(), "t1").Return("", storefrontdomain.ErrNoConnection)

	_, err := f.syncer.Sync(context.Background(), "t1")
	assert.ErrorIs(t, err, storefrontdomain.ErrNoConnection)
}

func TestSync_PerOrderFailuresAreCounted(t *testing.T) {
	f := newSyncFixture(t, insertFailingRepo{Repository: repository.NewMemory()}, config.DefaultRecoveryConfig())

	items := orders(1, 2)
	items = append(items, storefrontdomain.Order{}) // no id
	f.tokens.EXPECT().GetValidAccessToken(gomock.Any(), "t1").Return("tok", nil)
	f.client.EXPECT().FetchPendingOrders(gomock.Any(), "tok", 1, PageSize).Return(page(items, 1, 1), nil)

	result, err := f.syncer.Sync(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalFetched)
	assert.Equal(t, 3, result.Failed)
	assert.Zero(t, result.Saved)
}

func TestSync_InvalidTenant(t *testing.T) {
	f := newSyncFixture(t, repository.NewMemory(), config.DefaultRecoveryConfig())
	_, err := f.syncer.Sync(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)
}
