package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	cartrepository "github.com/smallbiznis/recoverly/internal/cart/repository"
	cartservice "github.com/smallbiznis/recoverly/internal/cart/service"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/internal/config"
	reminderdomain "github.com/smallbiznis/recoverly/internal/reminder/domain"
	reminderrepository "github.com/smallbiznis/recoverly/internal/reminder/repository"
	reminderservice "github.com/smallbiznis/recoverly/internal/reminder/service"
	"github.com/smallbiznis/recoverly/internal/storefront/domain"
	"github.com/smallbiznis/recoverly/internal/storefront/domain/mock"
	"github.com/smallbiznis/recoverly/internal/storefront/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       domain.Service
	repo      domain.Repository
	client    *mock.MockClient
	reminders reminderdomain.Service
	carts     cartdomain.Repository
	node      *snowflake.Node
}

func newFixture(t *testing.T, secret string) fixture {
	t.Helper()
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	clk := clock.NewFakeClock(baseTime)

	repo := repository.NewMemory()
	client := mock.NewMockClient(gomock.NewController(t))
	reminders := reminderservice.New(reminderservice.Params{
		Log:    log,
		GenID:  node,
		Repo:   reminderrepository.NewMemory(),
		Clock:  clk,
		Config: config.NewRecoveryConfigHolderFrom(config.DefaultRecoveryConfig()),
	})
	carts := cartrepository.NewMemory()

	svc := New(Params{
		Log:       log,
		Config:    config.Config{Salla: config.SallaConfig{WebhookSecret: secret}},
		GenID:     node,
		Repo:      repo,
		Client:    client,
		Reminders: reminders,
		Carts:     cartservice.New(cartservice.Params{Log: log, Repo: carts, Clock: clk}),
		Clock:     clk,
	})
	return fixture{svc: svc, repo: repo, client: client, reminders: reminders, carts: carts, node: node}
}

func authorizePayload(t *testing.T, storeID any, storeName, email string) []byte {
	t.Helper()
	data := map[string]any{
		"store_id":      storeID,
		"access_token":  "access-1",
		"refresh_token": "refresh-1",
		"expires_in":    3600,
	}
	if storeName != "" {
		data["store"] = map[string]any{"name": storeName}
	}
	if email != "" {
		data["merchant"] = map[string]any{"email": email}
	}
	payload, err := json.Marshal(map[string]any{"event": domain.EventStoreAuthorize, "data": data})
	require.NoError(t, err)
	return payload
}

func TestAuthorize_CreatesTenantConnectionAndTemplates(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	result, err := f.svc.HandleWebhook(ctx, authorizePayload(t, 98765, "Demo Store", "Owner@Example.com"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookActionProvisioned, result.Action)
	assert.Equal(t, "98765", result.StoreID)
	require.Len(t, result.TenantID, 26, "tenant ids are ULIDs")

	tenant, err := f.repo.FindTenant(ctx, result.TenantID)
	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, "Demo Store", tenant.Name)
	require.NotNil(t, tenant.Email)
	assert.Equal(t, "owner@example.com", *tenant.Email)

	conn, err := f.repo.FindActiveConnection(ctx, result.TenantID)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, "access-1", conn.AccessToken)
	require.NotNil(t, conn.TokenExpiresAt)
	assert.True(t, conn.TokenExpiresAt.Equal(baseTime.Add(time.Hour)))
	require.NotNil(t, conn.LastSyncAt)

	settings, err := f.reminders.GetSettings(ctx, result.TenantID)
	require.NoError(t, err)
	assert.NotNil(t, settings.TemplateFirstID)
	assert.NotNil(t, settings.TemplateSecondID)
	assert.False(t, settings.SecondReminderEnabled)
}

func TestAuthorize_ReusesTenant(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	first, err := f.svc.HandleWebhook(ctx, authorizePayload(t, "s1", "Demo", "owner@example.com"), "")
	require.NoError(t, err)

	// reinstall of the same store
	again, err := f.svc.HandleWebhook(ctx, authorizePayload(t, "s1", "Demo", ""), "")
	require.NoError(t, err)
	assert.Equal(t, first.TenantID, again.TenantID)

	// second store of the same merchant
	other, err := f.svc.HandleWebhook(ctx, authorizePayload(t, "s2", "Demo 2", "owner@example.com"), "")
	require.NoError(t, err)
	assert.Equal(t, first.TenantID, other.TenantID)

	templates, err := f.reminders.ListTemplates(ctx, first.TenantID, "")
	require.NoError(t, err)
	assert.Len(t, templates, 2, "defaults are seeded once")

	conn, err := f.repo.FindActiveConnection(ctx, first.TenantID)
	require.NoError(t, err)
	assert.Equal(t, "s2", conn.StoreID, "the newest store replaces the previous one")
}

func TestAuthorize_NameFallbacks(t *testing.T) {
	t.Run("store info", func(t *testing.T) {
		f := newFixture(t, "")
		f.client.EXPECT().GetStoreInfo(gomock.Any(), "access-1").Return(&domain.StoreInfo{Name: "From API"}, nil)

		result, err := f.svc.HandleWebhook(context.Background(), authorizePayload(t, "s1", "", ""), "")
		require.NoError(t, err)
		tenant, err := f.repo.FindTenant(context.Background(), result.TenantID)
		require.NoError(t, err)
		assert.Equal(t, "From API", tenant.Name)
	})

	t.Run("default", func(t *testing.T) {
		f := newFixture(t, "")
		f.client.EXPECT().GetStoreInfo(gomock.Any(), "access-1").Return(nil, errors.New("unauthorized"))

		result, err := f.svc.HandleWebhook(context.Background(), authorizePayload(t, "s1", "", ""), "")
		require.NoError(t, err)
		tenant, err := f.repo.FindTenant(context.Background(), result.TenantID)
		require.NoError(t, err)
		assert.Equal(t, defaultStoreName, tenant.Name)
	})
}

func TestAuthorize_MissingData(t *testing.T) {
	f := newFixture(t, "")
	payload := []byte(`{"event":"app.store.authorize","data":{"store_id":1,"access_token":"a"}}`)

	_, err := f.svc.HandleWebhook(context.Background(), payload, "")
	assert.ErrorIs(t, err, domain.ErrMissingWebhookData)
}

func TestSignature(t *testing.T) {
	f := newFixture(t, "shh")
	payload := authorizePayload(t, "s1", "Demo", "")

	_, err := f.svc.HandleWebhook(context.Background(), payload, "deadbeef")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	result, err := f.svc.HandleWebhook(context.Background(), payload, Sign(payload, "shh"))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookActionProvisioned, result.Action)

	// a configured secret makes the header mandatory
	_, err = f.svc.HandleWebhook(context.Background(), authorizePayload(t, "s2", "Demo", ""), "")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	_, err = f.svc.HandleWebhook(context.Background(), authorizePayload(t, "s2", "Demo", ""), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestUnsignedEventsCannotChangeStateWhenSecretSet(t *testing.T) {
	f := newFixture(t, "shh")
	ctx := context.Background()
	payload := authorizePayload(t, "s1", "Demo", "")
	installed, err := f.svc.HandleWebhook(ctx, payload, Sign(payload, "shh"))
	require.NoError(t, err)

	_, err = f.svc.HandleWebhook(ctx, []byte(`{"event":"app.uninstalled","merchant":"s1"}`), "")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	status, err := f.svc.GetConnectionStatus(ctx, installed.TenantID)
	require.NoError(t, err)
	assert.True(t, status.Connected)
}

func TestUnsignedEventsAcceptedWithoutSecret(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.svc.HandleWebhook(context.Background(), authorizePayload(t, "s1", "Demo", ""), "")
	assert.NoError(t, err)
}

func TestUninstall(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	installed, err := f.svc.HandleWebhook(ctx, authorizePayload(t, "s1", "Demo", ""), "")
	require.NoError(t, err)

	result, err := f.svc.HandleWebhook(ctx, []byte(`{"event":"app.uninstalled","merchant":"s1","data":{}}`), "")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookActionDeactivated, result.Action)

	status, err := f.svc.GetConnectionStatus(ctx, installed.TenantID)
	require.NoError(t, err)
	assert.False(t, status.Connected)

	result, err = f.svc.HandleWebhook(ctx, []byte(`{"event":"app.uninstalled","merchant":"unknown","data":{}}`), "")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookActionIgnored, result.Action)
}

func TestOrderStatusUpdated(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	installed, err := f.svc.HandleWebhook(ctx, authorizePayload(t, "s1", "Demo", ""), "")
	require.NoError(t, err)

	for _, id := range []string{"101", "102", "103"} {
		cart := cartdomain.NewCart(f.node.Generate(), cartdomain.Draft{
			TenantID: installed.TenantID, ExternalCartID: id, CustomerName: "C", Currency: "SAR",
		}, baseTime.Add(-time.Hour))
		require.NoError(t, f.carts.Insert(ctx, &cart))
	}

	event := func(orderID, slug string) []byte {
		return []byte(`{"event":"order.status.updated","merchant":"s1","data":{"id":` + orderID + `,"status":{"slug":"` + slug + `"}}}`)
	}

	result, err := f.svc.HandleWebhook(ctx, event("101", "completed"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookActionRecovered, result.Action)

	result, err = f.svc.HandleWebhook(ctx, event("101", "canceled"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookActionIgnored, result.Action, "transition happens at most once")

	result, err = f.svc.HandleWebhook(ctx, event("102", "cancelled"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookActionExpired, result.Action)

	result, err = f.svc.HandleWebhook(ctx, event("103", "payment_pending"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookActionIgnored, result.Action)

	recovered, err := f.carts.FindByExternalID(ctx, installed.TenantID, "101")
	require.NoError(t, err)
	assert.Equal(t, cartdomain.StatusRecovered, recovered.Status)
	require.NotNil(t, recovered.RecoveredAt)

	pending, err := f.carts.FindByExternalID(ctx, installed.TenantID, "103")
	require.NoError(t, err)
	assert.Equal(t, cartdomain.StatusPending, pending.Status)
}

func TestUnknownEventIgnored(t *testing.T) {
	f := newFixture(t, "")
	result, err := f.svc.HandleWebhook(context.Background(), []byte(`{"event":"product.created","data":{}}`), "")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookActionIgnored, result.Action)
	assert.Equal(t, "product.created", result.Event)

	_, err = f.svc.HandleWebhook(context.Background(), []byte(`not json`), "")
	assert.ErrorIs(t, err, domain.ErrInvalidWebhook)
}

func TestGetConnectionStatus(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	status, err := f.svc.GetConnectionStatus(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, status.Connected)

	installed, err := f.svc.HandleWebhook(ctx, authorizePayload(t, "s1", "Demo", ""), "")
	require.NoError(t, err)
	status, err = f.svc.GetConnectionStatus(ctx, installed.TenantID)
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, "Demo", status.StoreName)

	_, err = f.svc.GetConnectionStatus(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)
}
