package token

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/internal/config"
	obsmetrics "github.com/smallbiznis/recoverly/internal/observability/metrics"
	"github.com/smallbiznis/recoverly/internal/observability/tracing"
	"github.com/smallbiznis/recoverly/internal/storefront/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Repo    domain.Repository
	Client  domain.Client
	Clock   clock.Clock
	Log     *zap.Logger
	Config  *config.RecoveryConfigHolder `optional:"true"`
	Metrics *obsmetrics.Metrics          `optional:"true"`
}

type Manager struct {
	repo    domain.Repository
	client  domain.Client
	clock   clock.Clock
	log     *zap.Logger
	cfg     *config.RecoveryConfigHolder
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.TokenManager {
	return &Manager{
		repo:    p.Repo,
		client:  p.Client,
		clock:   p.Clock,
		log:     p.Log.Named("storefront.token"),
		cfg:     p.Config,
		metrics: p.Metrics,
	}
}

// GetValidAccessToken returns the stored token, refreshing it first when it expires within the skew.
// A failed refresh never falls back to the stale token.
func (m *Manager) GetValidAccessToken(ctx context.Context, tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", domain.ErrInvalidTenant
	}

	conn, err := m.repo.FindActiveConnection(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", domain.ErrNoConnection
	}

	if conn.TokenExpiresAt == nil {
		return conn.AccessToken, nil
	}

	now := m.clock.Now()
	if conn.TokenExpiresAt.Sub(now) > m.cfg.Get().TokenRefreshSkew {
		return conn.AccessToken, nil
	}

	return m.refresh(ctx, conn, now)
}

func (m *Manager) refresh(ctx context.Context, conn *domain.Connection, now time.Time) (token string, err error) {
	ctx, span := tracing.StartSpan(ctx, "storefront.token.refresh",
		attribute.String("tenant_id", conn.TenantID),
		attribute.String("store_id", conn.StoreID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	log := m.log.With(zap.String("tenant_id", conn.TenantID), zap.String("store_id", conn.StoreID))

	tokens, err := m.client.RefreshAccessToken(ctx, conn.RefreshToken)
	if err != nil {
		log.Warn("storefront.token.refresh_failed", zap.Error(err))
		m.metrics.RecordTokenRefresh(ctx, obsmetrics.OutcomeFailed)
		return "", fmt.Errorf("%w: %v", domain.ErrTokenRefreshFailed, err)
	}
	m.metrics.RecordTokenRefresh(ctx, obsmetrics.OutcomeRefreshed)

	refreshToken := tokens.RefreshToken
	if strings.TrimSpace(refreshToken) == "" {
		refreshToken = conn.RefreshToken
	}
	update := domain.TokenUpdate{
		AccessToken:  tokens.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    tokens.ExpiresAt(now),
		UpdatedAt:    now,
	}
	if err := m.repo.UpdateTokens(ctx, conn.ID, update); err != nil {
		// the refreshed token is still valid for this caller; the next call refreshes again
		log.Error("storefront.token.persist_failed", zap.Error(err))
		return tokens.AccessToken, nil
	}

	log.Info("storefront.token.refreshed")
	return tokens.AccessToken, nil
}
