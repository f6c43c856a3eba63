package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/cart/ingest"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/internal/config"
	obsmetrics "github.com/smallbiznis/recoverly/internal/observability/metrics"
	"github.com/smallbiznis/recoverly/internal/observability/tracing"
	storefrontdomain "github.com/smallbiznis/recoverly/internal/storefront/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// PageSize is fixed by the storefront listing endpoint.
const PageSize = 50

type SyncParams struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Carts       domain.Repository
	Connections storefrontdomain.Repository
	Tokens      storefrontdomain.TokenManager
	Client      storefrontdomain.Client
	Clock       clock.Clock
	Config      *config.RecoveryConfigHolder `optional:"true"`
	Metrics     *obsmetrics.Metrics          `optional:"true"`
}

type Syncer struct {
	log         *zap.Logger
	genID       *snowflake.Node
	carts       domain.Repository
	connections storefrontdomain.Repository
	tokens      storefrontdomain.TokenManager
	client      storefrontdomain.Client
	clock       clock.Clock
	cfg         *config.RecoveryConfigHolder
	metrics     *obsmetrics.Metrics
}

func NewSyncer(p SyncParams) domain.Syncer {
	return &Syncer{
		log:         p.Log.Named("cart.sync"),
		genID:       p.GenID,
		carts:       p.Carts,
		connections: p.Connections,
		tokens:      p.Tokens,
		client:      p.Client,
		clock:       p.Clock,
		cfg:         p.Config,
		metrics:     p.Metrics,
	}
}

// Sync pulls pending orders from the storefront and stores the ones not seen before.
// Every page is fetched before the first write, so a failing first page leaves the store untouched.
func (s *Syncer) Sync(ctx context.Context, tenantID string) (result domain.SyncResult, err error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.SyncResult{}, domain.ErrInvalidTenant
	}

	ctx, span := tracing.StartSpan(ctx, "cart.sync", attribute.String("tenant_id", tenantID))
	defer func() { tracing.EndSpan(span, err) }()

	accessToken, err := s.tokens.GetValidAccessToken(ctx, tenantID)
	if err != nil {
		return domain.SyncResult{}, err
	}

	cfg := s.cfg.Get()
	orders, err := s.fetchAll(ctx, tenantID, accessToken, cfg.MaxPages, &result)
	if err != nil {
		return domain.SyncResult{}, err
	}
	result.TotalFetched = len(orders)

	now := s.clock.Now()
	s.recordLastSync(ctx, tenantID, now)

	normalizer := ingest.Normalizer{
		Placeholder:    cfg.CustomerPlaceholder,
		CartURLPattern: cfg.CartURLPattern,
	}
	for _, order := range orders {
		switch s.persist(ctx, tenantID, normalizer, order) {
		case obsmetrics.OutcomeSaved:
			result.Saved++
		case obsmetrics.OutcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}

	s.metrics.RecordCartsIngested(ctx, obsmetrics.OutcomeSaved, result.Saved)
	s.metrics.RecordCartsIngested(ctx, obsmetrics.OutcomeSkipped, result.Skipped)
	s.metrics.RecordCartsIngested(ctx, obsmetrics.OutcomeFailed, result.Failed)

	span.SetAttributes(
		attribute.Int("total_fetched", result.TotalFetched),
		attribute.Int("saved", result.Saved),
		attribute.Bool("truncated", result.Truncated),
	)
	s.log.Info("cart.sync.finish",
		zap.String("tenant_id", tenantID),
		zap.Int("total_fetched", result.TotalFetched),
		zap.Int("saved", result.Saved),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int("pages_fetched", result.PagesFetched),
		zap.Bool("truncated", result.Truncated),
		zap.Bool("page_cap_reached", result.PageCapReached),
	)
	return result, nil
}

func (s *Syncer) fetchAll(ctx context.Context, tenantID, accessToken string, maxPages int, result *domain.SyncResult) ([]storefrontdomain.Order, error) {
	if maxPages < 1 {
		maxPages = 1
	}

	var orders []storefrontdomain.Order
	for page := 1; page <= maxPages; page++ {
		resp, err := s.client.FetchPendingOrders(ctx, accessToken, page, PageSize)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("%w: %v", storefrontdomain.ErrFetchFailed, err)
			}
			s.log.Warn("cart.sync.page_failed",
				zap.String("tenant_id", tenantID),
				zap.Int("page", page),
				zap.Error(err),
			)
			result.Truncated = true
			break
		}
		result.PagesFetched++

		orders = append(orders, resp.Orders...)
		if len(resp.Orders) < PageSize || !resp.Pagination.HasMore() {
			break
		}
		if page == maxPages {
			result.PageCapReached = true
			s.log.Warn("cart.sync.page_cap_reached",
				zap.String("tenant_id", tenantID),
				zap.Int("max_pages", maxPages),
			)
		}
	}
	return orders, nil
}

func (s *Syncer) recordLastSync(ctx context.Context, tenantID string, now time.Time) {
	conn, err := s.connections.FindActiveConnection(ctx, tenantID)
	if err == nil && conn != nil {
		err = s.connections.UpdateLastSync(ctx, conn.ID, now)
	}
	if err != nil {
		s.log.Error("cart.sync.last_sync_failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

func (s *Syncer) persist(ctx context.Context, tenantID string, normalizer ingest.Normalizer, order storefrontdomain.Order) string {
	draft, err := normalizer.Normalize(tenantID, order)
	if err != nil {
		s.log.Warn("cart.sync.normalize_failed",
			zap.String("tenant_id", tenantID),
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return obsmetrics.OutcomeFailed
	}

	existing, err := s.carts.FindByExternalID(ctx, tenantID, draft.ExternalCartID)
	if err != nil {
		s.logPersistFailed(tenantID, draft.ExternalCartID, err)
		return obsmetrics.OutcomeFailed
	}
	if existing != nil {
		return obsmetrics.OutcomeSkipped
	}

	cart := domain.NewCart(s.genID.Generate(), draft, s.clock.Now())
	if err := s.carts.Insert(ctx, &cart); err != nil {
		s.logPersistFailed(tenantID, draft.ExternalCartID, err)
		return obsmetrics.OutcomeFailed
	}
	return obsmetrics.OutcomeSaved
}

func (s *Syncer) logPersistFailed(tenantID, externalID string, err error) {
	fields := []zap.Field{
		zap.String("tenant_id", tenantID),
		zap.String("external_cart_id", externalID),
		zap.Error(fmt.Errorf("%w: %v", domain.ErrCartPersistFailed, err)),
	}
	if errors.Is(err, domain.ErrDuplicateCart) {
		fields = append(fields, zap.Bool("concurrent_insert", true))
	}
	s.log.Error("cart.sync.persist_failed", fields...)
}
