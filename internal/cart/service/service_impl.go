package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	log   *zap.Logger
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("cart.service"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context, tenantID string, req domain.ListCartRequest) (domain.ListCartResponse, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.ListCartResponse{}, domain.ErrInvalidTenant
	}

	filter := domain.ListCartFilter{}
	if raw := strings.ToLower(strings.TrimSpace(req.Status)); raw != "" {
		status := domain.Status(raw)
		if status != domain.StatusPending && !status.Terminal() {
			return domain.ListCartResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}

	pageToken := strings.TrimSpace(req.PageToken)
	if pageToken != "" {
		if _, err := pagination.DecodeCursor(pageToken); err != nil {
			return domain.ListCartResponse{}, domain.ErrInvalidPageToken
		}
	}

	page := pagination.Pagination{PageToken: pageToken, PageSize: int(req.PageSize)}
	limit := page.Limit()

	items, err := s.repo.List(ctx, tenantID, filter, page)
	if err != nil {
		return domain.ListCartResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(cart *domain.Cart) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        cart.ID.String(),
			CreatedAt: cart.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	carts := make([]domain.Cart, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		carts = append(carts, *item)
	}

	return domain.ListCartResponse{PageInfo: pageInfo, Carts: carts}, nil
}

func (s *Service) GetByID(ctx context.Context, tenantID, id string) (domain.Cart, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.Cart{}, domain.ErrInvalidTenant
	}
	cartID, err := parseID(id)
	if err != nil {
		return domain.Cart{}, err
	}

	item, err := s.repo.FindByID(ctx, tenantID, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	if item == nil {
		return domain.Cart{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) Stats(ctx context.Context, tenantID string) (domain.Stats, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.Stats{}, domain.ErrInvalidTenant
	}

	counts, err := s.repo.CountByStatus(ctx, tenantID)
	if err != nil {
		return domain.Stats{}, err
	}
	stats := domain.Stats{
		Pending:   counts[domain.StatusPending],
		Recovered: counts[domain.StatusRecovered],
		Expired:   counts[domain.StatusExpired],
	}
	stats.Total = stats.Pending + stats.Recovered + stats.Expired
	return stats, nil
}

// Resolve moves a pending cart to a terminal status. It reports false when the cart is unknown
// or already terminal.
func (s *Service) Resolve(ctx context.Context, tenantID, externalID string, to domain.Status) (bool, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return false, domain.ErrInvalidTenant
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return false, domain.ErrMissingExternalID
	}
	if !to.Terminal() {
		return false, domain.ErrInvalidStatus
	}

	changed, err := s.repo.Transition(ctx, tenantID, externalID, to, s.clock.Now())
	if err != nil {
		return false, err
	}
	if changed {
		s.log.Info("cart.resolved",
			zap.String("tenant_id", tenantID),
			zap.String("external_cart_id", externalID),
			zap.String("status", string(to)),
		)
	}
	return changed, nil
}

func (s *Service) ExpireStale(ctx context.Context, tenantID string, olderThan time.Duration) (int64, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return 0, domain.ErrInvalidTenant
	}
	if olderThan <= 0 {
		return 0, nil
	}

	now := s.clock.Now()
	expired, err := s.repo.ExpireStale(ctx, tenantID, now.Add(-olderThan), now)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Info("cart.expired_stale", zap.String("tenant_id", tenantID), zap.Int64("count", expired))
	}
	return expired, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
