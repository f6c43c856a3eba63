package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/internal/config"
	obsmetrics "github.com/smallbiznis/recoverly/internal/observability/metrics"
	reminderdomain "github.com/smallbiznis/recoverly/internal/reminder/domain"
	"github.com/smallbiznis/recoverly/internal/storefront/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultStoreName = "Salla Store"

type Params struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	GenID     *snowflake.Node
	Repo      domain.Repository
	Client    domain.Client
	Reminders reminderdomain.Service
	Carts     cartdomain.Service
	Clock     clock.Clock
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	webhookSecret string
	genID         *snowflake.Node
	repo          domain.Repository
	client        domain.Client
	reminders     reminderdomain.Service
	carts         cartdomain.Service
	clock         clock.Clock
	metrics       *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:           p.Log.Named("storefront.provisioning"),
		webhookSecret: strings.TrimSpace(p.Config.Salla.WebhookSecret),
		genID:         p.GenID,
		repo:          p.Repo,
		client:        p.Client,
		reminders:     p.Reminders,
		carts:         p.Carts,
		clock:         p.Clock,
		metrics:       p.Metrics,
	}
}

// HandleWebhook verifies and applies one storefront webhook. With a secret configured every
// payload must carry a valid signature; unsigned payloads are accepted only without a secret.
// Unknown events are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (domain.WebhookResult, error) {
	if s.webhookSecret != "" {
		if !verifySignature(payload, signature, s.webhookSecret) {
			s.log.Warn("storefront.webhook.invalid_signature")
			return domain.WebhookResult{}, domain.ErrInvalidSignature
		}
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.WebhookResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidWebhook, err)
	}
	event.Event = strings.TrimSpace(event.Event)

	var (
		result domain.WebhookResult
		err    error
	)
	switch event.Event {
	case domain.EventStoreAuthorize:
		result, err = s.authorize(ctx, event)
	case domain.EventAppUninstalled:
		result, err = s.uninstall(ctx, event)
	case domain.EventOrderStatusUpdate:
		result, err = s.orderStatus(ctx, event)
	default:
		result = domain.WebhookResult{Action: domain.WebhookActionIgnored}
	}
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, event.Event, "error")
		return domain.WebhookResult{}, err
	}

	result.Event = event.Event
	s.metrics.RecordWebhookEvent(ctx, event.Event, string(result.Action))
	s.log.Info("storefront.webhook.handled",
		zap.String("event", event.Event),
		zap.String("action", string(result.Action)),
		zap.String("store_id", result.StoreID),
		zap.String("tenant_id", result.TenantID),
	)
	return result, nil
}

func (s *Service) authorize(ctx context.Context, event domain.WebhookEvent) (domain.WebhookResult, error) {
	data := event.Data
	storeID := data.StoreID.String()
	accessToken := strings.TrimSpace(data.AccessToken)
	refreshToken := strings.TrimSpace(data.RefreshToken)
	if storeID == "" || accessToken == "" || refreshToken == "" {
		return domain.WebhookResult{}, domain.ErrMissingWebhookData
	}

	existing, err := s.repo.FindConnectionByStoreID(ctx, storeID)
	if err != nil {
		return domain.WebhookResult{}, err
	}

	tenantID, err := s.resolveTenant(ctx, existing, data, accessToken)
	if err != nil {
		return domain.WebhookResult{}, err
	}

	now := s.clock.Now()
	tokens := domain.Tokens{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresIn: data.ExpiresIn}
	storeName := defaultStoreName
	if data.Store != nil && strings.TrimSpace(data.Store.Name) != "" {
		storeName = strings.TrimSpace(data.Store.Name)
	} else if existing != nil && existing.StoreName != "" {
		storeName = existing.StoreName
	}

	conn := domain.Connection{
		ID:             s.genID.Generate(),
		TenantID:       tenantID,
		StoreID:        storeID,
		StoreName:      storeName,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: tokens.ExpiresAt(now),
		IsActive:       true,
		LastSyncAt:     &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.UpsertConnection(ctx, &conn); err != nil {
		return domain.WebhookResult{}, err
	}

	seeded, err := s.reminders.EnsureDefaultTemplates(ctx, tenantID)
	if err != nil {
		s.log.Error("storefront.provisioning.templates_failed", zap.String("tenant_id", tenantID), zap.Error(err))
	} else if seeded {
		s.log.Info("storefront.provisioning.templates_seeded", zap.String("tenant_id", tenantID))
	}

	return domain.WebhookResult{
		Action:   domain.WebhookActionProvisioned,
		TenantID: tenantID,
		StoreID:  storeID,
	}, nil
}

// resolveTenant finds the tenant owning the store: by existing connection, then merchant email,
// otherwise a new tenant is created.
func (s *Service) resolveTenant(ctx context.Context, existing *domain.Connection, data domain.WebhookEventData, accessToken string) (string, error) {
	if existing != nil && existing.TenantID != "" {
		tenant, err := s.repo.FindTenant(ctx, existing.TenantID)
		if err != nil {
			return "", err
		}
		if tenant != nil {
			return tenant.ID, nil
		}
	}

	var email string
	if data.MerchantInfo != nil {
		email = strings.ToLower(strings.TrimSpace(data.MerchantInfo.Email))
	}
	if email != "" {
		tenant, err := s.repo.FindTenantByEmail(ctx, email)
		if err != nil {
			return "", err
		}
		if tenant != nil {
			return tenant.ID, nil
		}
	}

	now := s.clock.Now()
	tenant := domain.Tenant{
		ID:        ulid.Make().String(),
		Name:      s.tenantName(ctx, data, accessToken),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if email != "" {
		tenant.Email = &email
	}
	if err := s.repo.InsertTenant(ctx, &tenant); err != nil {
		if email != "" && errors.Is(err, domain.ErrDuplicateTenant) {
			// a concurrent authorize for the same merchant won
			other, findErr := s.repo.FindTenantByEmail(ctx, email)
			if findErr == nil && other != nil {
				return other.ID, nil
			}
		}
		return "", err
	}

	s.log.Info("storefront.provisioning.tenant_created", zap.String("tenant_id", tenant.ID))
	return tenant.ID, nil
}

func (s *Service) tenantName(ctx context.Context, data domain.WebhookEventData, accessToken string) string {
	if data.Store != nil && strings.TrimSpace(data.Store.Name) != "" {
		return strings.TrimSpace(data.Store.Name)
	}
	if data.MerchantInfo != nil && strings.TrimSpace(data.MerchantInfo.Name) != "" {
		return strings.TrimSpace(data.MerchantInfo.Name)
	}
	info, err := s.client.GetStoreInfo(ctx, accessToken)
	if err != nil {
		s.log.Warn("storefront.provisioning.store_info_failed", zap.Error(err))
		return defaultStoreName
	}
	if info != nil && strings.TrimSpace(info.Name) != "" {
		return strings.TrimSpace(info.Name)
	}
	return defaultStoreName
}

func (s *Service) uninstall(ctx context.Context, event domain.WebhookEvent) (domain.WebhookResult, error) {
	storeID := eventStoreID(event)
	if storeID == "" {
		return domain.WebhookResult{}, domain.ErrMissingWebhookData
	}

	conn, err := s.repo.FindConnectionByStoreID(ctx, storeID)
	if err != nil {
		return domain.WebhookResult{}, err
	}
	if conn == nil {
		return domain.WebhookResult{Action: domain.WebhookActionIgnored, StoreID: storeID}, nil
	}
	if err := s.repo.Deactivate(ctx, conn.ID, s.clock.Now()); err != nil {
		return domain.WebhookResult{}, err
	}
	return domain.WebhookResult{
		Action:   domain.WebhookActionDeactivated,
		TenantID: conn.TenantID,
		StoreID:  storeID,
	}, nil
}

func (s *Service) orderStatus(ctx context.Context, event domain.WebhookEvent) (domain.WebhookResult, error) {
	storeID := eventStoreID(event)
	orderID := event.Data.ID.String()
	if storeID == "" || orderID == "" {
		return domain.WebhookResult{}, domain.ErrMissingWebhookData
	}
	ignored := domain.WebhookResult{Action: domain.WebhookActionIgnored, StoreID: storeID}

	var slug string
	if event.Data.Status != nil {
		slug = strings.ToLower(strings.TrimSpace(event.Data.Status.Slug))
	}
	target, ok := orderOutcome(slug)
	if !ok {
		return ignored, nil
	}

	conn, err := s.repo.FindConnectionByStoreID(ctx, storeID)
	if err != nil {
		return domain.WebhookResult{}, err
	}
	if conn == nil {
		return ignored, nil
	}
	ignored.TenantID = conn.TenantID

	changed, err := s.carts.Resolve(ctx, conn.TenantID, orderID, target)
	if err != nil {
		return domain.WebhookResult{}, err
	}
	if !changed {
		return ignored, nil
	}

	action := domain.WebhookActionRecovered
	if target == cartdomain.StatusExpired {
		action = domain.WebhookActionExpired
	}
	return domain.WebhookResult{Action: action, TenantID: conn.TenantID, StoreID: storeID}, nil
}

// orderOutcome maps an order status slug to the terminal cart status it implies.
// Pending-like or missing statuses leave the cart alone.
func orderOutcome(slug string) (cartdomain.Status, bool) {
	switch slug {
	case "", "pending", "payment_pending":
		return "", false
	case "canceled", "cancelled":
		return cartdomain.StatusExpired, true
	default:
		return cartdomain.StatusRecovered, true
	}
}

func eventStoreID(event domain.WebhookEvent) string {
	if id := event.Data.StoreID.String(); id != "" {
		return id
	}
	return event.Merchant.String()
}

func (s *Service) GetConnectionStatus(ctx context.Context, tenantID string) (domain.ConnectionStatus, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.ConnectionStatus{}, domain.ErrInvalidTenant
	}
	conn, err := s.repo.FindActiveConnection(ctx, tenantID)
	if err != nil {
		return domain.ConnectionStatus{}, err
	}
	if conn == nil {
		return domain.ConnectionStatus{Connected: false}, nil
	}
	return domain.ConnectionStatus{
		Connected:      true,
		StoreID:        conn.StoreID,
		StoreName:      conn.StoreName,
		TokenExpiresAt: conn.TokenExpiresAt,
		LastSyncAt:     conn.LastSyncAt,
	}, nil
}
