// Package recovery runs the per-tenant pipeline: sync, dispatch, then stale-cart expiry.
package recovery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/internal/config"
	obscontext "github.com/smallbiznis/recoverly/internal/observability/context"
	obslogger "github.com/smallbiznis/recoverly/internal/observability/logger"
	"github.com/smallbiznis/recoverly/internal/observability/tracing"
	"github.com/smallbiznis/recoverly/internal/ratelimit"
	reminderdomain "github.com/smallbiznis/recoverly/internal/reminder/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultGuardTTL = 10 * time.Minute
	guardKeyPrefix  = "recoverly:run:"
)

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrRunInFlight   = errors.New("run_in_flight")
)

type RunResult struct {
	RunID    string                         `json:"run_id"`
	TenantID string                         `json:"tenant_id"`
	Skipped  bool                           `json:"skipped"`
	Sync     *cartdomain.SyncResult         `json:"sync,omitempty"`
	Dispatch *reminderdomain.DispatchResult `json:"dispatch,omitempty"`
	Expired  int64                          `json:"expired"`
}

type Params struct {
	fx.In

	Log        *zap.Logger
	AppConfig  config.Config
	Syncer     cartdomain.Syncer
	Dispatcher reminderdomain.Dispatcher
	Carts      cartdomain.Service
	Locker     ratelimit.Locker
	Clock      clock.Clock
	Config     *config.RecoveryConfigHolder `optional:"true"`
}

type Runner struct {
	log        *zap.Logger
	syncer     cartdomain.Syncer
	dispatcher reminderdomain.Dispatcher
	carts      cartdomain.Service
	locker     ratelimit.Locker
	clock      clock.Clock
	cfg        *config.RecoveryConfigHolder
	guardTTL   time.Duration
}

func New(p Params) *Runner {
	ttl := p.AppConfig.Scheduler.RunGuardTTL
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &Runner{
		log:        p.Log.Named("recovery"),
		syncer:     p.Syncer,
		dispatcher: p.Dispatcher,
		carts:      p.Carts,
		locker:     p.Locker,
		clock:      p.Clock,
		cfg:        p.Config,
		guardTTL:   ttl,
	}
}

// SyncTenant runs only the storefront sync. It fails with ErrRunInFlight while another run holds the tenant.
func (r *Runner) SyncTenant(ctx context.Context, tenantID string) (cartdomain.SyncResult, error) {
	var result cartdomain.SyncResult
	err := r.guarded(ctx, tenantID, func(ctx context.Context) error {
		var err error
		result, err = r.syncer.Sync(ctx, tenantID)
		return err
	})
	return result, err
}

// DispatchTenant runs only reminder dispatch. It fails with ErrRunInFlight while another run holds the tenant.
func (r *Runner) DispatchTenant(ctx context.Context, tenantID string) (reminderdomain.DispatchResult, error) {
	var result reminderdomain.DispatchResult
	err := r.guarded(ctx, tenantID, func(ctx context.Context) error {
		var err error
		result, err = r.dispatcher.Dispatch(ctx, tenantID, r.clock.Now())
		return err
	})
	return result, err
}

// RunTenant performs one full pass for the tenant. A tenant whose previous run is still in flight is
// reported as skipped. A failed sync does not stop dispatch of carts that are already stored.
func (r *Runner) RunTenant(ctx context.Context, tenantID string) (RunResult, error) {
	result := RunResult{TenantID: strings.TrimSpace(tenantID)}
	err := r.guarded(ctx, tenantID, func(ctx context.Context) error {
		result.RunID = obscontext.RunIDFromContext(ctx)
		log := obslogger.WithContext(ctx, r.log)

		var errs error
		syncResult, err := r.syncer.Sync(ctx, result.TenantID)
		if err != nil {
			log.Warn("recovery.sync_failed", zap.Error(err))
			errs = errors.Join(errs, err)
		} else {
			result.Sync = &syncResult
		}

		dispatchResult, err := r.dispatcher.Dispatch(ctx, result.TenantID, r.clock.Now())
		if err != nil {
			log.Warn("recovery.dispatch_failed", zap.Error(err))
			errs = errors.Join(errs, err)
		} else {
			result.Dispatch = &dispatchResult
		}

		if days := r.cfg.Get().CartExpiryDays; days > 0 && ctx.Err() == nil {
			expired, err := r.carts.ExpireStale(ctx, result.TenantID, time.Duration(days)*24*time.Hour)
			if err != nil {
				log.Warn("recovery.expire_failed", zap.Error(err))
				errs = errors.Join(errs, err)
			}
			result.Expired = expired
		}
		return errs
	})
	if errors.Is(err, ErrRunInFlight) {
		result.Skipped = true
		return result, nil
	}
	return result, err
}

func (r *Runner) guarded(ctx context.Context, tenantID string, fn func(ctx context.Context) error) (err error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ErrInvalidTenant
	}

	runID := ulid.Make().String()
	ctx = obscontext.WithRunID(ctx, runID)
	ctx = obscontext.WithTenantID(ctx, tenantID)
	ctx, span := tracing.StartSpan(ctx, "recovery.run",
		attribute.String("tenant_id", tenantID),
		attribute.String("run_id", runID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	key := guardKeyPrefix + tenantID
	token, ok, lockErr := r.locker.TryLock(ctx, key, r.guardTTL)
	switch {
	case lockErr != nil:
		// advisory: proceed unguarded when the lock backend is down
		r.log.Warn("recovery.guard_unavailable", zap.String("tenant_id", tenantID), zap.Error(lockErr))
	case !ok:
		r.log.Info("recovery.run_in_flight", zap.String("tenant_id", tenantID))
		return ErrRunInFlight
	default:
		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				r.log.Warn("recovery.guard_release_failed", zap.String("tenant_id", tenantID), zap.Error(err))
			}
		}()
	}

	return fn(ctx)
}
