package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smallbiznis/recoverly/internal/clock"
	obsmetrics "github.com/smallbiznis/recoverly/internal/observability/metrics"
	"github.com/smallbiznis/recoverly/internal/recovery"
	storefrontdomain "github.com/smallbiznis/recoverly/internal/storefront/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const jobRecoverTenants = "recover_tenants"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// TenantRunner performs one sync and dispatch pass for a tenant.
type TenantRunner interface {
	RunTenant(ctx context.Context, tenantID string) (recovery.RunResult, error)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Connections storefrontdomain.Repository
	Runner      TenantRunner
	Clock       clock.Clock
	Config      Config `optional:"true"`
}

type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	connections storefrontdomain.Repository
	runner      TenantRunner
	metrics     *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Connections == nil || p.Runner == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		clock:       p.Clock,
		connections: p.Connections,
		runner:      p.Runner,
		metrics:     obsmetrics.Scheduler(),
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if _, errored := run.counts(); err != nil && errored == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the remaining tenants
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs a single recovery pass over every tenant with an active connection.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobRecoverTenants, s.cfg.MaxConcurrency, s.cfg.JobTimeout, s.RecoverTenantsJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()

	for {
		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler.run_failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RecoverTenantsJob fans tenant runs out with bounded concurrency. A failing tenant never stops the others.
func (s *Scheduler) RecoverTenantsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobRecoverTenants, s.cfg.MaxConcurrency)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	tenantIDs, err := s.connections.ListActiveTenantIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}
	if len(tenantIDs) == 0 {
		s.logger(ctx).Debug("scheduler.tenants.none")
		return nil
	}

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(s.cfg.MaxConcurrency)

	for _, tenantID := range tenantIDs {
		tenantID := tenantID
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := s.recoverTenant(ctx, run, tenantID); err != nil {
				mu.Lock()
				errs = errors.Join(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if errs == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return errs
}

func (s *Scheduler) recoverTenant(ctx context.Context, run *jobRun, tenantID string) error {
	tctx, cancel := context.WithTimeout(ctx, s.cfg.TenantTimeout)
	defer cancel()

	result, err := s.runner.RunTenant(s.withLogContext(tctx, tenantID), tenantID)
	s.recordTenantResult(result)

	switch {
	case err != nil:
		s.metrics.IncTenantRun(obsmetrics.TenantRunFailed)
		s.logSchedulerError(ctx, run, "scheduler.tenant.failed", jobRecoverTenants, tenantID, err,
			zap.String("tenant_run_id", result.RunID),
		)
		return fmt.Errorf("tenant %s: %w", tenantID, err)
	case result.Skipped:
		s.metrics.IncTenantRun(obsmetrics.TenantRunSkipped)
		s.metrics.IncBatchDeferred(jobRecoverTenants, obsmetrics.SchedulerBatchDeferredReasonRunInFlight)
		s.logger(s.withLogContext(ctx, tenantID)).Info("scheduler.tenant.skipped",
			zap.String("reason", obsmetrics.SchedulerBatchDeferredReasonRunInFlight),
		)
		return nil
	default:
		s.metrics.IncTenantRun(obsmetrics.TenantRunCompleted)
		run.AddProcessed(1)
		return nil
	}
}

func (s *Scheduler) recordTenantResult(result recovery.RunResult) {
	if result.Sync != nil {
		s.metrics.AddBatchProcessed(jobRecoverTenants, "carts_saved", result.Sync.Saved)
	}
	if result.Dispatch != nil {
		s.metrics.AddBatchProcessed(jobRecoverTenants, "reminders_sent", result.Dispatch.FirstSent+result.Dispatch.SecondSent)
	}
	s.metrics.AddBatchProcessed(jobRecoverTenants, "carts_expired", int(result.Expired))
}
