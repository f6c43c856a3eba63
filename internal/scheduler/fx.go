package scheduler

import (
	"context"

	"github.com/smallbiznis/recoverly/internal/config"
	"github.com/smallbiznis/recoverly/internal/recovery"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(func(r *recovery.Runner) TenantRunner { return r }),
	fx.Provide(New),
	fx.Invoke(Start),
)

// Start runs the recovery loop for the life of the app when the scheduler is enabled.
// Stop cancels the loop and waits for the in-flight pass, bounded by the fx stop timeout.
func Start(lc fx.Lifecycle, cfg config.Config, sched *Scheduler, log *zap.Logger) {
	if !cfg.Scheduler.Enabled {
		log.Info("scheduler.disabled")
		return
	}

	var (
		cancel context.CancelFunc
		done   = make(chan struct{})
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			log.Info("scheduler.started",
				zap.Duration("run_interval", sched.cfg.RunInterval),
				zap.Int("max_concurrency", sched.cfg.MaxConcurrency),
			)
			go func() {
				defer close(done)
				sched.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				log.Info("scheduler.stopped")
			case <-ctx.Done():
				log.Warn("scheduler.stop_timeout", zap.Error(ctx.Err()))
			}
			return nil
		},
	})
}
