package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/internal/config"
	obsmetrics "github.com/smallbiznis/recoverly/internal/observability/metrics"
	"github.com/smallbiznis/recoverly/internal/recovery"
	reminderdomain "github.com/smallbiznis/recoverly/internal/reminder/domain"
	storefrontdomain "github.com/smallbiznis/recoverly/internal/storefront/domain"
	storefrontrepo "github.com/smallbiznis/recoverly/internal/storefront/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"
)

type stubRunner struct {
	mu       sync.Mutex
	calls    []string
	results  map[string]recovery.RunResult
	errs     map[string]error
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (r *stubRunner) RunTenant(ctx context.Context, tenantID string) (recovery.RunResult, error) {
	current := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if current <= seen || r.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.calls = append(r.calls, tenantID)
	r.mu.Unlock()

	result, ok := r.results[tenantID]
	if !ok {
		result = recovery.RunResult{TenantID: tenantID, RunID: "run-" + tenantID}
	}
	return result, r.errs[tenantID]
}

type schedulerHarness struct {
	sched    *Scheduler
	runner   *stubRunner
	registry *prometheus.Registry
}

func newSchedulerHarness(t *testing.T, cfg Config, tenants ...string) *schedulerHarness {
	t.Helper()

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := storefrontrepo.NewMemory()
	for i, tenantID := range tenants {
		require.NoError(t, repo.UpsertConnection(context.Background(), &storefrontdomain.Connection{
			ID:           node.Generate(),
			TenantID:     tenantID,
			StoreID:      "store-" + tenantID,
			AccessToken:  "access",
			RefreshToken: "refresh",
			IsActive:     true,
			CreatedAt:    clk.Now().Add(time.Duration(i) * time.Second),
			UpdatedAt:    clk.Now(),
		}))
	}

	runner := &stubRunner{
		results: map[string]recovery.RunResult{},
		errs:    map[string]error{},
	}
	sched, err := New(Params{
		Log:         zaptest.NewLogger(t),
		Connections: repo,
		Runner:      runner,
		Clock:       clk,
		Config:      cfg,
	})
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	sched.metrics = obsmetrics.NewSchedulerMetricsForTest(registry)

	return &schedulerHarness{sched: sched, runner: runner, registry: registry}
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zaptest.NewLogger(t)})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProvideConfigAppliesDefaults(t *testing.T) {
	cfg := ProvideConfig(config.Config{Scheduler: config.SchedulerConfig{RunInterval: time.Minute}})
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, time.Minute, cfg.JobTimeout)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.TenantTimeout)
}

func TestRunOnceRunsEveryActiveTenant(t *testing.T) {
	h := newSchedulerHarness(t, Config{}, "t1", "t2", "t3")
	h.runner.results["t1"] = recovery.RunResult{
		TenantID: "t1",
		Sync:     &cartdomain.SyncResult{Saved: 4},
		Dispatch: &reminderdomain.DispatchResult{FirstSent: 2, SecondSent: 1},
		Expired:  1,
	}

	require.NoError(t, h.sched.RunOnce(context.Background()))

	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, h.runner.calls)
	assert.Equal(t, float64(3), getCounterValue(t, h.registry, "recoverly_scheduler_tenant_runs_total", withBase(map[string]string{
		"outcome": obsmetrics.TenantRunCompleted,
	})))
	assert.Equal(t, float64(4), getCounterValue(t, h.registry, "recoverly_scheduler_batch_processed_total", withBase(map[string]string{
		"job":      jobRecoverTenants,
		"resource": "carts_saved",
	})))
	assert.Equal(t, float64(3), getCounterValue(t, h.registry, "recoverly_scheduler_batch_processed_total", withBase(map[string]string{
		"job":      jobRecoverTenants,
		"resource": "reminders_sent",
	})))
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "recoverly_scheduler_job_runs_total", withBase(map[string]string{
		"job": jobRecoverTenants,
	})))
}

func TestRunOnceIsolatesTenantFailures(t *testing.T) {
	h := newSchedulerHarness(t, Config{}, "t1", "t2", "t3")
	h.runner.errs["t2"] = storefrontdomain.ErrNoConnection

	err := h.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, storefrontdomain.ErrNoConnection)
	assert.Contains(t, err.Error(), "tenant t2")

	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, h.runner.calls)
	assert.Equal(t, float64(2), getCounterValue(t, h.registry, "recoverly_scheduler_tenant_runs_total", withBase(map[string]string{
		"outcome": obsmetrics.TenantRunCompleted,
	})))
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "recoverly_scheduler_tenant_runs_total", withBase(map[string]string{
		"outcome": obsmetrics.TenantRunFailed,
	})))
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "recoverly_scheduler_job_errors_total", withBase(map[string]string{
		"job":    jobRecoverTenants,
		"reason": obsmetrics.SchedulerJobReasonNoConnection,
	})))
}

func TestRunOnceCountsSkippedTenantsAsDeferred(t *testing.T) {
	h := newSchedulerHarness(t, Config{}, "t1", "t2")
	h.runner.results["t2"] = recovery.RunResult{TenantID: "t2", Skipped: true}

	require.NoError(t, h.sched.RunOnce(context.Background()))

	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "recoverly_scheduler_tenant_runs_total", withBase(map[string]string{
		"outcome": obsmetrics.TenantRunSkipped,
	})))
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "recoverly_scheduler_batch_deferred_total", withBase(map[string]string{
		"job":    jobRecoverTenants,
		"reason": obsmetrics.SchedulerBatchDeferredReasonRunInFlight,
	})))
}

func TestRecoverTenantsJobBoundsConcurrency(t *testing.T) {
	tenants := []string{"t1", "t2", "t3", "t4", "t5", "t6"}
	h := newSchedulerHarness(t, Config{MaxConcurrency: 2}, tenants...)
	h.runner.delay = 10 * time.Millisecond

	require.NoError(t, h.sched.RecoverTenantsJob(context.Background()))

	assert.Len(t, h.runner.calls, len(tenants))
	assert.LessOrEqual(t, h.runner.maxSeen.Load(), int32(2))
}

func TestRecoverTenantsJobWithoutTenants(t *testing.T) {
	h := newSchedulerHarness(t, Config{})

	require.NoError(t, h.sched.RecoverTenantsJob(context.Background()))
	assert.Empty(t, h.runner.calls)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	h := newSchedulerHarness(t, Config{})

	err := h.sched.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "recoverly_scheduler_job_timeouts_total", withBase(map[string]string{
		"job": "timeout_job",
	})))
	assert.Equal(t, float64(1), getCounterValue(t, h.registry, "recoverly_scheduler_job_errors_total", withBase(map[string]string{
		"job":    "timeout_job",
		"reason": obsmetrics.SchedulerJobReasonDeadlineExceeded,
	})))
}

func TestRunJobWrapsHardErrors(t *testing.T) {
	h := newSchedulerHarness(t, Config{})
	boom := errors.New("boom")

	err := h.sched.runJob(context.Background(), "hard_job", 0, time.Second, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "hard_job: boom", err.Error())
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	h := newSchedulerHarness(t, Config{RunInterval: time.Hour}, "t1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.sched.RunForever(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		h.runner.mu.Lock()
		defer h.runner.mu.Unlock()
		return len(h.runner.calls) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever did not stop after cancel")
	}
}

func TestStartRunsLoopUntilStop(t *testing.T) {
	h := newSchedulerHarness(t, Config{RunInterval: time.Hour}, "t1")
	lc := fxtest.NewLifecycle(t)
	Start(lc, config.Config{Scheduler: config.SchedulerConfig{Enabled: true}}, h.sched, zaptest.NewLogger(t))

	lc.RequireStart()
	require.Eventually(t, func() bool {
		h.runner.mu.Lock()
		defer h.runner.mu.Unlock()
		return len(h.runner.calls) == 1
	}, time.Second, 5*time.Millisecond)
	lc.RequireStop()
}

func TestStartDisabledRegistersNothing(t *testing.T) {
	h := newSchedulerHarness(t, Config{RunInterval: time.Hour}, "t1")
	lc := fxtest.NewLifecycle(t)
	Start(lc, config.Config{}, h.sched, zaptest.NewLogger(t))

	lc.RequireStart()
	lc.RequireStop()
	assert.Empty(t, h.runner.calls)
}

func withBase(labels map[string]string) map[string]string {
	labels["service"] = "recoverly"
	labels["env"] = "test"
	return labels
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
