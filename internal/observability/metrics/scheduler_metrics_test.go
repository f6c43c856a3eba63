package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	reminderdomain "github.com/smallbiznis/recoverly/internal/reminder/domain"
	storefrontdomain "github.com/smallbiznis/recoverly/internal/storefront/domain"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "no_connection_wrapped",
			err:  fmt.Errorf("tenant t1: %w", storefrontdomain.ErrNoConnection),
			want: SchedulerJobReasonNoConnection,
		},
		{
			name: "token_refresh",
			err:  storefrontdomain.ErrTokenRefreshFailed,
			want: SchedulerJobReasonTokenRefresh,
		},
		{
			name: "fetch",
			err:  storefrontdomain.ErrFetchFailed,
			want: SchedulerJobReasonFetch,
		},
		{
			name: "missing_template",
			err:  reminderdomain.ErrMissingTemplate,
			want: SchedulerJobReasonMissingTemplate,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "recoverly",
		Environment: "test",
	})

	metrics.AddBatchProcessed("recover_carts", "reminders", 3)
	metrics.AddBatchProcessed("recover_carts", "reminders", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("recover_carts", "reminders"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestIncJobError_UsesReason(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{})

	metrics.IncJobError("recover_carts", storefrontdomain.ErrNoConnection)
	metrics.IncJobError("recover_carts", nil)

	got := testutil.ToFloat64(metrics.jobErrors.WithLabelValues("recover_carts", SchedulerJobReasonNoConnection))
	if got != 1 {
		t.Fatalf("expected one classified error, got %v", got)
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	if IsSchedulerErrorRetryable(reminderdomain.ErrMissingTemplate) {
		t.Fatal("missing template needs operator action")
	}
	if !IsSchedulerErrorRetryable(storefrontdomain.ErrFetchFailed) {
		t.Fatal("fetch failures are transient")
	}
}

func TestNilSchedulerMetricsAreSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("x")
	m.IncTenantRun(TenantRunSkipped)
	m.ObserveRunLoopLag(-1)
}
