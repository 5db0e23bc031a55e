package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
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
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  fmt.Errorf("mark overdue: %w", &pgconn.PgError{Code: "40001"}),
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
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "invoicekits",
		Environment: "test",
	})

	metrics.AddBatchProcessed("late_fees", "invoices", 3)
	metrics.AddBatchProcessed("late_fees", "invoices", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("late_fees", "invoices"))
	assert.Equal(t, float64(3), got)
}

func TestIncJobError_UsesReasonLabel(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{})

	metrics.IncJobError("mark_overdue", context.DeadlineExceeded)

	got := testutil.ToFloat64(metrics.jobErrors.WithLabelValues("mark_overdue", SchedulerJobReasonDeadlineExceeded))
	assert.Equal(t, float64(1), got)
}
