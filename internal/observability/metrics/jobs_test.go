package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "wrapped deadline", err: fmt.Errorf("fetch_corporations: %w", context.DeadlineExceeded), want: JobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "pg unique_violation", err: &pgconn.PgError{Code: "23505"}, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassifyJobErrorType(t *testing.T) {
	if got := ClassifyJobErrorType(context.Canceled); got != JobErrorTypeDeadlineExceeded {
		t.Fatalf("expected deadline type, got %q", got)
	}
	if got := ClassifyJobErrorType(&pgconn.PgError{Code: "40001"}); got != JobErrorTypeDB {
		t.Fatalf("expected db type, got %q", got)
	}
	if got := ClassifyJobErrorType(gorm.ErrRecordNotFound); got != JobErrorTypeBusinessRule {
		t.Fatalf("expected business_rule type, got %q", got)
	}
	if IsJobErrorRetryable(errors.New("profile not found")) {
		t.Fatalf("plain errors must not be retryable")
	}
	if !IsJobErrorRetryable(&pgconn.PgError{Code: "55P03"}) {
		t.Fatalf("lock timeouts should be retryable")
	}
}

func TestJobMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newJobMetrics(registry, Config{ServiceName: "kigyomail", Environment: "test"})

	m.IncJobRun("lock_queue")
	m.IncJobRun("lock_queue")
	m.AddProcessed("fetch_corporations", "mail_queue", 3)
	m.AddProcessed("fetch_corporations", "mail_queue", 0)
	m.IncJobError("settle_billing", &pgconn.PgError{Code: "40001"})
	m.IncJobSkipped("settle_billing", JobSkipReasonAlreadyRunning)
	m.ObserveJobDuration("lock_queue", 2*time.Second)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("lock_queue")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.processed.WithLabelValues("fetch_corporations", "mail_queue")); got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("settle_billing", JobReasonSerializationFailure)); got != 1 {
		t.Fatalf("expected 1 serialization error, got %v", got)
	}
	if got := testutil.ToFloat64(m.skipped.WithLabelValues("settle_billing", JobSkipReasonAlreadyRunning)); got != 1 {
		t.Fatalf("expected 1 skipped run, got %v", got)
	}
}

func TestNilJobMetricsIsSafe(t *testing.T) {
	var m *JobMetrics
	m.IncJobRun("x")
	m.IncJobTimeout("x")
	m.IncJobError("x", errors.New("boom"))
	m.AddProcessed("x", "y", 1)
	m.ObserveRunLoopLag(time.Second)
}
