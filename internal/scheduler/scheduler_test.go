package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/kigyomail/internal/clock"
	mailqueuedomain "github.com/smallbiznis/kigyomail/internal/mailqueue/domain"
	obsmetrics "github.com/smallbiznis/kigyomail/internal/observability/metrics"
	"github.com/smallbiznis/kigyomail/internal/pipeline"
	settlementdomain "github.com/smallbiznis/kigyomail/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var jst = time.FixedZone("JST", 9*60*60)

type fakePipeline struct {
	mu      sync.Mutex
	fetches int
	locks   int
	settles int
	dates   []time.Time
}

func (f *fakePipeline) FetchCorporations(_ context.Context, date time.Time) (pipeline.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	f.dates = append(f.dates, date)
	return pipeline.Summary{QueuedCount: 2, Inserted: 3}, nil
}

func (f *fakePipeline) LockQueue(context.Context) (mailqueuedomain.LockResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks++
	return mailqueuedomain.LockResult{Locked: 4, Date: "2025-05-13"}, nil
}

func (f *fakePipeline) SettleBilling(context.Context) (settlementdomain.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settles++
	return settlementdomain.Summary{UsersProcessed: 1, ItemsDeducted: 2}, nil
}

func (f *fakePipeline) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches, f.locks, f.settles
}

type fakeLocker struct {
	held     bool
	keys     []string
	ttls     []time.Duration
	released []string
}

func (l *fakeLocker) Enabled() bool { return true }

func (l *fakeLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.keys = append(l.keys, key)
	l.ttls = append(l.ttls, ttl)
	if l.held {
		return "", false, nil
	}
	return "token-" + key, true, nil
}

func (l *fakeLocker) Release(_ context.Context, key, token string) error {
	l.released = append(l.released, key+"="+token)
	return nil
}

func newTestScheduler(t *testing.T, fc *clock.FakeClock, cfg Config, locker JobLocker) (*Scheduler, *fakePipeline) {
	t.Helper()
	work := &fakePipeline{}
	cfg.Location = jst
	if cfg.FetchAt == (TimeOfDay{}) {
		cfg.FetchAt = TimeOfDay{Hour: 9}
		cfg.LockAt = TimeOfDay{Hour: 16, Minute: 30}
		cfg.SettleAt = TimeOfDay{Hour: 23}
	}
	return newScheduler(zap.NewNop(), cfg, fc, work, locker, nil), work
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetJobMetricsForTest()
	m := obsmetrics.JobsWithConfig(obsmetrics.Config{
		ServiceName: "kigyomail",
		Environment: "test",
	})

	s := newScheduler(zap.NewNop(), Config{}, clock.NewFakeClock(time.Time{}), &fakePipeline{}, nil, m)
	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "kigyomail",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "kigyomail_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "kigyomail",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.JobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "kigyomail_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunOnceFiresEachSlotOncePerDay(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 5, 12, 8, 0, 0, 0, jst))
	s, work := newTestScheduler(t, fc, Config{}, nil)
	ctx := context.Background()

	require.NoError(t, s.RunOnce(ctx))
	assertCounts(t, work, 0, 0, 0)

	fc.Set(time.Date(2025, 5, 12, 9, 0, 30, 0, jst))
	require.NoError(t, s.RunOnce(ctx))
	require.NoError(t, s.RunOnce(ctx))
	assertCounts(t, work, 1, 0, 0)

	fc.Set(time.Date(2025, 5, 12, 16, 29, 0, 0, jst))
	require.NoError(t, s.RunOnce(ctx))
	assertCounts(t, work, 1, 0, 0)

	fc.Set(time.Date(2025, 5, 12, 16, 31, 0, 0, jst))
	require.NoError(t, s.RunOnce(ctx))
	assertCounts(t, work, 1, 1, 0)

	fc.Set(time.Date(2025, 5, 12, 23, 5, 0, 0, jst))
	require.NoError(t, s.RunOnce(ctx))
	assertCounts(t, work, 1, 1, 1)

	fc.Set(time.Date(2025, 5, 13, 9, 1, 0, 0, jst))
	require.NoError(t, s.RunOnce(ctx))
	assertCounts(t, work, 2, 1, 1)

	// Scheduled fetches let the pipeline pick today's date.
	for _, d := range work.dates {
		assert.True(t, d.IsZero())
	}
}

func TestRunOnceDoesNotReplayMissedSlots(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 5, 12, 17, 0, 0, 0, jst))
	s, work := newTestScheduler(t, fc, Config{}, nil)

	require.NoError(t, s.RunOnce(context.Background()))
	fc.Advance(30 * time.Minute)
	require.NoError(t, s.RunOnce(context.Background()))
	assertCounts(t, work, 0, 0, 0)

	fc.Set(time.Date(2025, 5, 12, 23, 0, 0, 0, jst))
	require.NoError(t, s.RunOnce(context.Background()))
	assertCounts(t, work, 0, 0, 1)
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 5, 12, 0, 0, 0, 0, jst))
	s, work := newTestScheduler(t, fc, Config{EnabledJobs: []string{"LOCK_QUEUE"}}, nil)

	require.NoError(t, s.RunOnce(context.Background()))
	fc.Set(time.Date(2025, 5, 12, 23, 59, 0, 0, jst))
	require.NoError(t, s.RunOnce(context.Background()))
	assertCounts(t, work, 0, 1, 0)
}

func TestTriggeredRunTakesAndReleasesJobLock(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 5, 12, 12, 0, 0, 0, jst))
	locker := &fakeLocker{}
	s, work := newTestScheduler(t, fc, Config{LockTimeout: 2 * time.Minute}, locker)

	result, err := s.LockQueue(context.Background(), TriggerHTTP)
	require.NoError(t, err)
	assert.EqualValues(t, 4, result.Locked)
	assertCounts(t, work, 0, 1, 0)

	assert.Equal(t, []string{"kigyomail:job:lock_queue"}, locker.keys)
	assert.Equal(t, []time.Duration{2 * time.Minute}, locker.ttls)
	assert.Equal(t, []string{"kigyomail:job:lock_queue=token-kigyomail:job:lock_queue"}, locker.released)
}

func TestHeldLockRejectsTriggerAndSkipsSchedule(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 5, 12, 8, 0, 0, 0, jst))
	locker := &fakeLocker{held: true}
	s, work := newTestScheduler(t, fc, Config{}, locker)

	_, err := s.FetchCorporations(context.Background(), TriggerHTTP, time.Time{})
	if !errors.Is(err, ErrJobAlreadyRunning) {
		t.Fatalf("expected ErrJobAlreadyRunning, got %v", err)
	}

	require.NoError(t, s.RunOnce(context.Background()))
	fc.Set(time.Date(2025, 5, 12, 9, 1, 0, 0, jst))
	require.NoError(t, s.RunOnce(context.Background()))
	assertCounts(t, work, 0, 0, 0)
	assert.Empty(t, locker.released)
}

func TestRunJobByName(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 5, 12, 12, 0, 0, 0, jst))
	s, work := newTestScheduler(t, fc, Config{}, nil)

	out, err := s.RunJob(context.Background(), " Settle_Billing ", TriggerCLI)
	require.NoError(t, err)
	summary, ok := out.(settlementdomain.Summary)
	require.True(t, ok)
	assert.Equal(t, 2, summary.ItemsDeducted)
	assertCounts(t, work, 0, 0, 1)

	if _, err := s.RunJob(context.Background(), "reindex", TriggerCLI); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay(" 16:30 ")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 16, Minute: 30}, got)
	assert.Equal(t, "16:30", got.String())

	for _, raw := range []string{"", "24:00", "9", "09:60", "aa:bb"} {
		if _, err := ParseTimeOfDay(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func assertCounts(t *testing.T, work *fakePipeline, fetches, locks, settles int) {
	t.Helper()
	f, l, s := work.counts()
	if f != fetches || l != locks || s != settles {
		t.Fatalf("expected fetch/lock/settle %d/%d/%d, got %d/%d/%d", fetches, locks, settles, f, l, s)
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetJobMetricsForTest()
	}
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
