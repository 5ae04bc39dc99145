package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/kigyomail/internal/clock"
	mailqueuedomain "github.com/smallbiznis/kigyomail/internal/mailqueue/domain"
	obsmetrics "github.com/smallbiznis/kigyomail/internal/observability/metrics"
	"github.com/smallbiznis/kigyomail/internal/pipeline"
	"github.com/smallbiznis/kigyomail/internal/ratelimit"
	settlementdomain "github.com/smallbiznis/kigyomail/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig     = errors.New("invalid_scheduler_config")
	ErrUnknownJob        = errors.New("unknown_job")
	ErrJobAlreadyRunning = errors.New("job_already_running")
)

const (
	TriggerSchedule = "schedule"
	TriggerHTTP     = "http"
	TriggerCLI      = "cli"
)

// Pipeline is the work behind the three daily jobs.
type Pipeline interface {
	FetchCorporations(ctx context.Context, date time.Time) (pipeline.Summary, error)
	LockQueue(ctx context.Context) (mailqueuedomain.LockResult, error)
	SettleBilling(ctx context.Context) (settlementdomain.Summary, error)
}

// JobLocker guards a job against concurrent runs across processes.
type JobLocker interface {
	Enabled() bool
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Pipeline   *pipeline.Service
	Locker     *ratelimit.Locker      `optional:"true"`
	JobMetrics *obsmetrics.JobMetrics `optional:"true"`
	Clock      clock.Clock            `optional:"true"`
	Config     Config                 `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	pipeline Pipeline
	locker   JobLocker
	metrics  *obsmetrics.JobMetrics

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Pipeline == nil {
		return nil, ErrInvalidConfig
	}
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	var locker JobLocker
	if p.Locker != nil {
		locker = p.Locker
	}
	m := p.JobMetrics
	if m == nil {
		m = obsmetrics.Jobs()
	}
	return newScheduler(p.Log, p.Config, c, p.Pipeline, locker, m), nil
}

func newScheduler(log *zap.Logger, cfg Config, c clock.Clock, work Pipeline, locker JobLocker, m *obsmetrics.JobMetrics) *Scheduler {
	return &Scheduler{
		log:      log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      cfg.withDefaults(),
		clock:    c,
		pipeline: work,
		locker:   locker,
		metrics:  m,
		lastRun:  make(map[string]time.Time),
	}
}

// execute runs fn under the job's timeout, single-flight lock, metrics and
// start/finish logging. Errors come back wrapped with the job name.
func (s *Scheduler) execute(parent context.Context, name, trigger string, timeout time.Duration, fn func(ctx context.Context, run *jobRun) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	release, err := s.acquire(ctx, name, timeout)
	if err != nil {
		if errors.Is(err, ErrJobAlreadyRunning) {
			s.metrics.IncJobSkipped(name, obsmetrics.JobSkipReasonAlreadyRunning)
			s.log.Info("job skipped, another run holds the lock", zap.String("job", name))
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	defer release()

	ctx, run, owner := s.ensureJobRun(ctx, name, trigger)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err = fn(ctx, run)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil {
		run.IncError()
		s.logJobError(ctx, run, err)
	}
	if owner {
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	if s.locker == nil || !s.locker.Enabled() {
		return func() {}, nil
	}
	key := ratelimit.JobLockKey(name)
	token, ok, err := s.locker.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire job lock: %w", err)
	}
	if !ok {
		return nil, ErrJobAlreadyRunning
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("failed to release job lock", zap.String("job", name), zap.Error(err))
		}
	}, nil
}

// runJob is the scheduled variant: a deadline is a soft timeout that is
// logged and counted, and a held lock is not an error.
func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context, run *jobRun) error) error {
	err := s.execute(parent, name, TriggerSchedule, timeout, fn)
	if err == nil || errors.Is(err, ErrJobAlreadyRunning) {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return err
}

func (s *Scheduler) FetchCorporations(ctx context.Context, trigger string, date time.Time) (pipeline.Summary, error) {
	var summary pipeline.Summary
	err := s.execute(ctx, JobFetchCorporations, trigger, s.cfg.FetchTimeout, func(ctx context.Context, run *jobRun) error {
		var err error
		summary, err = s.fetchCorporations(ctx, run, date)
		return err
	})
	return summary, err
}

func (s *Scheduler) LockQueue(ctx context.Context, trigger string) (mailqueuedomain.LockResult, error) {
	var result mailqueuedomain.LockResult
	err := s.execute(ctx, JobLockQueue, trigger, s.cfg.LockTimeout, func(ctx context.Context, run *jobRun) error {
		var err error
		result, err = s.lockQueue(ctx, run)
		return err
	})
	return result, err
}

func (s *Scheduler) SettleBilling(ctx context.Context, trigger string) (settlementdomain.Summary, error) {
	var summary settlementdomain.Summary
	err := s.execute(ctx, JobSettleBilling, trigger, s.cfg.SettleTimeout, func(ctx context.Context, run *jobRun) error {
		var err error
		summary, err = s.settleBilling(ctx, run)
		return err
	})
	return summary, err
}

// RunJob runs a job by name immediately and returns its result.
func (s *Scheduler) RunJob(ctx context.Context, name, trigger string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case JobFetchCorporations:
		return s.FetchCorporations(ctx, trigger, time.Time{})
	case JobLockQueue:
		return s.LockQueue(ctx, trigger)
	case JobSettleBilling:
		return s.SettleBilling(ctx, trigger)
	default:
		return nil, ErrUnknownJob
	}
}

func (s *Scheduler) fetchCorporations(ctx context.Context, run *jobRun, date time.Time) (pipeline.Summary, error) {
	summary, err := s.pipeline.FetchCorporations(ctx, date)
	if err != nil {
		return summary, err
	}
	run.AddProcessed(summary.QueuedCount)
	run.AddErrors(len(summary.Errors))
	s.metrics.AddProcessed(JobFetchCorporations, "corporations", summary.Inserted)
	s.metrics.AddProcessed(JobFetchCorporations, "mail_queue", summary.QueuedCount)
	return summary, nil
}

func (s *Scheduler) lockQueue(ctx context.Context, run *jobRun) (mailqueuedomain.LockResult, error) {
	result, err := s.pipeline.LockQueue(ctx)
	if err != nil {
		return result, err
	}
	run.AddProcessed(int(result.Locked))
	s.metrics.AddProcessed(JobLockQueue, "mail_queue", int(result.Locked))
	return result, nil
}

func (s *Scheduler) settleBilling(ctx context.Context, run *jobRun) (settlementdomain.Summary, error) {
	summary, err := s.pipeline.SettleBilling(ctx)
	if err != nil {
		return summary, err
	}
	run.AddProcessed(summary.ItemsDeducted)
	run.AddErrors(len(summary.Errors))
	s.metrics.AddProcessed(JobSettleBilling, "mail_queue", summary.ItemsDeducted)
	return summary, nil
}

type scheduledJob struct {
	Name    string
	At      TimeOfDay
	Timeout time.Duration
	Run     func(ctx context.Context, run *jobRun) error
}

func (s *Scheduler) jobs() []scheduledJob {
	return []scheduledJob{
		{JobFetchCorporations, s.cfg.FetchAt, s.cfg.FetchTimeout, func(ctx context.Context, run *jobRun) error {
			_, err := s.fetchCorporations(ctx, run, time.Time{})
			return err
		}},
		{JobLockQueue, s.cfg.LockAt, s.cfg.LockTimeout, func(ctx context.Context, run *jobRun) error {
			_, err := s.lockQueue(ctx, run)
			return err
		}},
		{JobSettleBilling, s.cfg.SettleAt, s.cfg.SettleTimeout, func(ctx context.Context, run *jobRun) error {
			_, err := s.settleBilling(ctx, run)
			return err
		}},
	}
}

// RunOnce fires every enabled job whose slot for today has passed and has
// not fired since.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	now := s.clock.Now()

	for _, job := range s.jobs() {
		if !s.isJobEnabled(job.Name) || !s.due(job, now) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
	}
	return err
}

func (s *Scheduler) due(job scheduledJob, now time.Time) bool {
	slot := job.At.On(now, s.cfg.Location)

	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[job.Name]
	if !ok {
		// Slots that passed before the scheduler started are not replayed.
		s.lastRun[job.Name] = now
		return false
	}
	if now.Before(slot) || !last.Before(slot) {
		return false
	}
	s.lastRun[job.Name] = now
	return true
}

// prime marks every slot up to now as handled.
func (s *Scheduler) prime(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs() {
		if _, ok := s.lastRun[job.Name]; !ok {
			s.lastRun[job.Name] = now
		}
	}
}

func (s *Scheduler) RunForever(ctx context.Context) {
	s.prime(s.clock.Now())
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.PollInterval)
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// If EnabledJobs is empty, all jobs are enabled by default (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
