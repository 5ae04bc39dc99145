package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/kigyomail/internal/config"
)

const (
	JobFetchCorporations = "fetch_corporations"
	JobLockQueue         = "lock_queue"
	JobSettleBilling     = "settle_billing"
)

// Config controls when each daily job fires and how long it may run.
type Config struct {
	Location     *time.Location
	PollInterval time.Duration
	EnabledJobs  []string

	FetchAt  TimeOfDay
	LockAt   TimeOfDay
	SettleAt TimeOfDay

	FetchTimeout  time.Duration
	LockTimeout   time.Duration
	SettleTimeout time.Duration
}

// TimeOfDay is a wall-clock slot in the scheduler's location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the slot on the calendar day of now.
func (t TimeOfDay) On(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), t.Hour, t.Minute, 0, 0, loc)
}

func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", raw)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func DefaultConfig() Config {
	return Config{
		Location:      time.FixedZone("JST", 9*60*60),
		PollInterval:  30 * time.Second,
		FetchAt:       TimeOfDay{Hour: 9},
		LockAt:        TimeOfDay{Hour: 16, Minute: 30},
		SettleAt:      TimeOfDay{Hour: 23},
		FetchTimeout:  10 * time.Minute,
		LockTimeout:   time.Minute,
		SettleTimeout: 10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Location == nil {
		c.Location = defaults.Location
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaults.FetchTimeout
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = defaults.LockTimeout
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = defaults.SettleTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) (Config, error) {
	out := DefaultConfig()
	out.Location = cfg.Location()
	out.EnabledJobs = cfg.Scheduler.EnabledJobs

	var err error
	if out.FetchAt, err = ParseTimeOfDay(cfg.Scheduler.FetchAt); err != nil {
		return Config{}, fmt.Errorf("SCHEDULER_FETCH_AT: %w", err)
	}
	if out.LockAt, err = ParseTimeOfDay(cfg.Scheduler.LockAt); err != nil {
		return Config{}, fmt.Errorf("SCHEDULER_LOCK_AT: %w", err)
	}
	if out.SettleAt, err = ParseTimeOfDay(cfg.Scheduler.SettleAt); err != nil {
		return Config{}, fmt.Errorf("SCHEDULER_SETTLE_AT: %w", err)
	}
	return out, nil
}
