// AngelaMos | 2026
// scheduler.go

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/carterperez-dev/eternal-vault/internal/core"
)

const lockPrefix = "notify:sweep:"

// Locker grants a key to one holder until ttl passes or the holder
// releases it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Sweeper interface {
	Sweep(ctx context.Context, day time.Time) (SweepReport, error)
}

type SchedulerConfig struct {
	Sweeper  Sweeper
	Locker   Locker
	Clock    core.Clock
	Location *time.Location
	Schedule string
	LockTTL  time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Scheduler fires the daily unlock sweep. Each calendar day is swept at
// most once across every replica holding the same lock store.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	locker  Locker
	clock   core.Clock
	loc     *time.Location
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 23 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	logger := cfg.Logger.With("component", "notify_scheduler")
	s := &Scheduler{
		sweeper: cfg.Sweeper,
		locker:  cfg.Locker,
		clock:   cfg.Clock,
		loc:     cfg.Location,
		ttl:     cfg.LockTTL,
		timeout: cfg.Timeout,
		logger:  logger,
	}

	cl := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := s.cron.AddFunc(cfg.Schedule, s.fire); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("unlock sweep scheduled",
		"location", s.loc.String(),
	)
}

// Stop prevents further runs and waits for a running sweep or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, _, err := s.RunOnce(ctx); err != nil {
		s.logger.ErrorContext(ctx, "unlock sweep failed", "error", err)
	}
}

// RunOnce sweeps today's capsules if no one else has. ran is false when the
// lock for today was already taken.
func (s *Scheduler) RunOnce(ctx context.Context) (report SweepReport, ran bool, err error) {
	day := core.Day(s.clock.Now(), s.loc)
	key := LockKey(day)

	if s.locker != nil {
		acquired, err := s.locker.TryLock(ctx, key, s.ttl)
		if err != nil {
			return SweepReport{}, false, err
		}
		if !acquired {
			s.logger.InfoContext(ctx, "unlock sweep already claimed", "lock", key)
			return SweepReport{}, false, nil
		}
	}

	report, err = s.sweeper.Sweep(ctx, day)
	if err != nil && report.Sent == 0 && s.locker != nil {
		// Nothing went out, so a later fire may safely retry the day.
		if unlockErr := s.locker.Unlock(context.WithoutCancel(ctx), key); unlockErr != nil {
			s.logger.WarnContext(ctx, "release sweep lock failed",
				"lock", key,
				"error", unlockErr,
			)
		}
	}
	return report, true, err
}

func LockKey(day time.Time) string {
	return lockPrefix + day.Format(time.DateOnly)
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
