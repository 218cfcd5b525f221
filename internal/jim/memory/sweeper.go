package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// SweeperConfig configures the periodic cleanup jobs.
type SweeperConfig struct {
	// Schedule is the cron spec for memory pruning. Default: "@daily".
	Schedule string

	// RetentionDays is passed to Store.Prune. Default: DefaultRetentionDays.
	RetentionDays int

	// GuardSchedule is the cron spec for pruning the interaction guard.
	// Default: "@every 1m".
	GuardSchedule string
}

// DefaultSweeperConfig returns a SweeperConfig with the documented defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Schedule:      "@daily",
		RetentionDays: DefaultRetentionDays,
		GuardSchedule: "@every 1m",
	}
}

// GuardPruner is the slice of the trigger guard the sweeper needs.
type GuardPruner interface {
	Prune(now time.Time) int
}

// Sweeper runs Store.Prune and the guard prune on cron schedules.
type Sweeper struct {
	store  *Store
	guard  GuardPruner
	cfg    SweeperConfig
	logger *slog.Logger
	cron   *rcron.Cron
}

// NewSweeper validates the schedules and registers the jobs. guard may be
// nil, in which case only memory pruning is scheduled.
func NewSweeper(store *Store, guard GuardPruner, cfg SweeperConfig, logger *slog.Logger) (*Sweeper, error) {
	def := DefaultSweeperConfig()
	if cfg.Schedule == "" {
		cfg.Schedule = def.Schedule
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}
	if cfg.GuardSchedule == "" {
		cfg.GuardSchedule = def.GuardSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sweeper{
		store:  store,
		guard:  guard,
		cfg:    cfg,
		logger: logger,
		cron:   rcron.New(),
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() {
		_, _ = s.SweepOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("memory: sweeper schedule %q: %w", cfg.Schedule, err)
	}
	if guard != nil {
		if _, err := s.cron.AddFunc(cfg.GuardSchedule, s.pruneGuard); err != nil {
			return nil, fmt.Errorf("memory: guard schedule %q: %w", cfg.GuardSchedule, err)
		}
	}
	return s, nil
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits
// for any running job to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("memory sweeper started",
		"schedule", s.cfg.Schedule,
		"retention_days", s.cfg.RetentionDays,
		"guard_schedule", s.cfg.GuardSchedule,
	)
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("memory sweeper stopped")
	return nil
}

// SweepOnce runs one memory prune and logs the report.
func (s *Sweeper) SweepOnce(ctx context.Context) (PruneReport, error) {
	report, err := s.store.Prune(ctx, s.cfg.RetentionDays)
	if err != nil {
		s.logger.Error("memory sweep failed", "err", err)
		return PruneReport{}, err
	}
	s.logger.Info("memory sweep complete",
		"cutoff", report.Cutoff.Format(time.RFC3339),
		"contexts", report.Contexts,
		"facts", report.Facts,
	)
	return report, nil
}

func (s *Sweeper) pruneGuard() {
	if n := s.guard.Prune(time.Now()); n > 0 {
		s.logger.Debug("interaction guard pruned", "removed", n)
	}
}
