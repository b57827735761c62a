package worker

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/pkg/distlock"
	"github.com/ignite/coach-nudge/internal/pkg/logger"
)

// =============================================================================
// NUDGE SCHEDULER: periodic scoring run for every enabled trainer
// =============================================================================
// Each trainer is scored under its own distributed lock so two scheduler
// replicas never run the same trainer concurrently. A trainer whose lock is
// held elsewhere is skipped for this tick; the run is idempotent, so the
// next tick picks it up.

// DefaultSchedulerInterval is how often trainers are re-scored.
const DefaultSchedulerInterval = 24 * time.Hour

// TrainerRunner runs one scoring pass for a trainer.
type TrainerRunner interface {
	RunOnce(ctx context.Context, trainerID string) (domain.RunReport, error)
}

// TrainerLister lists trainers due for scoring.
type TrainerLister interface {
	ListEnabledTrainers(ctx context.Context, defaultEnabled bool) ([]string, error)
}

// LockFactory creates distributed locks by key.
type LockFactory interface {
	New(key string) distlock.DistLock
}

// TickSummary counts what happened to each trainer in one tick.
type TickSummary struct {
	Trainers int
	Ran      int
	Locked   int
	Failed   int
}

// NudgeScheduler periodically calls RunOnce for every enabled trainer.
type NudgeScheduler struct {
	runner         TrainerRunner
	trainers       TrainerLister
	locks          LockFactory
	interval       time.Duration
	defaultEnabled bool
}

// NewNudgeScheduler creates a scheduler. defaultEnabled decides whether
// trainers without a settings row are scored.
func NewNudgeScheduler(runner TrainerRunner, trainers TrainerLister, locks LockFactory, interval time.Duration, defaultEnabled bool) *NudgeScheduler {
	if interval <= 0 {
		interval = DefaultSchedulerInterval
	}
	return &NudgeScheduler{
		runner:         runner,
		trainers:       trainers,
		locks:          locks,
		interval:       interval,
		defaultEnabled: defaultEnabled,
	}
}

// Start runs a tick immediately and then on every interval. It blocks until
// ctx is cancelled.
func (s *NudgeScheduler) Start(ctx context.Context) {
	logger.Printf("[NudgeScheduler] Starting (interval=%s)", s.interval)

	s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Printf("[NudgeScheduler] Stopping")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick scores every enabled trainer once. A failing trainer never stops the
// others.
func (s *NudgeScheduler) Tick(ctx context.Context) TickSummary {
	var sum TickSummary
	ids, err := s.trainers.ListEnabledTrainers(ctx, s.defaultEnabled)
	if err != nil {
		logger.Error("[NudgeScheduler] list trainers failed", "error", err)
		return sum
	}
	sum.Trainers = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		err := s.RunTrainer(ctx, id)
		switch {
		case err == nil:
			sum.Ran++
		case errors.Is(err, distlock.ErrNotAcquired):
			sum.Locked++
			logger.Info("[NudgeScheduler] trainer run already in progress", "trainer_id", id)
		default:
			sum.Failed++
			logger.Error("[NudgeScheduler] trainer run failed", "trainer_id", id, "error", err)
		}
	}

	logger.Info("[NudgeScheduler] tick complete",
		"trainers", sum.Trainers, "ran", sum.Ran, "locked", sum.Locked, "failed", sum.Failed)
	return sum
}

// RunTrainer runs one trainer under its lock.
func (s *NudgeScheduler) RunTrainer(ctx context.Context, trainerID string) error {
	return distlock.WithLock(ctx, s.locks.New(distlock.TrainerRunKey(trainerID)), func(ctx context.Context) error {
		_, err := s.runner.RunOnce(ctx, trainerID)
		return err
	})
}
