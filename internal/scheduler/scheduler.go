package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/config"
	"github.com/yourorg/exchange-aggregator/internal/lock"
	"github.com/yourorg/exchange-aggregator/internal/model"
)

// SyncRunner executes sync work for one exchanger
type SyncRunner interface {
	SyncExchanger(ctx context.Context, exchangerID int) error
	RescanBlackList(ctx context.Context, exchangerID int) error
}

// ExchangerLister enumerates exchangers for scheduling
type ExchangerLister interface {
	List(ctx context.Context) ([]model.Exchanger, error)
}

// Scheduler runs the periodic sync triggers: one goroutine per
// (exchanger, trigger kind), rebuilt whenever an exchanger's periods
// or activity change. Overlap protection lives in the sync service's
// single-flight lock, not here.
type Scheduler struct {
	runner     SyncRunner
	exchangers ExchangerLister
	defaults   config.SyncConfig
	logger     *zap.Logger

	mu   sync.Mutex
	jobs map[int]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler
func New(runner SyncRunner, exchangers ExchangerLister, defaults config.SyncConfig, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:     runner,
		exchangers: exchangers,
		defaults:   defaults,
		logger:     logger,
		jobs:       make(map[int]context.CancelFunc),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start schedules every known exchanger
func (s *Scheduler) Start(ctx context.Context) error {
	list, err := s.exchangers.List(ctx)
	if err != nil {
		return err
	}
	for _, exchanger := range list {
		s.Reconfigure(exchanger)
	}
	s.logger.Info("Scheduler started", zap.Int("exchangers", len(list)))
	return nil
}

// Reconfigure replaces the exchanger's scheduled jobs with a fresh set
// derived from its current periods. Ineligible or inactive exchangers
// end up with no jobs.
func (s *Scheduler) Reconfigure(exchanger model.Exchanger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.jobs[exchanger.ID]; ok {
		cancel()
		delete(s.jobs, exchanger.ID)
	}

	if !exchanger.IsActive || !exchanger.SyncEligible() {
		s.logger.Debug("Exchanger unscheduled",
			zap.Int("exchanger_id", exchanger.ID),
			zap.String("status", string(exchanger.Status)))
		return
	}

	jobCtx, cancel := context.WithCancel(s.ctx)
	s.jobs[exchanger.ID] = cancel

	createPeriod := periodOrDefault(exchanger.CreatePeriod, s.defaults.DefaultCreateSec, time.Second)
	updatePeriod := periodOrDefault(exchanger.UpdatePeriod, s.defaults.DefaultUpdateSec, time.Second)
	rescanPeriod := periodOrDefault(exchanger.RescanPeriod, s.defaults.DefaultBlacklistHr, time.Hour)

	s.spawn(jobCtx, exchanger.ID, "sync-create", createPeriod, s.runner.SyncExchanger)
	s.spawn(jobCtx, exchanger.ID, "sync-update", updatePeriod, s.runner.SyncExchanger)
	s.spawn(jobCtx, exchanger.ID, "blacklist-rescan", rescanPeriod, s.runner.RescanBlackList)

	s.logger.Debug("Exchanger scheduled",
		zap.Int("exchanger_id", exchanger.ID),
		zap.Duration("create_period", createPeriod),
		zap.Duration("update_period", updatePeriod),
		zap.Duration("rescan_period", rescanPeriod))
}

// RunPeriodic schedules a named housekeeping task that is not tied to
// a single exchanger, such as the reference-rate refresh or the stale
// partner sweep.
func (s *Scheduler) RunPeriodic(name string, period time.Duration, fn func(context.Context) error) {
	if period <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Error("Housekeeping task failed",
						zap.Error(err), zap.String("task", name))
				}
			}
		}
	}()
}

// Stop cancels all jobs and waits for in-flight runs to finish
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) spawn(ctx context.Context, exchangerID int, kind string, period time.Duration, run func(context.Context, int) error) {
	if period <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := run(ctx, exchangerID)
				if err != nil && !errors.Is(err, lock.ErrNotAcquired) && !errors.Is(err, context.Canceled) {
					s.logger.Error("Scheduled run failed",
						zap.Error(err),
						zap.Int("exchanger_id", exchangerID),
						zap.String("kind", kind))
				}
			}
		}
	}()
}

// periodOrDefault resolves a per-exchanger period in the given unit. A
// negative value falls back to the default; zero disables the trigger.
func periodOrDefault(value, fallback int, unit time.Duration) time.Duration {
	if value < 0 {
		value = fallback
	}
	return time.Duration(value) * unit
}
