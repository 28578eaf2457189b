// Package scheduler runs billing cycles at the configured interval. At most
// one cycle runs at a time; ticks that fire during a cycle are dropped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/edvin/hosting-billing/internal/billing"
)

// Runner executes one billing cycle.
type Runner interface {
	RunCycle(ctx context.Context) (billing.Report, error)
}

type Scheduler struct {
	config billing.ConfigSource
	runner Runner
	logger zerolog.Logger

	running atomic.Bool
	// cycleMu is held for the duration of a cycle so Stop can wait for it.
	cycleMu sync.Mutex

	mu       sync.Mutex
	base     context.Context
	cron     *cron.Cron
	interval time.Duration
}

func New(config billing.ConfigSource, runner Runner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		config: config,
		runner: runner,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start arms the timer from the current billing config. Cycles started by the
// timer run under ctx. A config that cannot be loaded leaves the timer
// unarmed; the error is returned so the caller can log it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
	return s.Reload(ctx)
}

// Reload discards the armed timer, re-reads the billing config and arms a new
// timer if billing is enabled.
func (s *Scheduler) Reload(ctx context.Context) error {
	cfg, err := s.config.BillingConfig(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()

	if err != nil {
		s.logger.Error().Err(err).Msg("load billing config, scheduler not armed")
		return fmt.Errorf("load billing config: %w", err)
	}
	if !cfg.Enabled {
		s.logger.Info().Msg("billing disabled, scheduler not armed")
		return nil
	}
	if s.base == nil {
		return errors.New("scheduler not started")
	}

	interval := cfg.Interval()
	printf := s.logger.With().Str("source", "cron").Logger()
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(&printf))))
	base := s.base
	c.Schedule(cron.Every(interval), cron.FuncJob(func() { s.tick(base) }))
	c.Start()

	s.cron = c
	s.interval = interval
	armedGauge.Set(1)
	intervalGauge.Set(interval.Seconds())
	s.logger.Info().Dur("interval", interval).Msg("scheduler armed")
	return nil
}

// Stop disarms the timer and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.disarmLocked()
	s.mu.Unlock()

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
}

func (s *Scheduler) disarmLocked() {
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.interval = 0
	armedGauge.Set(0)
	intervalGauge.Set(0)
}

// TriggerNow runs a cycle immediately unless one is already running, in which
// case it returns false without running anything.
func (s *Scheduler) TriggerNow(ctx context.Context) (billing.Report, bool, error) {
	if !s.running.CompareAndSwap(false, true) {
		return billing.Report{}, false, nil
	}
	defer s.running.Store(false)

	report, err := s.run(ctx)
	return report, true, err
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Interval returns the armed cadence, or zero when the timer is not armed.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		ticksSkipped.Inc()
		s.logger.Warn().Msg("previous billing cycle still running, tick skipped")
		return
	}
	defer s.running.Store(false)

	if _, err := s.run(ctx); err != nil {
		s.logger.Error().Err(err).Msg("billing cycle failed")
	}
}

func (s *Scheduler) run(ctx context.Context) (billing.Report, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	return s.runner.RunCycle(ctx)
}
