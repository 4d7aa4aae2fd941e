// Package cronsched drives periodic expiry sweeps with robfig/cron. The
// scheduler owns no sweep logic; it only decides when RunSweep fires.
package cronsched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/channelgate/channelgate/core"
)

type SweepScheduler struct {
	sweeper core.Sweeper
	logger  core.Logger
	config  core.SweepConfig

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	started bool
}

func NewSweepScheduler(sweeper core.Sweeper, logger core.Logger, config core.SweepConfig) (*SweepScheduler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("cronsched: sweeper is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("cronsched: logger is required")
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("cronsched: sweep interval must be positive")
	}
	return &SweepScheduler{
		sweeper: sweeper,
		logger:  logger,
		config:  config,
	}, nil
}

// Start schedules the recurring sweep and returns immediately. The first
// cycle fires after the configured initial delay so a freshly booted process
// finishes its migrations and bot handshake before sweeping.
func (s *SweepScheduler) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("cronsched: scheduler is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("cronsched: scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	runner := cron.New(cron.WithLogger(cronLogger{log: s.logger}))
	spec := fmt.Sprintf("@every %s", s.config.Interval)
	if _, err := runner.AddFunc(spec, func() { s.runOnce(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("cronsched: schedule %q: %w", spec, err)
	}

	s.cron = runner
	s.cancel = cancel
	s.started = true

	go func() {
		if s.config.InitialDelay > 0 {
			timer := time.NewTimer(s.config.InitialDelay)
			defer timer.Stop()
			select {
			case <-runCtx.Done():
				return
			case <-timer.C:
			}
		}
		s.runOnce(runCtx)

		// Stop can win the race against the delay timer; starting the cron
		// after Stop drained it would leak a ticker for the process lifetime.
		// Re-checking under the mutex serializes against Stop.
		s.mu.Lock()
		if s.started && runCtx.Err() == nil {
			runner.Start()
		}
		s.mu.Unlock()
	}()
	return nil
}

// Stop halts scheduling and cancels any in-flight sweep. Safe to call more
// than once.
func (s *SweepScheduler) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.started = false
}

func (s *SweepScheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.sweeper.RunSweep(ctx)
	if err != nil {
		s.logger.Error("sweep cycle failed", "error", err)
		return
	}
	s.logger.Info("sweep cycle complete",
		"scanned", report.Scanned,
		"revoked", report.Revoked,
		"skipped", report.Skipped,
		"transient", report.Transient,
	)
}

// cronLogger bridges cron's logging callbacks onto the service logger.
type cronLogger struct {
	log core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
