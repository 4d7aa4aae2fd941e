package cronsched

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/channelgate/channelgate/core"
)

type countingSweeper struct {
	calls atomic.Int64
	err   error
}

func (s *countingSweeper) RunSweep(_ context.Context) (core.SweepReport, error) {
	s.calls.Add(1)
	if s.err != nil {
		return core.SweepReport{}, s.err
	}
	return core.SweepReport{Scanned: 1, Revoked: 1}, nil
}

func TestNewSweepScheduler_Validates(t *testing.T) {
	sweeper := &countingSweeper{}
	logger := glog.Nop()

	if _, err := NewSweepScheduler(nil, logger, core.SweepConfig{Interval: time.Minute}); err == nil {
		t.Fatalf("expected error without sweeper")
	}
	if _, err := NewSweepScheduler(sweeper, nil, core.SweepConfig{Interval: time.Minute}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewSweepScheduler(sweeper, logger, core.SweepConfig{}); err == nil {
		t.Fatalf("expected error without interval")
	}
	if _, err := NewSweepScheduler(sweeper, logger, core.SweepConfig{Interval: time.Minute}); err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
}

func TestSweepScheduler_RunsImmediatelyThenOnInterval(t *testing.T) {
	sweeper := &countingSweeper{}
	scheduler, err := NewSweepScheduler(sweeper, glog.Nop(), core.SweepConfig{
		Interval: 25 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer scheduler.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 sweep cycles, got %d", sweeper.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSweepScheduler_InitialDelayPostponesFirstCycle(t *testing.T) {
	sweeper := &countingSweeper{}
	scheduler, err := NewSweepScheduler(sweeper, glog.Nop(), core.SweepConfig{
		Interval:     time.Hour,
		InitialDelay: 150 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer scheduler.Stop()

	time.Sleep(50 * time.Millisecond)
	if got := sweeper.calls.Load(); got != 0 {
		t.Fatalf("expected no cycles inside the initial delay, got %d", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected first cycle after the initial delay")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSweepScheduler_StopHaltsCycles(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("store offline")}
	scheduler, err := NewSweepScheduler(sweeper, glog.Nop(), core.SweepConfig{
		Interval: 25 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least one cycle before stop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	scheduler.Stop()
	settled := sweeper.calls.Load()
	time.Sleep(100 * time.Millisecond)
	if got := sweeper.calls.Load(); got != settled {
		t.Fatalf("expected no cycles after stop, got %d more", got-settled)
	}

	// Stop twice is safe.
	scheduler.Stop()
}

func TestSweepScheduler_StopDuringInitialDelayLeavesCronStopped(t *testing.T) {
	sweeper := &countingSweeper{}
	scheduler, err := NewSweepScheduler(sweeper, glog.Nop(), core.SweepConfig{
		Interval:     20 * time.Millisecond,
		InitialDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	scheduler.Stop()

	// Let any in-flight first cycle settle, then confirm the cron never
	// begins ticking even though the delay timer may have fired alongside
	// Stop.
	time.Sleep(50 * time.Millisecond)
	settled := sweeper.calls.Load()
	time.Sleep(150 * time.Millisecond)
	if got := sweeper.calls.Load(); got != settled {
		t.Fatalf("expected no cycles after stop, got %d more", got-settled)
	}
}

func TestSweepScheduler_StartTwiceFails(t *testing.T) {
	scheduler, err := NewSweepScheduler(&countingSweeper{}, glog.Nop(), core.SweepConfig{
		Interval:     time.Hour,
		InitialDelay: time.Hour,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer scheduler.Stop()
	if err := scheduler.Start(context.Background()); err == nil {
		t.Fatalf("expected error on second start")
	}
}
