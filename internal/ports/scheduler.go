package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

// CycleRunner runs one pipeline cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) (Cycle, error)
}

// Observer is notified after every cycle, successful or not
type Observer interface {
	ObserveCycle(cycle Cycle, err error)
}

// Scheduler handles periodic pipeline cycles
type Scheduler struct {
	runner     CycleRunner
	interval   time.Duration
	runOnStart bool
	observers  []Observer
}

// NewScheduler creates a new background scheduler
func NewScheduler(runner CycleRunner, interval time.Duration, runOnStart bool, observers ...Observer) *Scheduler {
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		observers:  observers,
	}
}

// Start begins periodic cycles
// This runs in a goroutine until context is cancelled. The interval is
// measured from the end of one cycle to the start of the next, so cycles
// never overlap and a slow cycle is still followed by a full pause.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().
		Dur("interval", s.interval).
		Msg("starting pipeline scheduler")

	if s.runOnStart {
		s.runOnce(ctx)
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.runOnce(ctx)
			timer.Reset(s.interval)

		case <-ctx.Done():
			log.Info().Msg("stopping pipeline scheduler")
			return
		}
	}
}

// runOnce runs a cycle and logs its outcome; it never panics
func (s *Scheduler) runOnce(ctx context.Context) {
	var (
		cycle Cycle
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("cycle panicked: %v", r)
			}
		}()
		cycle, err = s.runner.RunCycle(ctx)
	}()

	logCycle(cycle, err)
	for _, o := range s.observers {
		o.ObserveCycle(cycle, err)
	}
}

func logCycle(cycle Cycle, err error) {
	var event *zerolog.Event
	switch {
	case err == nil:
		event = log.Info()
	case errors.Is(err, domain.ErrEmptyResult):
		event = log.Warn()
	default:
		event = log.Error().Err(err)
	}

	event = event.
		Str("cycle_id", cycle.ID).
		Int("readings", cycle.Readings).
		Dur("duration", cycle.Duration)
	if stage := domain.StageOf(err); stage != "" {
		event = event.Str("stage", stage)
	}

	switch {
	case err == nil:
		event.Msg("cycle completed")
	case errors.Is(err, domain.ErrEmptyResult):
		event.Msg("no readings for tank, skipping cycle")
	case errors.Is(err, domain.ErrSourceUnavailable):
		event.Msg("series source unavailable, retrying next tick")
	case errors.Is(err, domain.ErrSerialization):
		event.Msg("failed to persist snapshots")
	case errors.Is(err, domain.ErrPublish), errors.Is(err, domain.ErrBroadcast):
		event.Msg("cycle completed with delivery errors")
	default:
		event.Msg("cycle failed")
	}
}
