package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quentinrf/tank-monitor/internal/domain"
	"github.com/quentinrf/tank-monitor/internal/engine"
)

// Cycle summarises one run of the pipeline
type Cycle struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Readings  int
	Latest    *domain.Reading
	Report    *domain.Report
	Published []string
}

// Pipeline runs ingest, compute, store, publish and broadcast in order
type Pipeline struct {
	source    domain.SeriesSource
	engine    *engine.Engine
	store     ReportStore
	publisher Publisher
	live      Broadcaster
	window    time.Duration
	event     string
	now       func() time.Time
}

// NewPipeline wires the collaborators of a cycle.
// window is the relative query window ending at the cycle start; event is
// the live channel event name.
func NewPipeline(source domain.SeriesSource, eng *engine.Engine, store ReportStore, publisher Publisher, live Broadcaster, window time.Duration, event string) *Pipeline {
	return &Pipeline{
		source:    source,
		engine:    eng,
		store:     store,
		publisher: publisher,
		live:      live,
		window:    window,
		event:     event,
		now:       time.Now,
	}
}

// RunCycle executes one cycle. Ingest and store failures abort the cycle;
// publish and broadcast failures are returned after every stage ran.
func (p *Pipeline) RunCycle(ctx context.Context) (cycle Cycle, err error) {
	now := p.now()
	cycle = Cycle{ID: uuid.NewString(), StartedAt: now}
	defer func() { cycle.Duration = time.Since(now) }()

	logger := log.With().Str("cycle_id", cycle.ID).Logger()
	ctx = logger.WithContext(ctx)

	start := p.engine.QueryStart(now, p.window)
	logger.Info().
		Time("from", start).
		Time("to", now).
		Msg("fetching readings")

	readings, err := p.source.FetchReadings(ctx, start, now)
	if err != nil {
		return cycle, &domain.CycleError{
			Stage: domain.StageIngest,
			Err:   fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err),
		}
	}
	cycle.Readings = len(readings)
	if len(readings) == 0 {
		return cycle, &domain.CycleError{Stage: domain.StageIngest, Err: domain.ErrEmptyResult}
	}

	report := p.engine.Compute(readings, now)
	cycle.Report = &report

	cfg := p.engine.Config()
	rows := domain.ToRows(readings, cfg.Site, cfg.Location)

	paths, err := p.store.Save(ctx, rows, report)
	if err != nil {
		return cycle, &domain.CycleError{
			Stage: domain.StageStore,
			Err:   fmt.Errorf("%w: %v", domain.ErrSerialization, err),
		}
	}
	logger.Info().Strs("paths", paths).Msg("snapshots saved")

	var errs []error
	if err := p.publisher.Publish(ctx, paths...); err != nil {
		errs = append(errs, &domain.CycleError{
			Stage: domain.StagePublish,
			Err:   fmt.Errorf("%w: %v", domain.ErrPublish, err),
		})
	} else {
		cycle.Published = paths
	}

	payload := LivePayload{Report: report}
	if latest, ok := domain.Latest(readings); ok {
		cycle.Latest = &latest
		payload.Latest = []domain.SeriesRow{latest.ToRow(cfg.Site, cfg.Location)}
		logger.Info().
			Float64("level", latest.Level).
			Time("timestamp", latest.Timestamp).
			Msg("latest reading")
	}
	if err := p.live.Broadcast(ctx, p.event, payload); err != nil {
		errs = append(errs, &domain.CycleError{
			Stage: domain.StageBroadcast,
			Err:   fmt.Errorf("%w: %v", domain.ErrBroadcast, err),
		})
	}

	return cycle, errors.Join(errs...)
}
