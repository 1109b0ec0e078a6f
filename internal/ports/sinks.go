package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

// ReportStore persists the series and report snapshots
// This is a PORT - the file store adapter implements it
type ReportStore interface {
	// Save overwrites both snapshots and returns the paths to publish
	Save(ctx context.Context, rows []domain.SeriesRow, report domain.Report) ([]string, error)
}

// SnapshotReader serves the last persisted snapshots to the read surfaces
type SnapshotReader interface {
	LoadSeries(ctx context.Context) ([]domain.SeriesRow, error)
	LoadReport(ctx context.Context) (json.RawMessage, error)
}

// Publisher pushes persisted snapshots to a remote
type Publisher interface {
	Publish(ctx context.Context, paths ...string) error
}

// Broadcaster delivers a payload to live clients on a named event
// Delivery is best effort: no acknowledgment and no replay.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any) error
	Name() string
}

// LivePayload is what connected dashboards receive after every cycle
type LivePayload struct {
	Latest []domain.SeriesRow `json:"latest"`
	Report domain.Report      `json:"report"`
}

// Envelope wraps a payload with its event name on every live transport
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// FanOut broadcasts to every sink; one failing sink does not stop the others
type FanOut []Broadcaster

func (f FanOut) Broadcast(ctx context.Context, event string, payload any) error {
	var errs []error
	for _, b := range f {
		if err := b.Broadcast(ctx, event, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (f FanOut) Name() string { return "fanout" }
