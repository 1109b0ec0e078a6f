package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

// SeriesSource implements domain.SeriesSource with in-memory storage
// Useful for tests and for embedding the pipeline without a database
type SeriesSource struct {
	mu       sync.RWMutex
	readings []domain.Reading
	err      error
}

// NewSeriesSource creates a source holding the given readings
func NewSeriesSource(readings ...domain.Reading) *SeriesSource {
	s := &SeriesSource{}
	s.Add(readings...)
	return s
}

// Add stores readings in memory
func (s *SeriesSource) Add(readings ...domain.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, readings...)
}

// FailWith makes every subsequent fetch return err; nil clears it
func (s *SeriesSource) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// FetchReadings returns all readings within [start, end]
func (s *SeriesSource) FetchReadings(ctx context.Context, start, end time.Time) ([]domain.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []domain.Reading
	for _, r := range s.readings {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			results = append(results, r)
		}
	}

	// Sort by timestamp
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	return results, nil
}

// Close is a no-op for the in-memory source
func (s *SeriesSource) Close() error {
	return nil
}
