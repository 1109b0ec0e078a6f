package filestore

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

// LoadSeries reads the last persisted series snapshot
func (s *Store) LoadSeries(ctx context.Context) ([]domain.SeriesRow, error) {
	f, err := os.Open(s.cfg.SeriesPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotUnavailable, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotUnavailable, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrSnapshotUnavailable, s.cfg.SeriesPath)
	}

	rows := make([]domain.SeriesRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(seriesHeader) {
			return nil, fmt.Errorf("%w: line %d has %d fields", domain.ErrSnapshotUnavailable, i+2, len(rec))
		}
		level, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrSnapshotUnavailable, i+2, err)
		}
		rows = append(rows, domain.SeriesRow{
			Level:     level,
			Timestamp: rec[1],
			Site:      rec[2],
			LocalTime: rec[3],
		})
	}
	return rows, nil
}

// LoadReport reads the last persisted report snapshot
func (s *Store) LoadReport(ctx context.Context) (json.RawMessage, error) {
	data, err := os.ReadFile(s.cfg.ReportPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotUnavailable, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", domain.ErrSnapshotUnavailable, s.cfg.ReportPath)
	}
	return json.RawMessage(data), nil
}
