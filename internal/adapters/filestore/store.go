// Package filestore persists the series and report snapshots as flat files.
package filestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

var seriesHeader = []string{"level", "timestamp", "site", "local_time"}

// Config locates the snapshots
type Config struct {
	SeriesPath string
	ReportPath string
	// StagingDir receives a byte-identical copy of every snapshot; it is
	// normally a directory inside the publish working tree.
	StagingDir string
}

// Store implements ports.ReportStore and the snapshot reads of the read surfaces
type Store struct {
	cfg Config
	s3  *S3Mirror
}

// NewStore creates a file store. s3 may be nil.
func NewStore(cfg Config, s3 *S3Mirror) *Store {
	return &Store{cfg: cfg, s3: s3}
}

// Save overwrites both snapshots, mirrors them, and returns the paths to publish
func (s *Store) Save(ctx context.Context, rows []domain.SeriesRow, report domain.Report) ([]string, error) {
	seriesData, err := EncodeSeries(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode series: %w", err)
	}
	reportData, err := EncodeReport(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	files := []struct {
		path        string
		data        []byte
		contentType string
	}{
		{s.cfg.SeriesPath, seriesData, "text/csv; charset=utf-8"},
		{s.cfg.ReportPath, reportData, "application/json"},
	}

	logger := zerolog.Ctx(ctx)
	var publish []string
	for _, f := range files {
		if err := writeFileAtomic(f.path, f.data); err != nil {
			return nil, err
		}
		logger.Info().Str("path", f.path).Int("bytes", len(f.data)).Msg("snapshot written")

		target := f.path
		if s.cfg.StagingDir != "" {
			target = filepath.Join(s.cfg.StagingDir, filepath.Base(f.path))
			if err := writeFileAtomic(target, f.data); err != nil {
				return nil, err
			}
		}
		publish = append(publish, target)

		if s.s3 != nil {
			uri, err := s.s3.Put(ctx, filepath.Base(f.path), f.data, f.contentType)
			if err != nil {
				return nil, err
			}
			logger.Info().Str("uri", uri).Msg("snapshot mirrored")
		}
	}
	return publish, nil
}

// EncodeSeries renders rows as CSV with a header line
func EncodeSeries(rows []domain.SeriesRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(seriesHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		record := []string{
			strconv.FormatFloat(r.Level, 'f', -1, 64),
			r.Timestamp,
			r.Site,
			r.LocalTime,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeReport renders the report as JSON indented by four spaces
func EncodeReport(report domain.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic replaces path with data through a temp file and rename
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
