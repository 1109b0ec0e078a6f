package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

// Supported drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

const timestampLayout = "2006-01-02 15:04:05"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether name can be spliced into the query as a
// table or column name, optionally schema-qualified.
func ValidIdentifier(name string) bool {
	return identifier.MatchString(name)
}

// Config describes where the level series lives
type Config struct {
	Driver      string
	DSN         string
	Table       string
	LevelColumn string
	TimeColumn  string
	// Location interprets the naive DATETIME values stored by the PLC logger
	Location *time.Location
}

// SeriesSource implements domain.SeriesSource over database/sql
type SeriesSource struct {
	db     *sql.DB
	cfg    Config
	query  string
	insert string
}

// Open creates a SQL-backed series source
func Open(cfg Config) (*SeriesSource, error) {
	switch cfg.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", domain.ErrInvalidConfig, cfg.Driver)
	}
	for _, name := range []string{cfg.Table, cfg.LevelColumn, cfg.TimeColumn} {
		if !ValidIdentifier(name) {
			return nil, fmt.Errorf("%w: invalid SQL identifier %q", domain.ErrInvalidConfig, name)
		}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// a single writer avoids "database is locked" on local files
		db.SetMaxOpenConns(1)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetMaxIdleConns(2)
	}

	return &SeriesSource{
		db:  db,
		cfg: cfg,
		query: fmt.Sprintf(`
		SELECT %[1]s, %[2]s
		FROM %[3]s
		WHERE %[2]s >= ? AND %[2]s <= ?
		ORDER BY %[2]s ASC`, cfg.LevelColumn, cfg.TimeColumn, cfg.Table),
		insert: fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES (?, ?)`,
			cfg.Table, cfg.LevelColumn, cfg.TimeColumn),
	}, nil
}

// EnsureSchema creates the series table if it does not exist.
// Only used for local SQLite files; the production table is owned by the PLC logger.
func (s *SeriesSource) EnsureSchema(ctx context.Context) error {
	if s.cfg.Driver != DriverSQLite {
		return nil
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		%[2]s REAL,
		%[3]s TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%[4]s_%[3]s ON %[1]s(%[3]s);
	`, s.cfg.Table, s.cfg.LevelColumn, s.cfg.TimeColumn, strings.ReplaceAll(s.cfg.Table, ".", "_"))

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveReading stores a reading
func (s *SeriesSource) SaveReading(ctx context.Context, r domain.Reading) error {
	ts := r.Timestamp.In(s.cfg.Location).Format(timestampLayout)
	if _, err := s.db.ExecContext(ctx, s.insert, r.Level, ts); err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// FetchReadings returns the readings within [start, end] ordered by time.
// Rows with a NULL level are skipped.
func (s *SeriesSource) FetchReadings(ctx context.Context, start, end time.Time) ([]domain.Reading, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("driver", s.cfg.Driver).Str("table", s.cfg.Table).Msg("connecting to database")

	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.query,
		start.In(s.cfg.Location).Format(timestampLayout),
		end.In(s.cfg.Location).Format(timestampLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []domain.Reading
	for rows.Next() {
		var level sql.NullFloat64
		var raw any

		if err := rows.Scan(&level, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		if !level.Valid {
			continue
		}

		ts, err := s.parseTimestamp(raw)
		if err != nil {
			return nil, err
		}
		readings = append(readings, domain.NewReading(level.Float64, ts))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	logger.Debug().Int("rows", len(readings)).Msg("database query finished")
	return readings, nil
}

// parseTimestamp accepts what either driver hands back for a DATETIME or
// TEXT column. Drivers label naive values as UTC; the wall clock is kept
// and re-labelled with the configured location.
func (s *SeriesSource) parseTimestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), s.cfg.Location), nil
	case []byte:
		return s.parseText(string(v))
	case string:
		return s.parseText(v)
	default:
		return time.Time{}, fmt.Errorf("failed to parse timestamp: unexpected type %T", raw)
	}
}

func (s *SeriesSource) parseText(v string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, "2006-01-02 15:04:05.999999999", time.RFC3339Nano} {
		if layout == time.RFC3339Nano {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, v, s.cfg.Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", v)
}

// Close closes the database connection
func (s *SeriesSource) Close() error {
	return s.db.Close()
}
