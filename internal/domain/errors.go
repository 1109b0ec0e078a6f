package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable indicates the series source could not be queried
	ErrSourceUnavailable = errors.New("series source unavailable")

	// ErrEmptyResult indicates the query succeeded but returned no rows
	ErrEmptyResult = errors.New("series query returned no rows")

	// ErrSerialization indicates a snapshot file could not be written
	ErrSerialization = errors.New("snapshot serialization failed")

	// ErrPublish indicates the commit or push of a snapshot was rejected
	ErrPublish = errors.New("snapshot publish failed")

	// ErrBroadcast indicates a live channel sink rejected a payload
	ErrBroadcast = errors.New("live broadcast failed")

	// ErrSnapshotUnavailable indicates a persisted snapshot is missing or corrupt
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")

	// ErrInvalidConfig indicates a configuration value is unusable
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Pipeline stages
const (
	StageIngest    = "ingest"
	StageCompute   = "compute"
	StageStore     = "store"
	StagePublish   = "publish"
	StageBroadcast = "broadcast"
)

// CycleError records which pipeline stage failed
type CycleError struct {
	Stage string
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of the first CycleError in err's chain
func StageOf(err error) string {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce.Stage
	}
	return ""
}
