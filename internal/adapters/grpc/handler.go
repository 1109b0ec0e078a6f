package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/quentinrf/tank-monitor/internal/domain"
	"github.com/quentinrf/tank-monitor/internal/ports"
)

// TankServiceHandler implements the gRPC TankService
type TankServiceHandler struct {
	snapshots ports.SnapshotReader
}

// NewTankServiceHandler creates a new gRPC handler
func NewTankServiceHandler(snapshots ports.SnapshotReader) *TankServiceHandler {
	return &TankServiceHandler{snapshots: snapshots}
}

// GetReport returns the last persisted report
func (h *TankServiceHandler) GetReport(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	raw, err := h.snapshots.LoadReport(ctx)
	if err != nil {
		return nil, toStatus(err, "report")
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		log.Error().Err(err).Msg("failed to decode report snapshot")
		return nil, status.Error(codes.Internal, "failed to decode report")
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		log.Error().Err(err).Msg("failed to convert report")
		return nil, status.Error(codes.Internal, "failed to convert report")
	}
	return out, nil
}

// GetSeries returns the last persisted series under the "rows" key
func (h *TankServiceHandler) GetSeries(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	rows, err := h.snapshots.LoadSeries(ctx)
	if err != nil {
		return nil, toStatus(err, "series")
	}

	list := make([]any, 0, len(rows))
	for _, r := range rows {
		list = append(list, map[string]any{
			"level":      r.Level,
			"timestamp":  r.Timestamp,
			"site":       r.Site,
			"local_time": r.LocalTime,
		})
	}
	out, err := structpb.NewStruct(map[string]any{"rows": list})
	if err != nil {
		log.Error().Err(err).Msg("failed to convert series")
		return nil, status.Error(codes.Internal, "failed to convert series")
	}
	return out, nil
}

func toStatus(err error, what string) error {
	if errors.Is(err, domain.ErrSnapshotUnavailable) {
		log.Warn().Err(err).Str("snapshot", what).Msg("snapshot unavailable")
		return status.Error(codes.Unavailable, fmt.Sprintf("%s snapshot unavailable", what))
	}
	log.Error().Err(err).Str("snapshot", what).Msg("failed to load snapshot")
	return status.Error(codes.Internal, fmt.Sprintf("failed to load %s", what))
}
