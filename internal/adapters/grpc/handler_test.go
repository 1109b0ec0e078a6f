package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/quentinrf/tank-monitor/internal/domain"
	"github.com/quentinrf/tank-monitor/internal/ports"
)

type fakeSnapshots struct {
	rows   []domain.SeriesRow
	report json.RawMessage
	err    error
}

func (f *fakeSnapshots) LoadSeries(ctx context.Context) ([]domain.SeriesRow, error) {
	return f.rows, f.err
}

func (f *fakeSnapshots) LoadReport(ctx context.Context) (json.RawMessage, error) {
	return f.report, f.err
}

// startTestServer creates an in-process gRPC server and returns a connected connection.
// The server is stopped when the test ends.
func startTestServer(t *testing.T, snapshots ports.SnapshotReader) (*grpc.ClientConn, *health.Server) {
	t.Helper()

	hs := health.NewServer()
	srv := NewServer(NewTankServiceHandler(snapshots), hs, nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	go srv.Serve(lis)
	t.Cleanup(func() {
		srv.GracefulStop()
	})

	conn, err := grpc.NewClient(
		lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn, hs
}

func TestGetReport(t *testing.T) {
	snapshots := &fakeSnapshots{
		report: json.RawMessage(`{"strategy":"segment","site":"tanque_alcaldes","day":{"net_pumped":167,"alerts":[]},"night":{}}`),
	}
	conn, _ := startTestServer(t, snapshots)
	client := NewTankServiceClient(conn)

	resp, err := client.GetReport(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}

	fields := resp.AsMap()
	if fields["site"] != "tanque_alcaldes" {
		t.Errorf("expected site tanque_alcaldes, got %v", fields["site"])
	}
	day, ok := fields["day"].(map[string]any)
	if !ok || day["net_pumped"] != 167.0 {
		t.Errorf("expected day net_pumped 167, got %v", fields["day"])
	}
	if night, ok := fields["night"].(map[string]any); !ok || len(night) != 0 {
		t.Errorf("expected empty night object, got %v", fields["night"])
	}
}

func TestGetSeries(t *testing.T) {
	snapshots := &fakeSnapshots{rows: []domain.SeriesRow{
		{Level: 1.2, Timestamp: "2025-03-10T08:00:00Z", Site: "tanque_alcaldes", LocalTime: "2025-03-10 02:00:00"},
		{Level: 1.3, Timestamp: "2025-03-10T09:00:00Z", Site: "tanque_alcaldes", LocalTime: "2025-03-10 03:00:00"},
	}}
	conn, _ := startTestServer(t, snapshots)
	client := NewTankServiceClient(conn)

	resp, err := client.GetSeries(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}

	rows := resp.AsMap()["rows"].([]any)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	last := rows[1].(map[string]any)
	if last["level"] != 1.3 || last["local_time"] != "2025-03-10 03:00:00" {
		t.Errorf("unexpected row %v", last)
	}
}

func TestSnapshotErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"unavailable", fmt.Errorf("%w: no such file", domain.ErrSnapshotUnavailable), codes.Unavailable},
		{"internal", errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, _ := startTestServer(t, &fakeSnapshots{err: tt.err})
			client := NewTankServiceClient(conn)

			_, err := client.GetReport(context.Background(), &emptypb.Empty{})
			if status.Code(err) != tt.code {
				t.Errorf("GetReport: expected %s, got %v", tt.code, err)
			}
			_, err = client.GetSeries(context.Background(), &emptypb.Empty{})
			if status.Code(err) != tt.code {
				t.Errorf("GetSeries: expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestHealthObserver(t *testing.T) {
	conn, hs := startTestServer(t, &fakeSnapshots{})
	observer := NewHealthObserver(hs)
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		return resp.Status
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING before the first cycle, got %s", got)
	}

	observer.ObserveCycle(ports.Cycle{}, nil)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING after a successful cycle, got %s", got)
	}

	observer.ObserveCycle(ports.Cycle{}, &domain.CycleError{Stage: domain.StageIngest, Err: domain.ErrSourceUnavailable})
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING after a source failure, got %s", got)
	}

	observer.ObserveCycle(ports.Cycle{}, &domain.CycleError{Stage: domain.StagePublish, Err: domain.ErrPublish})
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected publish failures to keep serving, got %s", got)
	}
}
