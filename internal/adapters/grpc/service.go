package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "tank.v1.TankService"

const (
	getReportMethod = "/" + ServiceName + "/GetReport"
	getSeriesMethod = "/" + ServiceName + "/GetSeries"
)

// TankServiceServer is the server API for TankService.
// Responses are google.protobuf.Struct mirrors of the JSON snapshots.
type TankServiceServer interface {
	GetReport(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	GetSeries(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterTankServiceServer registers srv on s
func RegisterTankServiceServer(s grpc.ServiceRegistrar, srv TankServiceServer) {
	s.RegisterService(&tankServiceDesc, srv)
}

var tankServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TankServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetReport", Handler: getReportHandler},
		{MethodName: "GetSeries", Handler: getSeriesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tank/v1/tank.proto",
}

func getReportHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TankServiceServer).GetReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getReportMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TankServiceServer).GetReport(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getSeriesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TankServiceServer).GetSeries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getSeriesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TankServiceServer).GetSeries(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// TankServiceClient is the client API for TankService
type TankServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTankServiceClient creates a client on an existing connection
func NewTankServiceClient(cc grpc.ClientConnInterface) *TankServiceClient {
	return &TankServiceClient{cc: cc}
}

func (c *TankServiceClient) GetReport(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getReportMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TankServiceClient) GetSeries(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getSeriesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
