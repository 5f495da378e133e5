package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified name of the service.
const ServiceName = "alarmcore.v1.AlarmCore"

// Full method names.
const (
	IngestMethod       = "/" + ServiceName + "/Ingest"
	AcknowledgeMethod  = "/" + ServiceName + "/Acknowledge"
	ShelveMethod       = "/" + ServiceName + "/Shelve"
	UnshelveMethod     = "/" + ServiceName + "/Unshelve"
	GetMethod          = "/" + ServiceName + "/Get"
	ListMethod         = "/" + ServiceName + "/List"
	DependenciesMethod = "/" + ServiceName + "/Dependencies"
	AncestorsMethod    = "/" + ServiceName + "/Ancestors"
	CountersMethod     = "/" + ServiceName + "/Counters"
	WatchMethod        = "/" + ServiceName + "/Watch"
)

// AlarmCoreServer is the server API of the service.
type AlarmCoreServer interface {
	// Ingest takes one core message (fullRunningId, valueType, value, mode,
	// iasValidity, sentToBsdbTStamp, depsFullRunningIds, props) and returns
	// the ingestion status.
	Ingest(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error)
	// Acknowledge takes {ids, message, actor} and returns the acknowledged ids.
	Acknowledge(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error)
	// Shelve takes {id, message, timeout, actor} and returns the shelve status.
	Shelve(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error)
	// Unshelve takes a list of ids and reports whether any alarm changed.
	Unshelve(ctx context.Context, req *structpb.ListValue) (*wrapperspb.BoolValue, error)
	// Get returns one alarm.
	Get(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	// List returns every alarm.
	List(ctx context.Context, req *emptypb.Empty) (*structpb.ListValue, error)
	// Dependencies returns the id and everything it depends on.
	Dependencies(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error)
	// Ancestors returns the id and everything that depends on it.
	Ancestors(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error)
	// Counters returns the per-view counters.
	Counters(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// Watch streams {kind, alarms, counters} payloads until the client leaves.
	Watch(req *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// UnimplementedAlarmCoreServer answers every method with codes.Unimplemented.
type UnimplementedAlarmCoreServer struct{}

func (UnimplementedAlarmCoreServer) Ingest(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Ingest not implemented")
}

func (UnimplementedAlarmCoreServer) Acknowledge(context.Context, *structpb.Struct) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Acknowledge not implemented")
}

func (UnimplementedAlarmCoreServer) Shelve(context.Context, *structpb.Struct) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Shelve not implemented")
}

func (UnimplementedAlarmCoreServer) Unshelve(context.Context, *structpb.ListValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Unshelve not implemented")
}

func (UnimplementedAlarmCoreServer) Get(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}

func (UnimplementedAlarmCoreServer) List(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method List not implemented")
}

func (UnimplementedAlarmCoreServer) Dependencies(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Dependencies not implemented")
}

func (UnimplementedAlarmCoreServer) Ancestors(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Ancestors not implemented")
}

func (UnimplementedAlarmCoreServer) Counters(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Counters not implemented")
}

func (UnimplementedAlarmCoreServer) Watch(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Error(codes.Unimplemented, "method Watch not implemented")
}

// ServiceDesc describes the service for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AlarmCoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ingest", Handler: unaryHandler(IngestMethod, AlarmCoreServer.Ingest)},
		{MethodName: "Acknowledge", Handler: unaryHandler(AcknowledgeMethod, AlarmCoreServer.Acknowledge)},
		{MethodName: "Shelve", Handler: unaryHandler(ShelveMethod, AlarmCoreServer.Shelve)},
		{MethodName: "Unshelve", Handler: unaryHandler(UnshelveMethod, AlarmCoreServer.Unshelve)},
		{MethodName: "Get", Handler: unaryHandler(GetMethod, AlarmCoreServer.Get)},
		{MethodName: "List", Handler: unaryHandler(ListMethod, AlarmCoreServer.List)},
		{MethodName: "Dependencies", Handler: unaryHandler(DependenciesMethod, AlarmCoreServer.Dependencies)},
		{MethodName: "Ancestors", Handler: unaryHandler(AncestorsMethod, AlarmCoreServer.Ancestors)},
		{MethodName: "Counters", Handler: unaryHandler(CountersMethod, AlarmCoreServer.Counters)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "alarmcore/v1/alarmcore.proto",
}

// RegisterAlarmCoreServer registers srv on s.
func RegisterAlarmCoreServer(s grpc.ServiceRegistrar, srv AlarmCoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unaryHandler adapts a typed server method to grpc.MethodHandler.
func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(AlarmCoreServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(AlarmCoreServer)

		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			typed, _ := req.(*Req)
			return call(server, ctx, typed)
		}

		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	server, _ := srv.(AlarmCoreServer)

	return server.Watch(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}
