package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// AlarmCoreClient is the client API of the service.
type AlarmCoreClient interface {
	Ingest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Acknowledge(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Shelve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Unshelve(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	List(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Dependencies(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Ancestors(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
	Counters(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	Watch(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type alarmCoreClient struct {
	cc grpc.ClientConnInterface
}

// NewAlarmCoreClient creates a client on cc.
//
//nolint:ireturn // Mirrors the shape of generated gRPC clients.
func NewAlarmCoreClient(cc grpc.ClientConnInterface) AlarmCoreClient {
	return &alarmCoreClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *alarmCoreClient) Ingest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, IngestMethod, in, opts)
}

func (c *alarmCoreClient) Acknowledge(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, AcknowledgeMethod, in, opts)
}

func (c *alarmCoreClient) Shelve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, ShelveMethod, in, opts)
}

func (c *alarmCoreClient) Unshelve(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	return invoke[wrapperspb.BoolValue](ctx, c.cc, UnshelveMethod, in, opts)
}

func (c *alarmCoreClient) Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, GetMethod, in, opts)
}

func (c *alarmCoreClient) List(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, ListMethod, in, opts)
}

func (c *alarmCoreClient) Dependencies(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, DependenciesMethod, in, opts)
}

func (c *alarmCoreClient) Ancestors(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, AncestorsMethod, in, opts)
}

func (c *alarmCoreClient) Counters(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, CountersMethod, in, opts)
}

func (c *alarmCoreClient) Watch(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchMethod, opts...)
	if err != nil {
		return nil, err
	}

	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}

	if err = x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}

	if err = x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}

	return x, nil
}
