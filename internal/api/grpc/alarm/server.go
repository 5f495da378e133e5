package alarm

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/alarm-core/internal/collection"
	domain "github.com/oshokin/alarm-core/internal/domain/alarm"
	"github.com/oshokin/alarm-core/internal/logger"
	"github.com/oshokin/alarm-core/internal/notifier"
	pb "github.com/oshokin/alarm-core/internal/pb/v1"
)

// DefaultObserverBuffer is the number of payloads a Watch stream may lag behind.
const DefaultObserverBuffer = 64

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	Ingest(ctx context.Context, msg *domain.Message) (collection.Status, error)
	Acknowledge(ctx context.Context, ids []string, message string, actor *domain.Actor) ([]string, error)
	Shelve(ctx context.Context, coreID, message string, timeout time.Duration, actor *domain.Actor) (collection.ShelveStatus, error)
	Unshelve(ctx context.Context, ids []string) (bool, error)
	Get(ctx context.Context, coreID string) (*domain.Alarm, bool)
	List(ctx context.Context) []*domain.Alarm
	Dependencies(ctx context.Context, coreID string) []string
	Ancestors(ctx context.Context, coreID string) []string
	Counters(ctx context.Context) map[string]int
	Subscribe(ctx context.Context, o notifier.Observer) error
	Unsubscribe(o notifier.Observer)
}

// Server implements the AlarmCore gRPC API.
type Server struct {
	pb.UnimplementedAlarmCoreServer

	// service provides the business logic for alarm operations.
	service Service
	// observerBuffer is the channel capacity of each Watch stream.
	observerBuffer int
}

// Option configures a Server.
type Option func(*Server)

// WithObserverBuffer sets how many payloads a Watch stream may lag behind
// before payloads are dropped for it.
func WithObserverBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.observerBuffer = n
		}
	}
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service, opts ...Option) *Server {
	s := &Server{
		service:        service,
		observerBuffer: DefaultObserverBuffer,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Ingest applies one core message.
func (s *Server) Ingest(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	data, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode message: %v", err)
	}

	msg, err := domain.ParseMessage(data)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.service.Ingest(ctx, msg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return wrapperspb.String(string(result)), nil
}

// Acknowledge acknowledges alarms on behalf of an operator.
func (s *Server) Acknowledge(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	ids := stringsOf(req.GetFields()["ids"].GetListValue())
	if len(ids) == 0 {
		return nil, status.Error(codes.InvalidArgument, "ids are required")
	}

	message := req.GetFields()["message"].GetStringValue()
	if strings.TrimSpace(message) == "" {
		return nil, status.Error(codes.InvalidArgument, "message is required")
	}

	acknowledged, err := s.service.Acknowledge(ctx, ids, message, actorOf(req))
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to acknowledge alarms")
	}

	return stringList(acknowledged), nil
}

// Shelve shelves one alarm on behalf of an operator.
func (s *Server) Shelve(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	fields := req.GetFields()

	coreID := fields["id"].GetStringValue()
	if coreID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	message := fields["message"].GetStringValue()
	if strings.TrimSpace(message) == "" {
		return nil, status.Error(codes.InvalidArgument, "message is required")
	}

	var timeout time.Duration

	if raw := fields["timeout"].GetStringValue(); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid timeout: %v", err)
		}

		timeout = parsed
	}

	result, err := s.service.Shelve(ctx, coreID, message, timeout, actorOf(req))
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to shelve alarm")
	}

	return wrapperspb.String(string(result)), nil
}

// Unshelve unshelves the listed alarms.
func (s *Server) Unshelve(ctx context.Context, req *structpb.ListValue) (*wrapperspb.BoolValue, error) {
	ids := stringsOf(req)
	if len(ids) == 0 {
		return nil, status.Error(codes.InvalidArgument, "ids are required")
	}

	changed, err := s.service.Unshelve(ctx, ids)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to unshelve alarms")
	}

	return wrapperspb.Bool(changed), nil
}

// Get returns one alarm.
func (s *Server) Get(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	a, ok := s.service.Get(ctx, req.GetValue())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "alarm %q not found", req.GetValue())
	}

	return toStruct(a.ToMap())
}

// List returns every alarm.
func (s *Server) List(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	alarms := s.service.List(ctx)

	values := make([]any, 0, len(alarms))
	for _, a := range alarms {
		values = append(values, a.ToMap())
	}

	list, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode alarms: %v", err)
	}

	return list, nil
}

// Dependencies returns the id and every alarm it depends on.
func (s *Server) Dependencies(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	ids := s.service.Dependencies(ctx, req.GetValue())
	if ids == nil {
		return nil, status.Errorf(codes.NotFound, "alarm %q not found", req.GetValue())
	}

	return stringList(ids), nil
}

// Ancestors returns the id and every alarm that depends on it.
func (s *Server) Ancestors(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	ids := s.service.Ancestors(ctx, req.GetValue())
	if ids == nil {
		return nil, status.Errorf(codes.NotFound, "alarm %q not found", req.GetValue())
	}

	return stringList(ids), nil
}

// Counters returns the per-view counters.
func (s *Server) Counters(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	counters := s.service.Counters(ctx)

	fields := make(map[string]any, len(counters))
	for view, count := range counters {
		fields[view] = count
	}

	return toStruct(fields)
}

// Watch streams payloads to the caller until it disconnects. The first payload
// is a full snapshot.
func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	observer := newStreamObserver(s.observerBuffer)

	ctx = logger.WithKV(ctx, "observer", observer.ID())

	if err := s.service.Subscribe(ctx, observer); err != nil {
		s.service.Unsubscribe(observer)
		return status.Error(codes.Internal, "unable to subscribe")
	}

	defer s.service.Unsubscribe(observer)

	logger.Debug(ctx, "Observer subscribed")

	for {
		select {
		case <-ctx.Done():
			logger.Debug(ctx, "Observer left")
			return nil
		case payload := <-observer.payloads:
			message, err := structpb.NewStruct(payload.ToMap())
			if err != nil {
				return status.Errorf(codes.Internal, "encode payload: %v", err)
			}

			if err = stream.Send(message); err != nil {
				return err
			}
		}
	}
}

// actorOf reads the optional actor field of a request.
func actorOf(req *structpb.Struct) *domain.Actor {
	fields := req.GetFields()["actor"].GetStructValue().GetFields()
	if len(fields) == 0 {
		return nil
	}

	return &domain.Actor{
		Hostname: fields["hostname"].GetStringValue(),
		Username: fields["username"].GetStringValue(),
	}
}

// stringsOf returns the non-empty string elements of list.
func stringsOf(list *structpb.ListValue) []string {
	values := list.GetValues()

	result := make([]string, 0, len(values))
	for _, value := range values {
		if s := value.GetStringValue(); s != "" {
			result = append(result, s)
		}
	}

	return result
}

func stringList(values []string) *structpb.ListValue {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(values))}
	for _, value := range values {
		list.Values = append(list.Values, structpb.NewStringValue(value))
	}

	return list
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	result, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}

	return result, nil
}
