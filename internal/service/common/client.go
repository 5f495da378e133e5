//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/alarm-core/internal/config"
	"github.com/oshokin/alarm-core/internal/domain/alarm"
	pb "github.com/oshokin/alarm-core/internal/pb/v1"
)

// Client wraps the gRPC AlarmCore client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the alarm core.
	conn *grpc.ClientConn
	// api is the AlarmCore client interface.
	api pb.AlarmCoreClient

	// callTimeout is the default timeout for individual unary calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for unary calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errIDsRequired is returned when an operation needs at least one alarm id.
	errIDsRequired = errors.New("at least one alarm id must be provided")
	// errMessageRequired is returned when an operator action carries no message.
	errMessageRequired = errors.New("message must be provided")
)

// Dial establishes a gRPC connection to the alarm core.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial alarm core: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         pb.NewAlarmCoreClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Ingest sends one JSON-encoded core message and returns the ingestion status.
func (c *Client) Ingest(ctx context.Context, message []byte) (string, error) {
	request := new(structpb.Struct)
	if err := protojson.Unmarshal(message, request); err != nil {
		return "", fmt.Errorf("decode message: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.Ingest(callCtx, request)
	if err != nil {
		return "", fmt.Errorf("ingest: %w", err)
	}

	return response.GetValue(), nil
}

// Acknowledge acknowledges alarms and returns the ids that moved to acknowledged.
func (c *Client) Acknowledge(ctx context.Context, ids []string, message string, actor *alarm.Actor) ([]string, error) {
	if len(ids) == 0 {
		return nil, errIDsRequired
	}

	if message == "" {
		return nil, errMessageRequired
	}

	request, err := structpb.NewStruct(map[string]any{
		"ids":     stringsToAny(ids),
		"message": message,
		"actor":   actorFields(actor),
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.Acknowledge(callCtx, request)
	if err != nil {
		return nil, fmt.Errorf("acknowledge: %w", err)
	}

	return listStrings(response), nil
}

// Shelve shelves one alarm. A zero timeout leaves the choice to the server.
func (c *Client) Shelve(
	ctx context.Context,
	coreID, message string,
	timeout time.Duration,
	actor *alarm.Actor,
) (string, error) {
	if message == "" {
		return "", errMessageRequired
	}

	fields := map[string]any{
		"id":      coreID,
		"message": message,
		"actor":   actorFields(actor),
	}

	if timeout > 0 {
		fields["timeout"] = timeout.String()
	}

	request, err := structpb.NewStruct(fields)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.Shelve(callCtx, request)
	if err != nil {
		return "", fmt.Errorf("shelve: %w", err)
	}

	return response.GetValue(), nil
}

// Unshelve unshelves alarms and reports whether any alarm changed.
func (c *Client) Unshelve(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, errIDsRequired
	}

	request, err := structpb.NewList(stringsToAny(ids))
	if err != nil {
		return false, fmt.Errorf("encode request: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.Unshelve(callCtx, request)
	if err != nil {
		return false, fmt.Errorf("unshelve: %w", err)
	}

	return response.GetValue(), nil
}

// Get returns one alarm.
func (c *Client) Get(ctx context.Context, coreID string) (*structpb.Struct, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.Get(callCtx, wrapperspb.String(coreID))
	if err != nil {
		return nil, fmt.Errorf("get alarm %s: %w", coreID, err)
	}

	return response, nil
}

// List returns every alarm.
func (c *Client) List(ctx context.Context) (*structpb.ListValue, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.List(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}

	return response, nil
}

// Dependencies returns the id followed by everything it depends on.
func (c *Client) Dependencies(ctx context.Context, coreID string) ([]string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.Dependencies(callCtx, wrapperspb.String(coreID))
	if err != nil {
		return nil, fmt.Errorf("dependencies of %s: %w", coreID, err)
	}

	return listStrings(response), nil
}

// Ancestors returns the id followed by everything that depends on it.
func (c *Client) Ancestors(ctx context.Context, coreID string) ([]string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.Ancestors(callCtx, wrapperspb.String(coreID))
	if err != nil {
		return nil, fmt.Errorf("ancestors of %s: %w", coreID, err)
	}

	return listStrings(response), nil
}

// Counters returns the active alarm count of each view.
func (c *Client) Counters(ctx context.Context) (map[string]int, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.Counters(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("counters: %w", err)
	}

	counters := make(map[string]int, len(response.GetFields()))
	for view, value := range response.GetFields() {
		counters[view] = int(value.GetNumberValue())
	}

	return counters, nil
}

// Watch streams payloads to handle until ctx is done, the server closes the
// stream or handle returns an error. No call timeout applies.
func (c *Client) Watch(ctx context.Context, handle func(*structpb.Struct) error) error {
	stream, err := c.api.Watch(ctx, new(emptypb.Empty))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	for {
		payload, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("receive payload: %w", err)
		}

		if err = handle(payload); err != nil {
			return err
		}
	}
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

func actorFields(actor *alarm.Actor) map[string]any {
	if actor == nil {
		return map[string]any{}
	}

	return map[string]any{
		"hostname": actor.Hostname,
		"username": actor.Username,
	}
}

func stringsToAny(values []string) []any {
	result := make([]any, 0, len(values))
	for _, value := range values {
		result = append(result, value)
	}

	return result
}

func listStrings(list *structpb.ListValue) []string {
	result := make([]string, 0, len(list.GetValues()))
	for _, value := range list.GetValues() {
		result = append(result, value.GetStringValue())
	}

	return result
}
