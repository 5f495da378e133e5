package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-core/internal/config"
	"github.com/oshokin/alarm-core/internal/domain/alarm"
	"github.com/oshokin/alarm-core/internal/logger"
	"github.com/oshokin/alarm-core/internal/service/common"
)

// Options configures how the client reaches the alarm core.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// ServerAddress overrides server address from config when specified.
	ServerAddress string

	// Output receives the command results, os.Stdout when nil.
	Output io.Writer
}

// defaultRetryInterval defines the delay between ingest attempts while the core is unavailable.
const defaultRetryInterval = 1 * time.Second

// Session is a connected client that prints results as JSON.
type Session struct {
	client *common.Client
	actor  *alarm.Actor
	out    io.Writer
}

// Connect loads settings, detects the actor and dials the alarm core.
func Connect(ctx context.Context, opts *Options) (*Session, error) {
	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	// Use server address from options if provided, otherwise use config.
	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	// Identify current user and hostname for the audit trail.
	actor, err := common.DetectActor()
	if err != nil {
		return nil, err
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	logger.DebugKV(ctx, "Connected to alarm core", "server_address", serverAddress, "actor", actor.String())

	return &Session{
		client: client,
		actor:  actor,
		out:    out,
	}, nil
}

// Close releases the connection.
func (s *Session) Close() error {
	return s.client.Close()
}

// Ingest sends every message read from r. The input is either a stream of
// JSON objects or a JSON array of them. With retry set, a message is resent
// while the core is unavailable.
func (s *Session) Ingest(ctx context.Context, r io.Reader, retry bool) error {
	messages, err := readMessages(r)
	if err != nil {
		return err
	}

	for _, raw := range messages {
		msg, err := alarm.ParseMessage(raw)
		if err != nil {
			return err
		}

		result, err := s.ingest(ctx, raw, retry)
		if err != nil {
			return err
		}

		if err = s.print(map[string]any{"id": msg.CoreID(), "status": result}); err != nil {
			return err
		}
	}

	return nil
}

// ingest tries once and then on every tick until the core answers.
func (s *Session) ingest(ctx context.Context, raw []byte, retry bool) (string, error) {
	// attempt tries once to deliver the message, returns (completed, result, error).
	attempt := func() (bool, string, error) {
		result, err := s.client.Ingest(ctx, raw)
		if err == nil {
			return true, result, nil
		}

		if retry && status.Code(err) == codes.Unavailable {
			logger.ErrorKV(ctx, "Alarm core unavailable, retrying", "error", err)
			return false, "", nil
		}

		return false, "", err
	}

	if done, result, err := attempt(); err != nil || done {
		return result, err
	}

	ticker := time.NewTicker(defaultRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			if done, result, err := attempt(); err != nil || done {
				return result, err
			}
		}
	}
}

// Acknowledge acknowledges ids and prints the ids that moved to acknowledged.
func (s *Session) Acknowledge(ctx context.Context, ids []string, message string) error {
	acknowledged, err := s.client.Acknowledge(ctx, ids, message, s.actor)
	if err != nil {
		return err
	}

	return s.printStrings(acknowledged)
}

// Shelve shelves one alarm and prints the outcome.
func (s *Session) Shelve(ctx context.Context, coreID, message string, timeout time.Duration) error {
	result, err := s.client.Shelve(ctx, coreID, message, timeout, s.actor)
	if err != nil {
		return err
	}

	return s.print(map[string]any{"id": coreID, "status": result})
}

// Unshelve unshelves alarms and prints whether anything changed.
func (s *Session) Unshelve(ctx context.Context, ids []string) error {
	changed, err := s.client.Unshelve(ctx, ids)
	if err != nil {
		return err
	}

	return s.print(map[string]any{"changed": changed})
}

// Get prints one alarm.
func (s *Session) Get(ctx context.Context, coreID string) error {
	a, err := s.client.Get(ctx, coreID)
	if err != nil {
		return err
	}

	return s.write(a)
}

// List prints every alarm.
func (s *Session) List(ctx context.Context) error {
	alarms, err := s.client.List(ctx)
	if err != nil {
		return err
	}

	return s.write(alarms)
}

// Dependencies prints the id and everything it depends on.
func (s *Session) Dependencies(ctx context.Context, coreID string) error {
	ids, err := s.client.Dependencies(ctx, coreID)
	if err != nil {
		return err
	}

	return s.printStrings(ids)
}

// Ancestors prints the id and everything that depends on it.
func (s *Session) Ancestors(ctx context.Context, coreID string) error {
	ids, err := s.client.Ancestors(ctx, coreID)
	if err != nil {
		return err
	}

	return s.printStrings(ids)
}

// Counters prints the active alarm count of each view.
func (s *Session) Counters(ctx context.Context) error {
	counters, err := s.client.Counters(ctx)
	if err != nil {
		return err
	}

	fields := make(map[string]any, len(counters))
	for view, count := range counters {
		fields[view] = count
	}

	return s.print(fields)
}

// Watch prints every payload on one line until ctx is done.
func (s *Session) Watch(ctx context.Context) error {
	return s.client.Watch(ctx, func(payload *structpb.Struct) error {
		data, err := protojson.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}

		_, err = fmt.Fprintln(s.out, string(data))

		return err
	})
}

func (s *Session) print(fields map[string]any) error {
	message, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	return s.write(message)
}

func (s *Session) printStrings(values []string) error {
	items := make([]any, 0, len(values))
	for _, value := range values {
		items = append(items, value)
	}

	list, err := structpb.NewList(items)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	return s.write(list)
}

func (s *Session) write(message proto.Message) error {
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	_, err = fmt.Fprintln(s.out, string(data))

	return err
}

// readMessages splits the input into raw JSON messages.
func readMessages(r io.Reader) ([][]byte, error) {
	decoder := json.NewDecoder(r)

	var messages [][]byte

	for {
		var raw json.RawMessage

		err := decoder.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return messages, nil
		}

		if err != nil {
			return nil, fmt.Errorf("read messages: %w", err)
		}

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			messages = append(messages, trimmed)
			continue
		}

		var batch []json.RawMessage
		if err = json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("read messages: %w", err)
		}

		for _, item := range batch {
			messages = append(messages, item)
		}
	}
}
