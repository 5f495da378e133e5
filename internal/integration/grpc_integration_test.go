package integration

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-core/internal/config"
	"github.com/oshokin/alarm-core/internal/service/client"
	"github.com/oshokin/alarm-core/internal/service/common"
	"github.com/oshokin/alarm-core/internal/service/server"
)

const testCDB = `ias:
  refresh_rate: 1s
  validity_threshold: 5s
iasios:
  - id: child
    ias_type: ALARM
    short_desc: Child alarm
  - id: parent
    ias_type: ALARM
    can_shelve: true
    short_desc: Parent alarm
views:
  - name: main
    alarms: [child, parent]
`

// startCore starts the alarm core with a temporary config and CDB.
// Returns the settings path and a stop function that waits for Run to return.
func startCore(t *testing.T) (addr, cfgPath string, stop func()) {
	t.Helper()

	// Reserve a free port for the test server.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr = l.Addr().String()
	_ = l.Close()

	dir := t.TempDir()
	cdbPath := filepath.Join(dir, "cdb.yaml")
	cfgPath = filepath.Join(dir, "settings.yaml")

	require.NoError(t, os.WriteFile(cdbPath, []byte(testCDB), config.DefaultFilePermissions))
	require.NoError(t, config.Save(cfgPath, &config.Config{
		ServerAddress: addr,
		CDBFile:       cdbPath,
		Timeout:       time.Second,
		NotifyPeriod:  50 * time.Millisecond,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, &server.Options{ConfigPath: cfgPath, AllowMultiple: true})
	}()

	return addr, cfgPath, func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("alarm core did not stop")
		}
	}
}

// dial connects to the core and waits until it answers.
func dial(t *testing.T, addr string) *common.Client {
	t.Helper()

	c, err := common.Dial(context.Background(), addr, common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
	})

	require.Eventually(t, func() bool {
		_, err := c.List(context.Background())
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	return c
}

func message(id, value string, deps ...string) []byte {
	runningIDs := make([]string, 0, len(deps))
	for _, dep := range deps {
		runningIDs = append(runningIDs, fmt.Sprintf("%q", "(Converter-ID:CONVERTER)@("+dep+":IASIO)"))
	}

	return []byte(fmt.Sprintf(`{
		"value": %q,
		"valueType": "ALARM",
		"mode": "OPERATIONAL",
		"iasValidity": "RELIABLE",
		"fullRunningId": "(Converter-ID:CONVERTER)@(%s:IASIO)",
		"depsFullRunningIds": [%s],
		"sentToBsdbTStamp": %q
	}`, value, id, strings.Join(runningIDs, ","), time.Now().UTC().Add(time.Second).Format("2006-01-02T15:04:05.000")))
}

// TestGRPC_AcknowledgeCascade starts the real server and walks an alarm tree
// through ingestion, blocked and cascading acknowledgement and shelving.
func TestGRPC_AcknowledgeCascade(t *testing.T) {
	t.Parallel()

	addr, _, stop := startCore(t)
	defer stop()

	ctx := context.Background()
	c := dial(t, addr)
	actor, err := common.DetectActor()
	require.NoError(t, err)

	result, err := c.Ingest(ctx, message("child", "SET_HIGH"))
	require.NoError(t, err)
	require.Equal(t, "updated-alarm", result)

	result, err = c.Ingest(ctx, message("parent", "SET_LOW", "child"))
	require.NoError(t, err)
	require.Equal(t, "updated-alarm", result)

	counters, err := c.Counters(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"main": 2}, counters)

	deps, err := c.Dependencies(ctx, "parent")
	require.NoError(t, err)
	require.Equal(t, []string{"parent", "child"}, deps)

	ancestors, err := c.Ancestors(ctx, "child")
	require.NoError(t, err)
	require.Equal(t, []string{"child", "parent"}, ancestors)

	// The parent waits for its child.
	acknowledged, err := c.Acknowledge(ctx, []string{"parent"}, "looked at it", actor)
	require.NoError(t, err)
	require.Empty(t, acknowledged)

	acknowledged, err = c.Acknowledge(ctx, []string{"child"}, "fixed the cable", actor)
	require.NoError(t, err)
	require.Equal(t, []string{"child", "parent"}, acknowledged)

	parent, err := c.Get(ctx, "parent")
	require.NoError(t, err)
	require.True(t, parent.GetFields()["ack"].GetBoolValue())

	counters, err = c.Counters(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"main": 0}, counters)

	shelved, err := c.Shelve(ctx, "parent", "maintenance", time.Hour, actor)
	require.NoError(t, err)
	require.Equal(t, "shelved", shelved)

	shelved, err = c.Shelve(ctx, "child", "maintenance", 0, actor)
	require.NoError(t, err)
	require.Equal(t, "not-allowed", shelved)

	changed, err := c.Unshelve(ctx, []string{"parent"})
	require.NoError(t, err)
	require.True(t, changed)

	_, err = c.Get(ctx, "missing")
	require.Error(t, err)
}

// TestGRPC_Watch checks the snapshot on subscribe and the incremental payloads.
func TestGRPC_Watch(t *testing.T) {
	t.Parallel()

	addr, _, stop := startCore(t)
	defer stop()

	c := dial(t, addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payloads := make(chan *structpb.Struct, 16)
	watchDone := make(chan error, 1)

	go func() {
		watchDone <- c.Watch(ctx, func(payload *structpb.Struct) error {
			payloads <- payload
			return nil
		})
	}()

	first := receive(t, payloads)
	require.Equal(t, "broadcast", first.GetFields()["kind"].GetStringValue())
	require.Len(t, first.GetFields()["alarms"].GetListValue().GetValues(), 2)

	_, err := c.Ingest(context.Background(), message("child", "SET_CRITICAL"))
	require.NoError(t, err)

	// Skip broadcasts until the change arrives.
	for {
		payload := receive(t, payloads)
		if payload.GetFields()["kind"].GetStringValue() != "changes" {
			continue
		}

		alarms := payload.GetFields()["alarms"].GetListValue().GetValues()
		require.Len(t, alarms, 1)
		require.Equal(t, "child", alarms[0].GetStructValue().GetFields()["core_id"].GetStringValue())

		break
	}

	cancel()
	require.NoError(t, <-watchDone)
}

func receive(t *testing.T, payloads <-chan *structpb.Struct) *structpb.Struct {
	t.Helper()

	select {
	case payload := <-payloads:
		return payload
	case <-time.After(5 * time.Second):
		t.Fatal("no payload received")
		return nil
	}
}

// TestClientSession_Ingest drives the client commands against the real server.
func TestClientSession_Ingest(t *testing.T) {
	t.Parallel()

	addr, cfgPath, stop := startCore(t)
	defer stop()

	dial(t, addr)

	var out bytes.Buffer

	ctx := context.Background()

	session, err := client.Connect(ctx, &client.Options{ConfigPath: cfgPath, Output: &out})
	require.NoError(t, err)

	defer func() {
		_ = session.Close()
	}()

	input := "[" + string(message("child", "SET_MEDIUM")) + "," + string(message("orphan", "SET_LOW")) + "]"

	require.NoError(t, session.Ingest(ctx, strings.NewReader(input), false))
	require.Contains(t, out.String(), "updated-alarm")
	require.Contains(t, out.String(), "created-alarm")

	out.Reset()

	require.NoError(t, session.Counters(ctx))
	require.JSONEq(t, `{"main": 1}`, out.String())
}
