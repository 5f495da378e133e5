package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mitchellh/go-ps"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-core/internal/collection"
	"github.com/oshokin/alarm-core/internal/config"
	domain "github.com/oshokin/alarm-core/internal/domain/alarm"
	"github.com/oshokin/alarm-core/internal/metrics"
	"github.com/oshokin/alarm-core/internal/notifier"
	"github.com/oshokin/alarm-core/internal/repository/cdb"
	"github.com/oshokin/alarm-core/internal/repository/shelve"
	"github.com/oshokin/alarm-core/internal/repository/ticket"
)

var errTestProcesses = errors.New("test process list error")

// testService bundles a service with the registries behind it.
type testService struct {
	*service
	tickets *ticket.Memory
	shelves *shelve.Memory
	now     time.Time
}

func newTestService(t *testing.T) *testService {
	t.Helper()

	provider, err := cdb.New(cdb.Document{
		IASIOs: []cdb.IASIO{
			{ID: "temperature", Type: "ALARM", CanShelve: true},
			{ID: "wind", Type: "ALARM"},
			{ID: "weather", Type: "ALARM"},
		},
		Views: []cdb.View{{Name: "site", Alarms: []string{"temperature", "wind", "weather"}}},
	})
	require.NoError(t, err)

	ts := &testService{now: time.Unix(1_000, 0)}
	clock := func() time.Time { return ts.now }

	ts.tickets = ticket.NewMemory(ticket.WithClock(clock))
	ts.shelves = shelve.NewMemory(shelve.WithClock(clock))

	settings := &config.Config{ServerAddress: "127.0.0.1:0"}
	require.NoError(t, config.Validate(settings))

	ts.service, err = newService(context.Background(), settings, provider, ts.tickets, ts.shelves,
		metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)

	return ts
}

func alarmMessage(id, value string, deps ...string) *domain.Message {
	return &domain.Message{
		Value:                      value,
		ValueType:                  "ALARM",
		Mode:                       "OPERATIONAL",
		Validity:                   "RELIABLE",
		FullRunningID:              "(Converter-ID:CONVERTER)@(" + id + ":IASIO)",
		DependenciesFullRunningIDs: deps,
		SentToBsdbTStamp:           "2030-01-01T00:00:10.000",
	}
}

// TestNewService_InitialAlarms checks that CDB alarms are loaded cleared and unreliable.
func TestNewService_InitialAlarms(t *testing.T) {
	t.Parallel()

	ts := newTestService(t)

	alarms := ts.List(context.Background())
	require.Len(t, alarms, 3)

	for _, a := range alarms {
		require.Equal(t, domain.Cleared, a.Value)
		require.Equal(t, domain.Unreliable, a.Validity)
	}

	require.Equal(t, map[string]int{"site": 0}, ts.Counters(context.Background()))
}

// TestService_Ingest covers alarms, plain values and malformed alarms.
func TestService_Ingest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestService(t)

	result, err := ts.Ingest(ctx, alarmMessage("temperature", "SET_HIGH"))
	require.NoError(t, err)
	require.Equal(t, collection.StatusUpdated, result)
	require.Equal(t, map[string]int{"site": 1}, ts.Counters(ctx))

	result, err = ts.Ingest(ctx, alarmMessage("humidity", "SET_LOW"))
	require.NoError(t, err)
	require.Equal(t, collection.StatusCreated, result)

	value := alarmMessage("pressure", "1013")
	value.ValueType = "DOUBLE"

	result, err = ts.Ingest(ctx, value)
	require.NoError(t, err)
	require.Equal(t, collection.ValueCreated, result)

	bad := alarmMessage("temperature", "VERY_HIGH")

	_, err = ts.Ingest(ctx, bad)
	require.ErrorIs(t, err, domain.ErrUnknownValue)
}

// TestService_Acknowledge checks that acknowledged alarms close their tickets.
func TestService_Acknowledge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestService(t)
	actor := &domain.Actor{Hostname: "control-room", Username: "operator"}

	_, err := ts.Ingest(ctx, alarmMessage("wind", "SET_HIGH"))
	require.NoError(t, err)

	ack, err := ts.tickets.IsAcknowledged(ctx, "wind")
	require.NoError(t, err)
	require.False(t, ack)

	acknowledged, err := ts.Acknowledge(ctx, []string{"wind", "unknown"}, "checked on site", actor)
	require.NoError(t, err)
	require.Equal(t, []string{"wind"}, acknowledged)

	tickets, err := ts.tickets.Tickets(ctx, "wind")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.Equal(t, ticket.StatusAcknowledged, tickets[0].Status)
	require.Equal(t, "checked on site", tickets[0].Message)
	require.Equal(t, actor, tickets[0].Actor)

	// Nothing left to acknowledge.
	acknowledged, err = ts.Acknowledge(ctx, []string{"wind"}, "again", actor)
	require.NoError(t, err)
	require.Empty(t, acknowledged)
}

// TestService_Shelve covers shelving, registry failures and expiry.
func TestService_Shelve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestService(t)

	result, err := ts.Shelve(ctx, "wind", "maintenance", 0, nil)
	require.NoError(t, err)
	require.Equal(t, collection.NotAllowed, result)

	// The registry rejects an empty message, so the flag is never set.
	_, err = ts.Shelve(ctx, "temperature", " ", 0, nil)
	require.ErrorIs(t, err, errShelveNotAllowed)
	require.ErrorIs(t, err, shelve.ErrEmptyMessage)

	a, ok := ts.Get(ctx, "temperature")
	require.True(t, ok)
	require.False(t, a.Shelved)

	result, err = ts.Shelve(ctx, "temperature", "maintenance", time.Minute, nil)
	require.NoError(t, err)
	require.Equal(t, collection.Shelved, result)

	result, err = ts.Shelve(ctx, "temperature", "maintenance", time.Minute, nil)
	require.NoError(t, err)
	require.Equal(t, collection.AlreadyShelved, result)

	require.Zero(t, ts.checkShelves(ctx))

	ts.now = ts.now.Add(2 * time.Minute)

	require.Equal(t, 1, ts.checkShelves(ctx))

	a, ok = ts.Get(ctx, "temperature")
	require.True(t, ok)
	require.False(t, a.Shelved)
}

// hookedShelves runs onShelve while a registration is being written.
type hookedShelves struct {
	ShelveRegistry
	onShelve func()
}

func (h *hookedShelves) Shelve(
	ctx context.Context,
	coreID, message string,
	timeout time.Duration,
	actor *domain.Actor,
) error {
	h.onShelve()

	return h.ShelveRegistry.Shelve(ctx, coreID, message, timeout, actor)
}

// TestService_ShelveRacesExpiryCheck runs the expiry check concurrently with a
// shelve and checks that the collection and the registry agree afterwards.
func TestService_ShelveRacesExpiryCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestService(t)

	var checked sync.WaitGroup

	ts.service.shelves = &hookedShelves{
		ShelveRegistry: ts.shelves,
		onShelve: func() {
			checked.Add(1)

			go func() {
				defer checked.Done()

				ts.checkShelves(ctx)
			}()
		},
	}

	result, err := ts.Shelve(ctx, "temperature", "maintenance", time.Minute, nil)
	require.NoError(t, err)
	require.Equal(t, collection.Shelved, result)

	checked.Wait()

	a, ok := ts.Get(ctx, "temperature")
	require.True(t, ok)
	require.True(t, a.Shelved)

	shelved, err := ts.shelves.IsShelved(ctx, "temperature")
	require.NoError(t, err)
	require.True(t, shelved)

	// A shelved alarm that becomes active again opens no ticket.
	_, err = ts.Ingest(ctx, alarmMessage("temperature", "SET_HIGH"))
	require.NoError(t, err)

	acknowledged, err := ts.tickets.IsAcknowledged(ctx, "temperature")
	require.NoError(t, err)
	require.True(t, acknowledged)
}

// TestService_ShelveFlagFollowsRegistration checks that the collection is not
// marked shelved while the registration is still being written.
func TestService_ShelveFlagFollowsRegistration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestService(t)

	ts.service.shelves = &hookedShelves{
		ShelveRegistry: ts.shelves,
		onShelve: func() {
			a, ok := ts.alarms.Get("temperature")
			require.True(t, ok)
			require.False(t, a.Shelved)
			require.Empty(t, ts.alarms.ShelvedIDs())
		},
	}

	_, err := ts.Shelve(ctx, "temperature", " ", 0, nil)
	require.ErrorIs(t, err, errShelveNotAllowed)
	require.Empty(t, ts.alarms.ShelvedIDs())

	result, err := ts.Shelve(ctx, "temperature", "maintenance", 0, nil)
	require.NoError(t, err)
	require.Equal(t, collection.Shelved, result)
	require.Equal(t, []string{"temperature"}, ts.alarms.ShelvedIDs())
}

// TestService_Unshelve checks that registrations and flags are both removed.
func TestService_Unshelve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestService(t)

	_, err := ts.Shelve(ctx, "temperature", "maintenance", 0, nil)
	require.NoError(t, err)

	changed, err := ts.Unshelve(ctx, []string{"temperature"})
	require.NoError(t, err)
	require.True(t, changed)

	shelved, err := ts.shelves.IsShelved(ctx, "temperature")
	require.NoError(t, err)
	require.False(t, shelved)

	changed, err = ts.Unshelve(ctx, []string{"temperature"})
	require.NoError(t, err)
	require.False(t, changed)
}

// TestService_Queries checks the dependency walks.
func TestService_Queries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestService(t)

	_, err := ts.Ingest(ctx, alarmMessage("weather", "SET_LOW", "(temperature:IASIO)", "(wind:IASIO)"))
	require.NoError(t, err)

	require.Equal(t, []string{"weather", "temperature", "wind"}, ts.Dependencies(ctx, "weather"))
	require.Equal(t, []string{"wind", "weather"}, ts.Ancestors(ctx, "wind"))
	require.Nil(t, ts.Dependencies(ctx, "unknown"))
}

// recordingObserver keeps every payload it receives.
type recordingObserver struct {
	payloads []*notifier.Payload
}

func (o *recordingObserver) ID() string { return "recording" }

func (o *recordingObserver) Receive(_ context.Context, payload *notifier.Payload) error {
	o.payloads = append(o.payloads, payload)
	return nil
}

// TestService_Subscribe checks that a new observer gets a snapshot.
func TestService_Subscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ts := newTestService(t)
	observer := new(recordingObserver)

	require.NoError(t, ts.Subscribe(ctx, observer))
	require.Len(t, observer.payloads, 1)
	require.Equal(t, notifier.KindBroadcast, observer.payloads[0].Kind)
	require.Len(t, observer.payloads[0].Alarms, 3)
	require.Equal(t, 1, ts.notifier.Registry().Len())

	ts.Unsubscribe(observer)
	require.Zero(t, ts.notifier.Registry().Len())
}

// TestResolveListenAddress checks override and port extraction.
func TestResolveListenAddress(t *testing.T) {
	t.Parallel()

	addr, err := resolveListenAddress("example.org:50051", "")
	require.NoError(t, err)
	require.Equal(t, ":50051", addr)

	addr, err = resolveListenAddress("example.org:50051", "127.0.0.1:6000")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6000", addr)

	_, err = resolveListenAddress("", "")
	require.ErrorIs(t, err, ErrNoServerAddress)

	_, err = resolveListenAddress("no-port", "")
	require.Error(t, err)
}

// fakeProcess is a ps.Process with fixed fields.
type fakeProcess struct {
	pid        int
	executable string
}

func (p fakeProcess) Pid() int           { return p.pid }
func (p fakeProcess) PPid() int          { return 1 }
func (p fakeProcess) Executable() string { return p.executable }

// TestEnsureSingleInstance checks detection of a second server process.
func TestEnsureSingleInstance(t *testing.T) {
	t.Parallel()

	// Pid 0 belongs to the scheduler and is never a test process.
	others := func() ([]ps.Process, error) {
		return []ps.Process{
			fakeProcess{pid: 0, executable: "alarm-core-server"},
			fakeProcess{pid: 0, executable: "alarm-core"},
		}, nil
	}

	require.ErrorIs(t, ensureSingleInstance(others, "alarm-core-server"), errAlreadyRunning)
	require.NoError(t, ensureSingleInstance(others, "something-else"))

	failing := func() ([]ps.Process, error) { return nil, errTestProcesses }
	require.ErrorIs(t, ensureSingleInstance(failing, "alarm-core-server"), errTestProcesses)
}
