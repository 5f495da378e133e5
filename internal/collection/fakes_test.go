package collection

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errTestProvider = errors.New("test provider error")

// fakeConfig is a ConfigProvider backed by a fixed list of definitions.
type fakeConfig struct {
	definitions []Definition
	threshold   time.Duration
	err         error
}

func (f *fakeConfig) InitialAlarms(context.Context) ([]Definition, error) {
	return f.definitions, f.err
}

func (f *fakeConfig) RefreshRate() time.Duration { return 3 * time.Second }

func (f *fakeConfig) ValidityThreshold() time.Duration {
	if f.threshold == 0 {
		return 10 * time.Second
	}

	return f.threshold
}

// fakeTickets records ticket calls and answers IsAcknowledged from a map.
type fakeTickets struct {
	mu      sync.Mutex
	acked   map[string]bool
	opened  []string
	cleared []string
	err     error
}

func (f *fakeTickets) IsAcknowledged(_ context.Context, coreID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return false, f.err
	}

	ack, ok := f.acked[coreID]
	if !ok {
		return true, nil
	}

	return ack, nil
}

func (f *fakeTickets) OpenTicket(_ context.Context, coreID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.opened = append(f.opened, coreID)

	return f.err
}

func (f *fakeTickets) ClearTicket(_ context.Context, coreID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cleared = append(f.cleared, coreID)

	return f.err
}

func (f *fakeTickets) openedFor(coreID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0

	for _, id := range f.opened {
		if id == coreID {
			count++
		}
	}

	return count
}

// fakeShelves answers IsShelved from a set.
type fakeShelves struct {
	shelved map[string]bool
	err     error
}

func (f *fakeShelves) IsShelved(_ context.Context, coreID string) (bool, error) {
	return f.shelved[coreID], f.err
}

// fakeViews maps alarms to views.
type fakeViews struct {
	membership map[string][]string
	names      []string
}

func (f *fakeViews) ViewsOf(coreID string) []string { return f.membership[coreID] }

func (f *fakeViews) ViewNames() []string { return f.names }

type fixture struct {
	collection *Collection
	config     *fakeConfig
	tickets    *fakeTickets
	shelves    *fakeShelves
	views      *fakeViews
	now        time.Time
}

func newFixture() *fixture {
	f := &fixture{
		config:  new(fakeConfig),
		tickets: &fakeTickets{acked: make(map[string]bool)},
		shelves: &fakeShelves{shelved: make(map[string]bool)},
		views: &fakeViews{
			membership: make(map[string][]string),
			names:      []string{"weather", "antennas"},
		},
		now: time.UnixMilli(100_000),
	}

	f.collection = New(f.config, f.tickets, f.shelves, f.views, WithClock(func() time.Time { return f.now }))

	return f
}
