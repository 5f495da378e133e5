package collection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oshokin/alarm-core/internal/domain/alarm"
	"github.com/oshokin/alarm-core/internal/logger"
)

// UpdateStatus is the detailed outcome of Add.
type UpdateStatus int

const (
	// Created means the alarm was not known and has been stored.
	Created UpdateStatus = iota
	// UpdatedDifferent means a newer record changed at least one compared field.
	UpdatedDifferent
	// UpdatedEqual means a newer record was merged without changing compared fields.
	UpdatedEqual
	// IgnoredOld means the record was not newer than the stored one.
	IgnoredOld
)

// String returns a readable name of the status.
func (s UpdateStatus) String() string {
	switch s {
	case Created:
		return "created"
	case UpdatedDifferent:
		return "updated-different"
	case UpdatedEqual:
		return "updated-equal"
	case IgnoredOld:
		return "ignored-old"
	default:
		return fmt.Sprintf("UpdateStatus(%d)", int(s))
	}
}

// Status is the caller-facing outcome of AddAndNotify.
type Status string

// Caller-facing ingestion statuses.
const (
	StatusCreated      Status = "created-alarm"
	StatusUpdated      Status = "updated-alarm"
	StatusIgnoredOld   Status = "ignored-old-alarm"
	ValueCreated       Status = "created-value"
	ValueUpdated       Status = "updated-value"
	ValueIgnoredOld    Status = "ignored-old-value"
	defaultMapCapacity        = 64
)

// ShelveStatus is the outcome of Shelve.
type ShelveStatus string

// Shelve outcomes.
const (
	Shelved        ShelveStatus = "shelved"
	AlreadyShelved ShelveStatus = "already-shelved"
	NotAllowed     ShelveStatus = "not-allowed"
)

// errCounterMismatch is returned by CheckCounters when the counters drifted from the table.
var errCounterMismatch = errors.New("view counter does not match the alarm table")

// Collection is the alarm store.
type Collection struct {
	config  ConfigProvider
	tickets TicketProvider
	shelves ShelveProvider
	views   ViewProvider
	now     func() time.Time

	// mu is held for the whole duration of every mutation.
	mu      sync.RWMutex
	alarms  map[string]*alarm.Alarm
	values  map[string]*alarm.IASValue
	parents *dependencyIndex
	counter *viewCounter
	changes *changeLog
}

// Option configures a Collection.
type Option func(*Collection)

// WithClock replaces the wall clock used for validity recomputation.
func WithClock(now func() time.Time) Option {
	return func(c *Collection) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty collection wired to its providers.
func New(config ConfigProvider, tickets TicketProvider, shelves ShelveProvider, views ViewProvider, opts ...Option) *Collection {
	c := &Collection{
		config:  config,
		tickets: tickets,
		shelves: shelves,
		views:   views,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.reset()

	return c
}

// Initialize resets the store and creates every alarm the ConfigProvider knows about.
// Configured alarms start cleared, in unknown mode and unreliable.
func (c *Collection) Initialize(ctx context.Context) error {
	definitions, err := c.config.InitialAlarms(ctx)
	if err != nil {
		return fmt.Errorf("list initial alarms: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.reset()

	timestamp := c.now().UnixMilli()
	for _, definition := range definitions {
		c.add(ctx, &alarm.Alarm{
			CoreID:        definition.CoreID,
			RunningID:     alarm.RunningIDFor(definition.CoreID),
			Value:         alarm.Cleared,
			Mode:          alarm.ModeUnknown,
			Validity:      alarm.Unreliable,
			CoreTimestamp: timestamp,
			Description:   definition.Description,
			URL:           definition.URL,
			Sound:         definition.Sound,
			CanShelve:     definition.CanShelve,
		})
	}

	logger.InfoKV(ctx, "Alarm collection initialized", "alarms", len(c.alarms))

	return nil
}

// Reset drops every alarm and value and zeroes the counters.
func (c *Collection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reset()
}

func (c *Collection) reset() {
	c.alarms = make(map[string]*alarm.Alarm, defaultMapCapacity)
	c.values = make(map[string]*alarm.IASValue, defaultMapCapacity)
	c.parents = newDependencyIndex()
	c.counter = newViewCounter(c.viewNames())
	c.changes = newChangeLog()
}

// Add stores a new alarm or merges a newer record into the stored one.
func (c *Collection) Add(ctx context.Context, a *alarm.Alarm) UpdateStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, _ := c.add(ctx, a)

	return status
}

// AddAndNotify behaves like Add and also logs the change for the next
// notification pass when the alarm was created or changed.
func (c *Collection) AddAndNotify(ctx context.Context, a *alarm.Alarm) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, touched := c.add(ctx, a)

	switch status {
	case Created:
		c.changes.add(a.CoreID)
		return StatusCreated
	case UpdatedDifferent:
		c.changes.add(a.CoreID)
		c.changes.add(touched...)

		return StatusUpdated
	case UpdatedEqual:
		return StatusUpdated
	default:
		return StatusIgnoredOld
	}
}

// add returns the status and the ids of other alarms whose ack state the
// operation changed.
func (c *Collection) add(ctx context.Context, incoming *alarm.Alarm) (UpdateStatus, []string) {
	incoming = incoming.Clone()
	incoming.Dependencies = c.cleanDependencies(ctx, incoming.CoreID, incoming.Dependencies)

	stored, ok := c.alarms[incoming.CoreID]
	if !ok {
		c.create(ctx, incoming)

		logger.DebugKV(ctx, "Alarm created", "core_id", incoming.CoreID, "value", incoming.Value.String())

		return Created, nil
	}

	wasAck := stored.Ack

	change := stored.Update(incoming)
	if change.Result == alarm.MergeIgnored {
		return IgnoredOld, nil
	}

	if change.DependenciesChanged {
		c.parents.replace(stored.CoreID, change.PreviousDependencies, stored.Dependencies)
	}

	var touched []string

	switch change.Transition {
	case alarm.ClearToSet:
		c.counter.onValueTransition(stored, wasAck, change.Transition)
		touched = c.unacknowledge(ctx, stored, make(map[string]struct{}))
	case alarm.SetToClear:
		c.counter.onValueTransition(stored, wasAck, change.Transition)
		c.clearTicket(ctx, stored.CoreID)
	case alarm.NoTransition:
	}

	touched = slices.DeleteFunc(touched, func(id string) bool { return id == stored.CoreID })

	if change.Result == alarm.MergeDifferent {
		return UpdatedDifferent, touched
	}

	return UpdatedEqual, touched
}

// create stores an alarm that was not known yet.
func (c *Collection) create(ctx context.Context, a *alarm.Alarm) {
	a.Shelved = c.isShelved(ctx, a.CoreID)

	if a.IsSet() {
		a.Ack = false

		if !a.Shelved {
			c.openTicket(ctx, a.CoreID)
		}
	} else {
		a.Ack = c.isAcknowledged(ctx, a.CoreID)
	}

	a.Views = c.viewsOf(a.CoreID)
	a.Stored = true

	c.alarms[a.CoreID] = a
	c.parents.add(a.CoreID, a.Dependencies)
	c.counter.onInsert(a)
}

// cleanDependencies drops self references, duplicates, ids that are not stored
// and dependencies that would close a cycle back to coreID.
func (c *Collection) cleanDependencies(ctx context.Context, coreID string, dependencies []string) []string {
	if len(dependencies) == 0 {
		return nil
	}

	result := make([]string, 0, len(dependencies))
	seen := make(map[string]struct{}, len(dependencies))

	for _, dependency := range dependencies {
		if dependency == coreID {
			continue
		}

		if _, ok := seen[dependency]; ok {
			continue
		}

		if _, ok := c.alarms[dependency]; !ok {
			continue
		}

		if c.dependsOn(dependency, coreID) {
			logger.WarnKV(ctx, "Cyclic dependency rejected", "core_id", coreID, "dependency", dependency)
			continue
		}

		seen[dependency] = struct{}{}
		result = append(result, dependency)
	}

	return result
}

// dependsOn reports whether target is reachable from start through dependency lists.
func (c *Collection) dependsOn(start, target string) bool {
	visited := make(map[string]struct{})
	stack := []string{start}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if id == target {
			return true
		}

		if _, ok := visited[id]; ok {
			continue
		}

		visited[id] = struct{}{}

		if a, ok := c.alarms[id]; ok {
			stack = append(stack, a.Dependencies...)
		}
	}

	return false
}

// AddValue stores a new IASValue or overwrites the stored one with a newer record.
func (c *Collection) AddValue(ctx context.Context, v *alarm.IASValue) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.values[v.CoreID]
	if !ok {
		c.values[v.CoreID] = v.Clone()

		logger.DebugKV(ctx, "Value created", "core_id", v.CoreID)

		return ValueCreated
	}

	if stored.Update(v) == alarm.MergeIgnored {
		return ValueIgnoredOld
	}

	return ValueUpdated
}

// Get returns a copy of the stored alarm.
func (c *Collection) Get(coreID string) (*alarm.Alarm, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.alarms[coreID]
	if !ok {
		return nil, false
	}

	return a.Clone(), true
}

// GetAll returns copies of every stored alarm ordered by core id.
func (c *Collection) GetAll() []*alarm.Alarm {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.all()
}

func (c *Collection) all() []*alarm.Alarm {
	result := make([]*alarm.Alarm, 0, len(c.alarms))
	for _, a := range c.alarms {
		result = append(result, a.Clone())
	}

	slices.SortFunc(result, func(x, y *alarm.Alarm) int {
		switch {
		case x.CoreID < y.CoreID:
			return -1
		case x.CoreID > y.CoreID:
			return 1
		default:
			return 0
		}
	})

	return result
}

// GetValue returns a copy of the stored IASValue.
func (c *Collection) GetValue(coreID string) (*alarm.IASValue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[coreID]
	if !ok {
		return nil, false
	}

	return v.Clone(), true
}

// Counters returns a copy of the per-view counters.
func (c *Collection) Counters() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.counter.snapshot()
}

// Len returns the number of stored alarms.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.alarms)
}

// Pending returns the number of ids waiting for the next notification pass.
func (c *Collection) Pending() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.changes.len()
}

// DrainChanges empties the change log and returns the changed alarms with the
// current counters. It reports false when nothing changed.
func (c *Collection) DrainChanges() ([]*alarm.Alarm, map[string]int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.changes.len() == 0 {
		return nil, nil, false
	}

	ids := c.changes.drain()
	result := make([]*alarm.Alarm, 0, len(ids))

	for _, id := range ids {
		if a, ok := c.alarms[id]; ok {
			result = append(result, a.Clone())
		}
	}

	return result, c.counter.snapshot(), true
}

// Snapshot recomputes the validity of every alarm and returns copies of all
// alarms with the current counters.
func (c *Collection) Snapshot() ([]*alarm.Alarm, map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recomputeValidity()

	return c.all(), c.counter.snapshot()
}

// UpdateAllValidity downgrades every alarm not refreshed within the validity threshold.
func (c *Collection) UpdateAllValidity() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recomputeValidity()
}

func (c *Collection) recomputeValidity() {
	now := c.now()
	threshold := c.config.ValidityThreshold()

	for _, a := range c.alarms {
		a.RecomputeValidity(now, threshold)
	}
}

// ShelvedIDs returns the ids of every shelved alarm.
func (c *Collection) ShelvedIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string

	for id, a := range c.alarms {
		if a.Shelved {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	return ids
}

// CheckCounters recomputes the counters from the alarm table and returns an
// error describing every view whose incremental count differs.
func (c *Collection) CheckCounters() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expected := make(map[string]int, len(c.counter.counts))
	for name := range c.counter.counts {
		expected[name] = 0
	}

	for _, a := range c.alarms {
		if a.IsSet() && !a.Ack {
			for _, view := range a.Views {
				expected[view]++
			}
		}
	}

	var errs []error

	for view, want := range expected {
		if got := c.counter.counts[view]; got != want {
			errs = append(errs, fmt.Errorf("%w: view %q counts %d, table has %d", errCounterMismatch, view, got, want))
		}
	}

	return errors.Join(errs...)
}

func (c *Collection) viewNames() []string {
	if c.views == nil {
		return nil
	}

	return c.views.ViewNames()
}

func (c *Collection) viewsOf(coreID string) []string {
	if c.views == nil {
		return nil
	}

	views := slices.Clone(c.views.ViewsOf(coreID))
	slices.Sort(views)

	return slices.Compact(views)
}
