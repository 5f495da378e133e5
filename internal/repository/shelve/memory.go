package shelve

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/alarm-core/internal/domain/alarm"
)

// Memory keeps shelve registrations in process memory.
type Memory struct {
	now func() time.Time

	mu            sync.Mutex
	registrations map[string]*Registration
}

// MemoryOption configures a Memory registry.
type MemoryOption func(*Memory)

// WithClock replaces the wall clock used to stamp and expire registrations.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory registry.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:           time.Now,
		registrations: make(map[string]*Registration),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Shelve registers coreID as shelved for timeout. A non-positive timeout
// selects DefaultTimeout. Shelving again replaces the registration.
func (m *Memory) Shelve(_ context.Context, coreID, message string, timeout time.Duration, actor *alarm.Actor) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.registrations[coreID] = &Registration{
		AlarmID:   coreID,
		Message:   message,
		ShelvedAt: m.now(),
		Timeout:   Duration(timeout),
		Actor:     actor.Clone(),
	}

	return nil
}

// Unshelve drops the registrations of ids.
func (m *Memory) Unshelve(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.registrations, id)
	}

	return nil
}

// IsShelved reports whether coreID has an active registration.
func (m *Memory) IsShelved(_ context.Context, coreID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active(coreID) != nil, nil
}

// Registrations returns the active registrations ordered by alarm id.
func (m *Memory) Registrations(context.Context) ([]*Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*Registration, 0, len(m.registrations))

	for id := range m.registrations {
		if r := m.active(id); r != nil {
			cloned := *r
			result = append(result, &cloned)
		}
	}

	slices.SortFunc(result, func(a, b *Registration) int {
		return strings.Compare(a.AlarmID, b.AlarmID)
	})

	return result, nil
}

// active returns the registration of coreID and forgets it once expired.
func (m *Memory) active(coreID string) *Registration {
	r, ok := m.registrations[coreID]
	if !ok {
		return nil
	}

	if !m.now().Before(r.ExpiresAt()) {
		delete(m.registrations, coreID)
		return nil
	}

	return r
}
