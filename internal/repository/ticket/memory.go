package ticket

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/alarm-core/internal/domain/alarm"
)

// Memory keeps tickets in process memory.
type Memory struct {
	now func() time.Time

	mu      sync.Mutex
	tickets map[string][]*Ticket
}

// MemoryOption configures a Memory registry.
type MemoryOption func(*Memory)

// WithClock replaces the wall clock used for ticket timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory registry.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		now:     time.Now,
		tickets: make(map[string][]*Ticket),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// IsAcknowledged reports whether coreID has no ticket waiting for acknowledgement.
func (m *Memory) IsAcknowledged(_ context.Context, coreID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pending(coreID) == nil, nil
}

// OpenTicket opens a ticket for coreID unless one is already waiting.
// A ticket that was cleared is opened again.
func (m *Memory) OpenTicket(_ context.Context, coreID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t := m.pending(coreID); t != nil {
		t.Status = StatusOpen
		return nil
	}

	m.tickets[coreID] = append(m.tickets[coreID], &Ticket{
		AlarmID:   coreID,
		Status:    StatusOpen,
		CreatedAt: m.now(),
	})

	return nil
}

// ClearTicket marks the open ticket of coreID as cleared.
func (m *Memory) ClearTicket(_ context.Context, coreID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t := m.pending(coreID); t != nil && t.Status == StatusOpen {
		t.Status = StatusCleared
		t.ClearedAt = m.now()
	}

	return nil
}

// Acknowledge closes the waiting tickets of ids with message and returns the
// result per id.
func (m *Memory) Acknowledge(_ context.Context, ids []string, message string, actor *alarm.Actor) (map[string]string, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	results := make(map[string]string, len(ids))

	for _, id := range ids {
		t := m.pending(id)
		if t == nil {
			results[id] = ResultIgnored
			continue
		}

		t.Status = StatusAcknowledged
		t.AcknowledgedAt = m.now()
		t.Message = message
		t.Actor = actor.Clone()
		results[id] = ResultSolved
	}

	return results, nil
}

// Tickets returns the tickets of coreID, oldest first.
func (m *Memory) Tickets(_ context.Context, coreID string) ([]*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*Ticket, 0, len(m.tickets[coreID]))
	for _, t := range m.tickets[coreID] {
		result = append(result, t.Clone())
	}

	return result, nil
}

// pending returns the latest ticket of coreID if it still waits for acknowledgement.
func (m *Memory) pending(coreID string) *Ticket {
	tickets := m.tickets[coreID]
	if len(tickets) == 0 {
		return nil
	}

	if latest := tickets[len(tickets)-1]; latest.Pending() {
		return latest
	}

	return nil
}
