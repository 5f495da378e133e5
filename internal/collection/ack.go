package collection

import (
	"context"

	"github.com/oshokin/alarm-core/internal/domain/alarm"
	"github.com/oshokin/alarm-core/internal/logger"
)

// Acknowledge acknowledges the given alarms and every ancestor whose
// dependencies all become acknowledged as a result. It returns the ids of the
// alarms that actually moved to acknowledged; those ids are also logged for
// the next notification pass.
func (c *Collection) Acknowledge(ctx context.Context, ids []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		acknowledged []string
		visited      = make(map[string]struct{})
	)

	for _, id := range ids {
		a, ok := c.alarms[id]
		if !ok {
			logger.DebugKV(ctx, "Acknowledge of unknown alarm skipped", "core_id", id)
			continue
		}

		acknowledged = c.acknowledge(a, visited, acknowledged)
	}

	c.changes.add(acknowledged...)

	if len(acknowledged) > 0 {
		logger.InfoKV(ctx, "Alarms acknowledged", "requested", ids, "acknowledged", acknowledged)
	}

	return acknowledged
}

// acknowledge walks upward from a. An alarm is expanded at most once per call,
// and only after its own dependencies were all found acknowledged, so a parent
// blocked by one child can still be reached later through another one.
func (c *Collection) acknowledge(a *alarm.Alarm, visited map[string]struct{}, acknowledged []string) []string {
	if _, ok := visited[a.CoreID]; ok {
		return acknowledged
	}

	if !c.dependenciesAcknowledged(a) {
		return acknowledged
	}

	visited[a.CoreID] = struct{}{}

	if !a.Ack {
		a.Ack = true
		c.counter.onAcknowledge(a, false)

		acknowledged = append(acknowledged, a.CoreID)
	}

	for _, parentID := range c.parents.of(a.CoreID) {
		if parent, ok := c.alarms[parentID]; ok {
			acknowledged = c.acknowledge(parent, visited, acknowledged)
		}
	}

	return acknowledged
}

func (c *Collection) dependenciesAcknowledged(a *alarm.Alarm) bool {
	for _, id := range a.Dependencies {
		if dependency, ok := c.alarms[id]; ok && !dependency.Ack {
			return false
		}
	}

	return true
}

// unacknowledge clears the ack flag of a and of every ancestor regardless of
// siblings, opening a ticket for each one that is not shelved. It returns the
// ids it visited.
func (c *Collection) unacknowledge(ctx context.Context, a *alarm.Alarm, visited map[string]struct{}) []string {
	if _, ok := visited[a.CoreID]; ok {
		return nil
	}

	visited[a.CoreID] = struct{}{}

	wasAck := a.Ack
	a.Ack = false
	c.counter.onUnacknowledge(a, wasAck)

	if !a.Shelved {
		c.openTicket(ctx, a.CoreID)
	}

	touched := []string{a.CoreID}

	for _, parentID := range c.parents.of(a.CoreID) {
		if parent, ok := c.alarms[parentID]; ok {
			touched = append(touched, c.unacknowledge(ctx, parent, visited)...)
		}
	}

	return touched
}

// Shelve marks a shelvable alarm as shelved.
func (c *Collection) Shelve(ctx context.Context, coreID string) ShelveStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.alarms[coreID]
	if !ok || !a.CanShelve {
		return NotAllowed
	}

	if a.Shelved {
		return AlreadyShelved
	}

	a.Shelved = true
	c.changes.add(coreID)

	logger.InfoKV(ctx, "Alarm shelved", "core_id", coreID)

	return Shelved
}

// Unshelve clears the shelved flag of the given alarms and reports whether any
// alarm changed.
func (c *Collection) Unshelve(ctx context.Context, ids []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false

	for _, id := range ids {
		a, ok := c.alarms[id]
		if !ok || !a.Shelved {
			continue
		}

		a.Shelved = false
		c.changes.add(id)

		changed = true

		logger.InfoKV(ctx, "Alarm unshelved", "core_id", id)
	}

	return changed
}

// Dependencies returns id followed by every alarm reachable through dependency
// lists, depth first. It returns nil for an unknown id.
func (c *Collection) Dependencies(coreID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.alarms[coreID]; !ok {
		return nil
	}

	return c.walk(coreID, func(id string) []string {
		if a, ok := c.alarms[id]; ok {
			return a.Dependencies
		}

		return nil
	})
}

// Ancestors returns id followed by every alarm that depends on it directly or
// transitively, depth first. It returns nil for an unknown id.
func (c *Collection) Ancestors(coreID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.alarms[coreID]; !ok {
		return nil
	}

	return c.walk(coreID, c.parents.of)
}

// ParentsIndex returns a copy of the child to parents index.
func (c *Collection) ParentsIndex() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.parents.snapshot()
}

func (c *Collection) walk(start string, next func(string) []string) []string {
	var (
		result  []string
		visited = make(map[string]struct{})
		visit   func(id string)
	)

	visit = func(id string) {
		if _, ok := visited[id]; ok {
			return
		}

		visited[id] = struct{}{}
		result = append(result, id)

		for _, child := range next(id) {
			visit(child)
		}
	}

	visit(start)

	return result
}

func (c *Collection) isAcknowledged(ctx context.Context, coreID string) bool {
	ack, err := c.tickets.IsAcknowledged(ctx, coreID)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to read ticket state", "core_id", coreID, "error", err)
		return false
	}

	return ack
}

func (c *Collection) isShelved(ctx context.Context, coreID string) bool {
	shelved, err := c.shelves.IsShelved(ctx, coreID)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to read shelve state", "core_id", coreID, "error", err)
		return false
	}

	return shelved
}

func (c *Collection) openTicket(ctx context.Context, coreID string) {
	if err := c.tickets.OpenTicket(ctx, coreID); err != nil {
		logger.ErrorKV(ctx, "Failed to open ticket", "core_id", coreID, "error", err)
	}
}

func (c *Collection) clearTicket(ctx context.Context, coreID string) {
	if err := c.tickets.ClearTicket(ctx, coreID); err != nil {
		logger.ErrorKV(ctx, "Failed to clear ticket", "core_id", coreID, "error", err)
	}
}
