package collection

import (
	"maps"

	"github.com/oshokin/alarm-core/internal/domain/alarm"
)

// viewCounter counts, per view, the stored alarms that are set and unacknowledged.
//
// The counts are adjusted at the four places where an alarm can enter or leave
// that state; each adjustment receives the ack state from before the operation.
type viewCounter struct {
	counts map[string]int
}

func newViewCounter(names []string) *viewCounter {
	c := &viewCounter{}
	c.reset(names)

	return c
}

// reset zeroes every configured view.
func (c *viewCounter) reset(names []string) {
	c.counts = make(map[string]int, len(names))
	for _, name := range names {
		c.counts[name] = 0
	}
}

// onInsert counts a newly stored alarm.
func (c *viewCounter) onInsert(a *alarm.Alarm) {
	if a.IsSet() && !a.Ack {
		c.adjust(a.Views, 1)
	}
}

// onAcknowledge uncounts an alarm that moved from unacknowledged to acknowledged while set.
func (c *viewCounter) onAcknowledge(a *alarm.Alarm, wasAck bool) {
	if !wasAck && a.Ack && a.IsSet() {
		c.adjust(a.Views, -1)
	}
}

// onUnacknowledge counts an alarm that moved from acknowledged to unacknowledged while set.
func (c *viewCounter) onUnacknowledge(a *alarm.Alarm, wasAck bool) {
	if wasAck && !a.Ack && a.IsSet() {
		c.adjust(a.Views, 1)
	}
}

// onValueTransition follows a clear/set flip of an alarm whose ack state was wasAck.
func (c *viewCounter) onValueTransition(a *alarm.Alarm, wasAck bool, transition alarm.Transition) {
	if wasAck {
		return
	}

	switch transition {
	case alarm.ClearToSet:
		c.adjust(a.Views, 1)
	case alarm.SetToClear:
		c.adjust(a.Views, -1)
	case alarm.NoTransition:
	}
}

func (c *viewCounter) adjust(views []string, delta int) {
	for _, view := range views {
		c.counts[view] += delta
	}
}

func (c *viewCounter) snapshot() map[string]int {
	return maps.Clone(c.counts)
}
