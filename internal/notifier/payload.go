package notifier

import (
	"github.com/oshokin/alarm-core/internal/domain/alarm"
)

// Kind tells an observer how to apply a payload.
type Kind string

const (
	// KindChanges carries only the alarms changed since the previous pass.
	KindChanges Kind = "changes"
	// KindBroadcast carries every stored alarm and replaces the observer's view.
	KindBroadcast Kind = "broadcast"
)

// Payload is what observers receive.
type Payload struct {
	Kind     Kind
	Alarms   []*alarm.Alarm
	Counters map[string]int
}

// ToMap renders the payload as a JSON-friendly map.
func (p *Payload) ToMap() map[string]any {
	alarms := make([]any, 0, len(p.Alarms))
	for _, a := range p.Alarms {
		alarms = append(alarms, a.ToMap())
	}

	counters := make(map[string]any, len(p.Counters))
	for view, count := range p.Counters {
		counters[view] = count
	}

	return map[string]any{
		"kind":     string(p.Kind),
		"alarms":   alarms,
		"counters": counters,
	}
}
