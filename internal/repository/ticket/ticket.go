package ticket

import (
	"errors"
	"time"

	"github.com/oshokin/alarm-core/internal/domain/alarm"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	// StatusOpen means the alarm is set and nobody acknowledged it yet.
	StatusOpen Status = "open"
	// StatusCleared means the alarm cleared before it was acknowledged.
	StatusCleared Status = "cleared"
	// StatusAcknowledged means an operator acknowledged the ticket.
	StatusAcknowledged Status = "acknowledged"
)

// Results of acknowledging a single alarm.
const (
	ResultSolved  = "solved"
	ResultIgnored = "ignored-ticket-ack"
)

// ErrEmptyMessage is returned when an acknowledgement carries no message.
var ErrEmptyMessage = errors.New("acknowledgement message must not be empty")

// Ticket is the acknowledgement record of an alarm.
type Ticket struct {
	AlarmID        string       `json:"alarm_id"`
	Status         Status       `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	ClearedAt      time.Time    `json:"cleared_at,omitzero"`
	AcknowledgedAt time.Time    `json:"acknowledged_at,omitzero"`
	Message        string       `json:"message,omitempty"`
	Actor          *alarm.Actor `json:"actor,omitempty"`
}

// Pending reports whether the ticket still waits for acknowledgement.
func (t *Ticket) Pending() bool {
	return t.Status != StatusAcknowledged
}

// Clone returns a copy of the ticket.
func (t *Ticket) Clone() *Ticket {
	cloned := *t
	cloned.Actor = t.Actor.Clone()

	return &cloned
}
