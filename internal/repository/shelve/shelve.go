package shelve

import (
	"errors"
	"time"

	"github.com/oshokin/alarm-core/internal/domain/alarm"
)

// DefaultTimeout is how long a shelve lasts when the request does not say.
const DefaultTimeout = 2 * time.Hour

// ErrEmptyMessage is returned when a shelve request carries no message.
var ErrEmptyMessage = errors.New("shelve message must not be empty")

// Registration records who shelved an alarm, why and until when.
type Registration struct {
	AlarmID   string       `json:"alarm_id"`
	Message   string       `json:"message"`
	ShelvedAt time.Time    `json:"shelved_at"`
	Timeout   Duration     `json:"timeout"`
	Actor     *alarm.Actor `json:"actor,omitempty"`
}

// ExpiresAt returns when the registration stops being active.
func (r *Registration) ExpiresAt() time.Time {
	return r.ShelvedAt.Add(time.Duration(r.Timeout))
}

// Duration is a time.Duration encoded as a string such as "2h0m0s" in JSON.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(parsed)

	return nil
}
