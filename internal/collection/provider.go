package collection

import (
	"context"
	"time"
)

// Definition is the configured metadata of an alarm known before any event arrives.
type Definition struct {
	// CoreID identifies the alarm.
	CoreID string
	// Description is the short human description.
	Description string
	// URL points to the alarm documentation.
	URL string
	// Sound names the sound played when the alarm is set.
	Sound string
	// CanShelve tells whether operators may shelve the alarm.
	CanShelve bool
}

// ConfigProvider supplies the configured alarms and the timing parameters.
type ConfigProvider interface {
	InitialAlarms(ctx context.Context) ([]Definition, error)
	RefreshRate() time.Duration
	ValidityThreshold() time.Duration
}

// TicketProvider tracks acknowledgement tickets for alarms.
type TicketProvider interface {
	IsAcknowledged(ctx context.Context, coreID string) (bool, error)
	OpenTicket(ctx context.Context, coreID string) error
	ClearTicket(ctx context.Context, coreID string) error
}

// ShelveProvider tells whether an alarm is currently shelved.
type ShelveProvider interface {
	IsShelved(ctx context.Context, coreID string) (bool, error)
}

// ViewProvider maps alarms to the views whose counters they contribute to.
type ViewProvider interface {
	ViewsOf(coreID string) []string
	ViewNames() []string
}
