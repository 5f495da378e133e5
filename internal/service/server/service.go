package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/alarm-core/internal/collection"
	domain "github.com/oshokin/alarm-core/internal/domain/alarm"
	"github.com/oshokin/alarm-core/internal/logger"
	"github.com/oshokin/alarm-core/internal/metrics"
	"github.com/oshokin/alarm-core/internal/notifier"
)

// TicketRegistry is the ticket store used by the server.
type TicketRegistry interface {
	collection.TicketProvider
	Acknowledge(ctx context.Context, ids []string, message string, actor *domain.Actor) (map[string]string, error)
}

// ShelveRegistry is the shelve store used by the server.
type ShelveRegistry interface {
	collection.ShelveProvider
	Shelve(ctx context.Context, coreID, message string, timeout time.Duration, actor *domain.Actor) error
	Unshelve(ctx context.Context, ids []string) error
}

// errShelveNotAllowed is returned when the registry rejects a shelve the collection accepted.
var errShelveNotAllowed = errors.New("shelve rejected by registry")

// service glues the alarm collection to the registries and the notifier.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	// alarms is the in-memory alarm store.
	alarms *collection.Collection
	// tickets keeps operator tickets.
	tickets TicketRegistry
	// shelves keeps shelve registrations with their timeout.
	shelves ShelveRegistry
	// notifier delivers changes to observers.
	notifier *notifier.Notifier
	// metrics records service activity; nil records nothing.
	metrics *metrics.Metrics
	// shelveTimeout is used when a shelve request carries no timeout.
	shelveTimeout time.Duration
	// shelveMu serialises Shelve, Unshelve and the expiry check so the
	// collection flag and the registry never disagree.
	shelveMu sync.Mutex
}

// Ingest stores one inbound message as an alarm or as a plain value.
func (s *service) Ingest(ctx context.Context, msg *domain.Message) (collection.Status, error) {
	var result collection.Status

	if msg.IsAlarm() {
		a, err := msg.Alarm()
		if err != nil {
			s.metrics.IngestFailed("invalid_alarm")
			return "", fmt.Errorf("convert alarm %s: %w", msg.FullRunningID, err)
		}

		result = s.alarms.AddAndNotify(ctx, a)
	} else {
		v, err := msg.IASValue()
		if err != nil {
			s.metrics.IngestFailed("invalid_value")
			return "", fmt.Errorf("convert value %s: %w", msg.FullRunningID, err)
		}

		result = s.alarms.AddValue(ctx, v)
	}

	s.metrics.Ingested(string(result))

	return result, nil
}

// Acknowledge acknowledges the alarms in the collection and closes the tickets
// of every alarm that actually moved to acknowledged.
func (s *service) Acknowledge(ctx context.Context, ids []string, message string, actor *domain.Actor) ([]string, error) {
	acknowledged := s.alarms.Acknowledge(ctx, ids)
	s.metrics.Acknowledged(len(acknowledged))

	if len(acknowledged) == 0 {
		return acknowledged, nil
	}

	results, err := s.tickets.Acknowledge(ctx, acknowledged, message, actor)
	if err != nil {
		return acknowledged, fmt.Errorf("acknowledge tickets: %w", err)
	}

	logger.DebugKV(ctx, "Tickets acknowledged", "results", results, "actor", actor)

	return acknowledged, nil
}

// Shelve records the registration and then shelves the alarm in the collection.
// The collection flag is only set once the registration exists.
func (s *service) Shelve(
	ctx context.Context,
	coreID, message string,
	timeout time.Duration,
	actor *domain.Actor,
) (collection.ShelveStatus, error) {
	if timeout <= 0 {
		timeout = s.shelveTimeout
	}

	s.shelveMu.Lock()
	defer s.shelveMu.Unlock()

	if result := s.shelveEligibility(coreID); result != collection.Shelved {
		s.metrics.ShelveRequested(string(result))
		return result, nil
	}

	if err := s.shelves.Shelve(ctx, coreID, message, timeout, actor); err != nil {
		return "", fmt.Errorf("%w: %w", errShelveNotAllowed, err)
	}

	result := s.alarms.Shelve(ctx, coreID)
	s.metrics.ShelveRequested(string(result))

	if result != collection.Shelved {
		if err := s.shelves.Unshelve(ctx, []string{coreID}); err != nil {
			logger.ErrorKV(ctx, "Failed to remove shelve registration", "core_id", coreID, "error", err)
		}

		return result, nil
	}

	logger.InfoKV(ctx, "Shelve registered", "core_id", coreID, "timeout", timeout.String(), "actor", actor)

	return result, nil
}

// shelveEligibility reports what the collection would answer to a shelve of coreID
// without changing it.
func (s *service) shelveEligibility(coreID string) collection.ShelveStatus {
	a, ok := s.alarms.Get(coreID)

	switch {
	case !ok || !a.CanShelve:
		return collection.NotAllowed
	case a.Shelved:
		return collection.AlreadyShelved
	default:
		return collection.Shelved
	}
}

// Unshelve removes the registrations and clears the shelved flags.
func (s *service) Unshelve(ctx context.Context, ids []string) (bool, error) {
	s.shelveMu.Lock()
	defer s.shelveMu.Unlock()

	if err := s.shelves.Unshelve(ctx, ids); err != nil {
		return false, fmt.Errorf("unshelve registrations: %w", err)
	}

	return s.alarms.Unshelve(ctx, ids), nil
}

// checkShelves unshelves every alarm whose registration expired and returns
// how many were unshelved.
func (s *service) checkShelves(ctx context.Context) int {
	s.shelveMu.Lock()
	defer s.shelveMu.Unlock()

	var expired []string

	for _, coreID := range s.alarms.ShelvedIDs() {
		shelved, err := s.shelves.IsShelved(ctx, coreID)
		if err != nil {
			logger.ErrorKV(ctx, "Failed to read shelve registration", "core_id", coreID, "error", err)
			continue
		}

		if !shelved {
			expired = append(expired, coreID)
		}
	}

	if len(expired) == 0 {
		return 0
	}

	s.alarms.Unshelve(ctx, expired)
	s.metrics.UnshelveExpired(len(expired))

	logger.InfoKV(ctx, "Expired shelves removed", "core_ids", expired)

	return len(expired)
}

// Get returns one alarm.
func (s *service) Get(_ context.Context, coreID string) (*domain.Alarm, bool) {
	return s.alarms.Get(coreID)
}

// List returns every alarm with its validity recomputed.
func (s *service) List(context.Context) []*domain.Alarm {
	alarms, _ := s.alarms.Snapshot()

	return alarms
}

// Dependencies returns the id and everything it depends on.
func (s *service) Dependencies(_ context.Context, coreID string) []string {
	return s.alarms.Dependencies(coreID)
}

// Ancestors returns the id and everything that depends on it.
func (s *service) Ancestors(_ context.Context, coreID string) []string {
	return s.alarms.Ancestors(coreID)
}

// Counters returns the active alarm count of each view.
func (s *service) Counters(context.Context) map[string]int {
	return s.alarms.Counters()
}

// Subscribe registers an observer and sends it a snapshot.
func (s *service) Subscribe(ctx context.Context, o notifier.Observer) error {
	return s.notifier.Subscribe(ctx, o)
}

// Unsubscribe deregisters an observer.
func (s *service) Unsubscribe(o notifier.Observer) {
	s.notifier.Unsubscribe(o)
}
