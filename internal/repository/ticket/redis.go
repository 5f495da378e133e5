package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oshokin/alarm-core/internal/domain/alarm"
)

const (
	// DefaultKeyPrefix namespaces the ticket keys.
	DefaultKeyPrefix = "alarmcore:ticket:"
	// historySuffix is appended to the ticket key to name its history list.
	historySuffix = ":history"
	// historyLimit caps the number of closed tickets kept per alarm.
	historyLimit = 100
	// updateAttempts bounds the retries of an update whose key changed under it.
	updateAttempts = 10
)

// errNilClient is returned when the registry has no Redis client.
var errNilClient = errors.New("redis client is nil")

// Redis keeps the current ticket of each alarm under its own key and pushes
// acknowledged tickets into a capped history list.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis creates a registry on client. An empty prefix selects DefaultKeyPrefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &Redis{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// IsAcknowledged reports whether coreID has no ticket waiting for acknowledgement.
func (r *Redis) IsAcknowledged(ctx context.Context, coreID string) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}

	t, err := r.load(ctx, r.client, coreID)
	if err != nil {
		return false, err
	}

	return t == nil || !t.Pending(), nil
}

// OpenTicket opens a ticket for coreID unless one is already waiting.
func (r *Redis) OpenTicket(ctx context.Context, coreID string) error {
	return r.update(ctx, coreID, func(t *Ticket) (*Ticket, bool) {
		if t != nil && t.Pending() {
			if t.Status == StatusOpen {
				return t, false
			}

			t.Status = StatusOpen

			return t, true
		}

		return &Ticket{
			AlarmID:   coreID,
			Status:    StatusOpen,
			CreatedAt: r.now(),
		}, true
	})
}

// ClearTicket marks the open ticket of coreID as cleared.
func (r *Redis) ClearTicket(ctx context.Context, coreID string) error {
	return r.update(ctx, coreID, func(t *Ticket) (*Ticket, bool) {
		if t == nil || t.Status != StatusOpen {
			return t, false
		}

		t.Status = StatusCleared
		t.ClearedAt = r.now()

		return t, true
	})
}

// Acknowledge closes the waiting tickets of ids with message and returns the
// result per id.
func (r *Redis) Acknowledge(ctx context.Context, ids []string, message string, actor *alarm.Actor) (map[string]string, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	results := make(map[string]string, len(ids))

	for _, id := range ids {
		results[id] = ResultIgnored

		err := r.update(ctx, id, func(t *Ticket) (*Ticket, bool) {
			if t == nil || !t.Pending() {
				return t, false
			}

			t.Status = StatusAcknowledged
			t.AcknowledgedAt = r.now()
			t.Message = message
			t.Actor = actor.Clone()
			results[id] = ResultSolved

			return t, true
		})
		if err != nil {
			return nil, fmt.Errorf("acknowledge ticket of %s: %w", id, err)
		}
	}

	return results, nil
}

// Tickets returns the history of coreID followed by its current ticket, oldest first.
func (r *Redis) Tickets(ctx context.Context, coreID string) ([]*Ticket, error) {
	if r.client == nil {
		return nil, errNilClient
	}

	history, err := r.client.LRange(ctx, r.key(coreID)+historySuffix, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read ticket history: %w", err)
	}

	result := make([]*Ticket, 0, len(history)+1)

	// The list is pushed from the left, so the newest entry comes first.
	for i := len(history) - 1; i >= 0; i-- {
		var t Ticket
		if err = json.Unmarshal([]byte(history[i]), &t); err != nil {
			return nil, fmt.Errorf("decode ticket history: %w", err)
		}

		result = append(result, &t)
	}

	current, err := r.load(ctx, r.client, coreID)
	if err != nil {
		return nil, err
	}

	if current != nil && current.Pending() {
		result = append(result, current)
	}

	return result, nil
}

// update applies fn to the current ticket of coreID inside an optimistic transaction.
func (r *Redis) update(ctx context.Context, coreID string, fn func(*Ticket) (*Ticket, bool)) error {
	if r.client == nil {
		return errNilClient
	}

	key := r.key(coreID)

	txf := func(tx *redis.Tx) error {
		current, err := r.load(ctx, tx, coreID)
		if err != nil {
			return err
		}

		updated, changed := fn(current)
		if !changed {
			return nil
		}

		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode ticket: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)

			if updated.Status == StatusAcknowledged {
				pipe.LPush(ctx, key+historySuffix, data)
				pipe.LTrim(ctx, key+historySuffix, 0, historyLimit-1)
			}

			return nil
		})

		return err
	}

	var err error

	for range updateAttempts {
		err = r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}

	if err != nil {
		return fmt.Errorf("update ticket of %s: %w", coreID, err)
	}

	return nil
}

// getter is the part of a client or transaction that load needs.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *Redis) load(ctx context.Context, client getter, coreID string) (*Ticket, error) {
	data, err := client.Get(ctx, r.key(coreID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil //nolint:nilnil // No ticket was ever opened.
		}

		return nil, fmt.Errorf("read ticket: %w", err)
	}

	var t Ticket
	if err = json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}

	return &t, nil
}

func (r *Redis) key(coreID string) string {
	return r.prefix + coreID
}
