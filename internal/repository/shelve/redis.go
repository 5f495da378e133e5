package shelve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oshokin/alarm-core/internal/domain/alarm"
)

// DefaultKeyPrefix namespaces the shelve keys.
const DefaultKeyPrefix = "alarmcore:shelve:"

// errNilClient is returned when the registry has no Redis client.
var errNilClient = errors.New("redis client is nil")

// Redis stores each registration under its own key with the shelve timeout as TTL,
// so expiry needs no bookkeeping.
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

// Shelve registers coreID as shelved for timeout.
func (r *Redis) Shelve(ctx context.Context, coreID, message string, timeout time.Duration, actor *alarm.Actor) error {
	if r.client == nil {
		return errNilClient
	}

	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	data, err := json.Marshal(&Registration{
		AlarmID:   coreID,
		Message:   message,
		ShelvedAt: r.now(),
		Timeout:   Duration(timeout),
		Actor:     actor.Clone(),
	})
	if err != nil {
		return fmt.Errorf("encode shelve registration: %w", err)
	}

	if err = r.client.Set(ctx, r.prefix+coreID, data, timeout).Err(); err != nil {
		return fmt.Errorf("store shelve registration: %w", err)
	}

	return nil
}

// Unshelve drops the registrations of ids.
func (r *Redis) Unshelve(ctx context.Context, ids []string) error {
	if r.client == nil {
		return errNilClient
	}

	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.prefix+id)
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete shelve registrations: %w", err)
	}

	return nil
}

// IsShelved reports whether coreID has a registration that has not expired.
func (r *Redis) IsShelved(ctx context.Context, coreID string) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}

	n, err := r.client.Exists(ctx, r.prefix+coreID).Result()
	if err != nil {
		return false, fmt.Errorf("check shelve registration: %w", err)
	}

	return n > 0, nil
}

// Registrations returns the active registrations ordered by alarm id.
func (r *Redis) Registrations(ctx context.Context) ([]*Registration, error) {
	if r.client == nil {
		return nil, errNilClient
	}

	var result []*Registration

	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("read shelve registration: %w", err)
		}

		var registration Registration
		if err = json.Unmarshal(data, &registration); err != nil {
			return nil, fmt.Errorf("decode shelve registration: %w", err)
		}

		result = append(result, &registration)
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan shelve registrations: %w", err)
	}

	slices.SortFunc(result, func(a, b *Registration) int {
		return strings.Compare(a.AlarmID, b.AlarmID)
	})

	return result, nil
}
