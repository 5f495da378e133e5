package shelve

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-core/internal/domain/alarm"
)

// TestRedis_Shelve runs the registry against a local Redis.
func TestRedis_Shelve(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
	}

	prefix := "alarmcore-test:" + uuid.NewString() + ":"
	r := NewRedis(client, prefix)

	t.Cleanup(func() {
		_ = r.Unshelve(ctx, []string{"A", "B"})
	})

	actor := &alarm.Actor{Hostname: "control-room", Username: "operator"}

	require.ErrorIs(t, r.Shelve(ctx, "A", " ", time.Hour, actor), ErrEmptyMessage)
	require.NoError(t, r.Shelve(ctx, "A", "maintenance", time.Hour, actor))
	require.NoError(t, r.Shelve(ctx, "B", "noisy", 0, nil))

	ttl, err := client.TTL(ctx, prefix+"B").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Hour)

	shelved, err := r.IsShelved(ctx, "A")
	require.NoError(t, err)
	require.True(t, shelved)

	registrations, err := r.Registrations(ctx)
	require.NoError(t, err)
	require.Len(t, registrations, 2)
	require.Equal(t, "maintenance", registrations[0].Message)
	require.Equal(t, actor, registrations[0].Actor)

	require.NoError(t, r.Unshelve(ctx, []string{"A"}))

	shelved, err = r.IsShelved(ctx, "A")
	require.NoError(t, err)
	require.False(t, shelved)
}

// TestRedis_NilClient checks that a registry without a client fails cleanly.
func TestRedis_NilClient(t *testing.T) {
	t.Parallel()

	r := NewRedis(nil, "")

	_, err := r.IsShelved(context.Background(), "A")
	require.ErrorIs(t, err, errNilClient)
	require.ErrorIs(t, r.Unshelve(context.Background(), []string{"A"}), errNilClient)
}
