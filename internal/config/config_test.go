package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields, format validations and defaults.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing socket.
	require.ErrorIs(t, Validate(new(Config)), errServerSocketRequired)
	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)

	// Bad socket.
	require.Error(t, Validate(&Config{ServerAddress: "bad:address"}))
	require.Error(t, Validate(&Config{ServerAddress: "127.0.0.1:0", MetricsAddress: "bad:address"}))

	// Unknown backend and log format.
	settings := &Config{ServerAddress: "127.0.0.1:0", Registry: Registry{Backend: "postgres"}}
	require.ErrorIs(t, Validate(settings), errUnknownBackend)

	settings = &Config{ServerAddress: "127.0.0.1:0", LogFormat: "xml"}
	require.ErrorIs(t, Validate(settings), errUnknownLogFormat)

	// Defaults.
	settings = &Config{ServerAddress: "127.0.0.1:0"}
	require.NoError(t, Validate(settings))
	require.Equal(t, DefaultCDBFilename, settings.CDBFile)
	require.Equal(t, DefaultTimeout, settings.Timeout)
	require.Equal(t, DefaultNotifyPeriod, settings.NotifyPeriod)
	require.Equal(t, DefaultBroadcastFactor, settings.BroadcastFactor)
	require.Equal(t, DefaultUnshelveCheckPeriod, settings.UnshelveCheckPeriod)
	require.Equal(t, DefaultShelveTimeout, settings.ShelveTimeout)
	require.Equal(t, DefaultObserverBuffer, settings.ObserverBuffer)
	require.Equal(t, BackendMemory, settings.Registry.Backend)
	require.Equal(t, DefaultRedisAddr, settings.Registry.Redis.Addr)
	require.Equal(t, DefaultLogLevel, settings.LogLevel)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := &Config{
		ServerAddress:  "127.0.0.1:50051",
		MetricsAddress: "127.0.0.1:9090",
		NotifyPeriod:   250 * time.Millisecond,
		Registry: Registry{
			Backend: BackendRedis,
			Redis:   Redis{Addr: "redis:6379", DB: 2},
		},
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.ServerAddress, loaded.ServerAddress)
	require.Equal(t, settings.MetricsAddress, loaded.MetricsAddress)
	require.Equal(t, 250*time.Millisecond, loaded.NotifyPeriod)
	require.Equal(t, BackendRedis, loaded.Registry.Backend)
	require.Equal(t, 2, loaded.Registry.Redis.DB)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.ErrorIs(t, Save(path, nil), errConfigIsNotSet)
}

// TestLoad_EnvOverrides checks that ALARMCORE_* variables override the file.
// It cannot run in parallel because it sets environment variables.
func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_addr: 127.0.0.1:50051\nnotify_period: 1s\n"), DefaultFilePermissions))

	t.Setenv("ALARMCORE_SERVER_ADDRESS", "127.0.0.1:6000")
	t.Setenv("ALARMCORE_NOTIFY_PERIOD", "2s")
	t.Setenv("ALARMCORE_REGISTRY_BACKEND", BackendRedis)
	t.Setenv("ALARMCORE_REGISTRY_REDIS_ADDR", "cache:6379")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6000", loaded.ServerAddress)
	require.Equal(t, 2*time.Second, loaded.NotifyPeriod)
	require.Equal(t, BackendRedis, loaded.Registry.Backend)
	require.Equal(t, "cache:6379", loaded.Registry.Redis.Addr)

	t.Setenv("ALARMCORE_BROADCAST_FACTOR", "many")

	_, err = Load(path)
	require.Error(t, err)
}

// TestLoad_Errors checks missing and malformed files.
func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_addr: [1, 2]"), DefaultFilePermissions))

	_, err = Load(path)
	require.Error(t, err)
}
