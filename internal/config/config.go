package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the alarm core binaries.
type Config struct {
	// ServerAddress is the gRPC address of the alarm core.
	ServerAddress string `yaml:"server_addr" split_words:"true"`
	// MetricsAddress is where the Prometheus endpoint listens; empty disables it.
	MetricsAddress string `yaml:"metrics_addr" split_words:"true"`
	// CDBFile is the path to the configuration database YAML file.
	CDBFile string `yaml:"cdb_file" split_words:"true"`
	// Timeout is the duration for network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout" split_words:"true"`
	// NotifyPeriod is the period of the incremental notification pass.
	NotifyPeriod time.Duration `yaml:"notify_period" split_words:"true"`
	// BroadcastFactor multiplies the CDB refresh rate into the broadcast period.
	BroadcastFactor int `yaml:"broadcast_factor" split_words:"true"`
	// UnshelveCheckPeriod is how often expired shelves are looked for.
	UnshelveCheckPeriod time.Duration `yaml:"unshelve_check_period" split_words:"true"`
	// ShelveTimeout is how long a shelve lasts when the request does not say.
	ShelveTimeout time.Duration `yaml:"shelve_timeout" split_words:"true"`
	// ObserverBuffer is how many payloads a Watch stream may lag behind.
	ObserverBuffer int `yaml:"observer_buffer" split_words:"true"`
	// Registry selects where tickets and shelve registrations are kept.
	Registry Registry `yaml:"registry" split_words:"true"`
	// LogLevel is the minimum level of emitted log entries.
	LogLevel string `yaml:"log_level" split_words:"true"`
	// LogFormat is either "console" or "json".
	LogFormat string `yaml:"log_format" split_words:"true"`
}

// Registry selects the backend of the ticket and shelve registries.
type Registry struct {
	// Backend is either "memory" or "redis".
	Backend string `yaml:"backend" split_words:"true"`
	// Redis holds the connection settings used by the redis backend.
	Redis Redis `yaml:"redis" split_words:"true"`
}

// Redis holds Redis connection settings.
type Redis struct {
	Addr      string `yaml:"addr" split_words:"true"`
	Password  string `yaml:"password" split_words:"true"`
	DB        int    `yaml:"db" split_words:"true"`
	KeyPrefix string `yaml:"key_prefix" split_words:"true"`
}

// Registry backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "alarm-core-settings.yaml"
	// DefaultCDBFilename is the default filename of the configuration database.
	DefaultCDBFilename = "alarm-core-cdb.yaml"
	// EnvPrefix prefixes every environment override, for example ALARMCORE_SERVER_ADDRESS.
	EnvPrefix = "ALARMCORE"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second
	// DefaultNotifyPeriod is the default incremental notification period.
	DefaultNotifyPeriod = 500 * time.Millisecond
	// DefaultBroadcastFactor is the default multiplier of the refresh rate.
	DefaultBroadcastFactor = 3
	// DefaultUnshelveCheckPeriod is the default period of the shelve expiry check.
	DefaultUnshelveCheckPeriod = time.Minute
	// DefaultShelveTimeout is the default shelve duration.
	DefaultShelveTimeout = 2 * time.Hour
	// DefaultObserverBuffer is the default Watch stream buffer.
	DefaultObserverBuffer = 64
	// DefaultRedisAddr is the default Redis address.
	DefaultRedisAddr = "localhost:6379"
	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
	// errUnknownBackend is returned for an unsupported registry backend.
	errUnknownBackend = errors.New("unknown registry backend")
	// errUnknownLogFormat is returned for an unsupported log format.
	errUnknownLogFormat = errors.New("unknown log format")
)

// Load reads configuration from the provided path, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnv overrides cfg with the ALARMCORE_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}

	return nil
}

// Save writes Config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if settings.MetricsAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.MetricsAddress); err != nil {
			return fmt.Errorf("invalid metrics socket: %w", err)
		}
	}

	setDefaults(settings)

	switch settings.Registry.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: %q", errUnknownBackend, settings.Registry.Backend)
	}

	switch strings.ToLower(settings.LogFormat) {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: %q", errUnknownLogFormat, settings.LogFormat)
	}

	return nil
}

func setDefaults(settings *Config) {
	if settings.CDBFile == "" {
		settings.CDBFile = DefaultCDBFilename
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.NotifyPeriod <= 0 {
		settings.NotifyPeriod = DefaultNotifyPeriod
	}

	if settings.BroadcastFactor <= 0 {
		settings.BroadcastFactor = DefaultBroadcastFactor
	}

	if settings.UnshelveCheckPeriod <= 0 {
		settings.UnshelveCheckPeriod = DefaultUnshelveCheckPeriod
	}

	if settings.ShelveTimeout <= 0 {
		settings.ShelveTimeout = DefaultShelveTimeout
	}

	if settings.ObserverBuffer <= 0 {
		settings.ObserverBuffer = DefaultObserverBuffer
	}

	if settings.Registry.Backend == "" {
		settings.Registry.Backend = BackendMemory
	}

	if settings.Registry.Redis.Addr == "" {
		settings.Registry.Redis.Addr = DefaultRedisAddr
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}
}
