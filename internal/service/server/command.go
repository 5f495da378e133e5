package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/alarm-core/internal/api/grpc/alarm"
	"github.com/oshokin/alarm-core/internal/collection"
	"github.com/oshokin/alarm-core/internal/config"
	"github.com/oshokin/alarm-core/internal/logger"
	"github.com/oshokin/alarm-core/internal/metrics"
	"github.com/oshokin/alarm-core/internal/notifier"
	pb "github.com/oshokin/alarm-core/internal/pb/v1"
	"github.com/oshokin/alarm-core/internal/repository/cdb"
	"github.com/oshokin/alarm-core/internal/repository/shelve"
	"github.com/oshokin/alarm-core/internal/repository/ticket"
	"github.com/oshokin/alarm-core/internal/version"
)

// Options controls the alarm-core-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// CDBPath overrides the configuration database file from settings.
	CDBPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// LogLevel overrides the log level from settings.
	LogLevel string
	// AllowMultiple skips the single instance check.
	AllowMultiple bool
}

// metricsReadHeaderTimeout bounds slow metric scrapers.
const metricsReadHeaderTimeout = 5 * time.Second

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the alarm core and blocks until context is canceled or a component fails.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-core-server")

	logger.InfoKV(ctx, "Starting alarm core", version.KV()...)

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	configureLogging(settings, opts.LogLevel)

	if !opts.AllowMultiple {
		if err = ensureSingleInstance(ps.Processes, executableName()); err != nil {
			return err
		}
	}

	cdbPath := settings.CDBFile
	if opts.CDBPath != "" {
		cdbPath = opts.CDBPath
	}

	provider, err := cdb.Load(cdbPath)
	if err != nil {
		return fmt.Errorf("load cdb: %w", err)
	}

	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	tickets, shelves, closeRegistries, err := newRegistries(ctx, settings)
	if err != nil {
		return err
	}

	defer closeRegistries()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := newService(ctx, settings, provider, tickets, shelves, metrics.New(registry))
	if err != nil {
		return err
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer()
	pb.RegisterAlarmCoreServer(grpcServer, api.NewServer(svc, api.WithObserverBuffer(settings.ObserverBuffer)))

	logger.InfoKV(ctx, "Alarm core listening",
		"listen_address", listenAddress,
		"cdb_file", cdbPath,
		"registry", settings.Registry.Backend,
		"alarms", svc.alarms.Len())

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	var metricsServer *http.Server

	if settings.MetricsAddress != "" {
		metricsServer = &http.Server{
			Addr:              settings.MetricsAddress,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			ReadHeaderTimeout: metricsReadHeaderTimeout,
		}

		group.Go(func() error {
			logger.InfoKV(ctx, "Metrics endpoint listening", "metrics_address", settings.MetricsAddress)

			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve metrics: %w", err)
			}

			return nil
		})
	}

	svc.notifier.Start(groupCtx)

	group.Go(func() error {
		runUnshelveChecker(groupCtx, svc, settings.UnshelveCheckPeriod)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down alarm core")

		svc.notifier.Stop()
		stopGRPC(grpcServer, settings.Timeout)

		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.Timeout)
			defer cancel()

			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorKV(ctx, "Failed to stop metrics endpoint", "error", err)
			}
		}

		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Alarm core stopped")

	return nil
}

// newService loads the initial alarms and builds the notifier around them.
func newService(
	ctx context.Context,
	settings *config.Config,
	provider *cdb.FileProvider,
	tickets TicketRegistry,
	shelves ShelveRegistry,
	m *metrics.Metrics,
) (*service, error) {
	alarms := collection.New(provider, tickets, shelves, provider)
	if err := alarms.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialise alarms: %w", err)
	}

	broadcastPeriod := provider.RefreshRate() * time.Duration(settings.BroadcastFactor)

	return &service{
		alarms:  alarms,
		tickets: tickets,
		shelves: shelves,
		notifier: notifier.New(alarms, notifier.NewRegistry(),
			notifier.WithNotifyPeriod(settings.NotifyPeriod),
			notifier.WithBroadcastPeriod(broadcastPeriod),
			notifier.WithMetrics(m),
		),
		metrics:       m,
		shelveTimeout: settings.ShelveTimeout,
	}, nil
}

// newRegistries builds the ticket and shelve registries for the configured backend.
// The returned function releases the backend connection.
func newRegistries(ctx context.Context, settings *config.Config) (TicketRegistry, ShelveRegistry, func(), error) {
	if settings.Registry.Backend != config.BackendRedis {
		return ticket.NewMemory(), shelve.NewMemory(), func() {}, nil
	}

	options := settings.Registry.Redis

	client := redis.NewClient(&redis.Options{
		Addr:     options.Addr,
		Password: options.Password,
		DB:       options.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, settings.Timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("connect to redis %s: %w", options.Addr, err)
	}

	var ticketPrefix, shelvePrefix string

	if options.KeyPrefix != "" {
		prefix := strings.TrimSuffix(options.KeyPrefix, ":") + ":"
		ticketPrefix = prefix + "ticket:"
		shelvePrefix = prefix + "shelve:"
	}

	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.ErrorKV(ctx, "Failed to close redis client", "error", err)
		}
	}

	return ticket.NewRedis(client, ticketPrefix), shelve.NewRedis(client, shelvePrefix), closeClient, nil
}

// runUnshelveChecker unshelves expired registrations every period until ctx is done.
func runUnshelveChecker(ctx context.Context, svc *service, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.checkShelves(ctx)
		}
	}
}

// stopGRPC waits for in-flight calls up to timeout. Watch streams only end
// when their clients leave, so the server is stopped hard after that.
func stopGRPC(grpcServer *grpc.Server, timeout time.Duration) {
	stopped := make(chan struct{})

	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-stopped:
	case <-timer.C:
		grpcServer.Stop()
		<-stopped
	}
}

// configureLogging applies the log level and format from settings. A non-empty
// override wins over the settings level.
func configureLogging(settings *config.Config, override string) {
	raw := settings.LogLevel
	if override != "" {
		raw = override
	}

	level, ok := logger.ParseLogLevel(raw)
	if !ok {
		logger.WarnKV(context.Background(), "Unknown log level, using default", "log_level", raw, "default", level.String())
	}

	logger.SetLevel(level)

	// The console logger is installed at startup; only a different format needs a new one.
	if format := logger.ParseFormat(settings.LogFormat); format != logger.FormatConsole {
		logger.SetLogger(logger.New(nil, format))
	}
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	// Bind on all interfaces.
	return ":" + port, nil
}
