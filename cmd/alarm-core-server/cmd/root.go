package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-core/internal/config"
	"github.com/oshokin/alarm-core/internal/service/server"
	"github.com/oshokin/alarm-core/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// cdbPath overrides the configuration database from settings.
	cdbPath string
	// logLevel overrides the log level from settings.
	logLevel string
	// allowMultiple skips the single instance check.
	allowMultiple bool

	// rootCmd represents the base command for running the alarm core.
	rootCmd = &cobra.Command{
		Use:   "alarm-core-server [listen-address]",
		Short: "Run the alarm core gRPC server.",
		Long: `Starts the alarm core that keeps the state of every alarm, cascades
acknowledgements through alarm dependencies and streams changes to observers.

Initial alarms and views are read from the configuration database file.
Only the port from ServerAddress config is used for listening (e.g., :50051).
Listen address can be provided as argument to override config (e.g., :9090, 0.0.0.0:8080).
Tickets and shelves are kept in memory or in Redis, as configured.
Settings can be overridden with ALARMCORE_* environment variables.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				CDBPath:       cdbPath,
				ListenAddress: listenAddress,
				LogLevel:      logLevel,
				AllowMultiple: allowMultiple,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-core-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&cdbPath, "cdb", "", "path to configuration database, overrides settings")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error), overrides settings")
	rootCmd.Flags().BoolVar(&allowMultiple, "allow-multiple", false, "skip the single instance check")
}
