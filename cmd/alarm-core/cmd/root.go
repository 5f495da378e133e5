package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/alarm-core/internal/config"
	"github.com/oshokin/alarm-core/internal/logger"
	"github.com/oshokin/alarm-core/internal/service/client"
	"github.com/oshokin/alarm-core/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// serverAddress overrides the server address from settings.
	serverAddress string
	// logLevel sets the level of client logs.
	logLevel string

	// rootCmd represents the base command of the alarm core client.
	rootCmd = &cobra.Command{
		Use:   "alarm-core",
		Short: "Talk to a running alarm core.",
		Long: `Sends core messages and operator requests to the alarm core and prints
the answers as JSON.

Acknowledgements and shelves are recorded with the current hostname and user.
Server address is loaded from configuration file unless --server is given.`,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				level = zapcore.WarnLevel
			}

			logger.SetLogger(logger.New(nil, logger.FormatConsole, logger.WithLevel(level)))
		},
	}
)

// Execute runs the alarm-core CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withSession connects to the core for the duration of fn.
func withSession(fn func(ctx context.Context, s *client.Session) error) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	session, err := client.Connect(ctx, &client.Options{
		ConfigPath:    cfgPath,
		ServerAddress: serverAddress,
		Output:        rootCmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	defer func() {
		_ = session.Close()
	}()

	return fn(ctx, session)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverAddress, "server", "s", "", "alarm core address, overrides settings")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newIngestCommand(),
		newAckCommand(),
		newShelveCommand(),
		newUnshelveCommand(),
		newGetCommand(),
		newListCommand(),
		newDepsCommand(),
		newAncestorsCommand(),
		newCountersCommand(),
		newWatchCommand(),
	)
}
