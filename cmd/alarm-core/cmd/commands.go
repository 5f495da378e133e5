package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-core/internal/service/client"
)

func newIngestCommand() *cobra.Command {
	var retry bool

	command := &cobra.Command{
		Use:   "ingest <file|->",
		Short: "Send core messages read from a JSON file or stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input io.Reader = cmd.InOrStdin()

			if args[0] != "-" {
				file, err := os.Open(filepath.Clean(args[0]))
				if err != nil {
					return fmt.Errorf("open messages: %w", err)
				}

				defer func() {
					_ = file.Close()
				}()

				input = file
			}

			return withSession(func(ctx context.Context, s *client.Session) error {
				return s.Ingest(ctx, input, retry)
			})
		},
	}

	command.Flags().BoolVarP(&retry, "retry", "r", false, "keep retrying while the core is unavailable")

	return command
}

func newAckCommand() *cobra.Command {
	var message string

	command := &cobra.Command{
		Use:   "ack <id>...",
		Short: "Acknowledge alarms and every parent they unblock.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *client.Session) error {
				return s.Acknowledge(ctx, args, message)
			})
		},
	}

	command.Flags().StringVarP(&message, "message", "m", "", "acknowledgement message (required)")
	_ = command.MarkFlagRequired("message")

	return command
}

func newShelveCommand() *cobra.Command {
	var (
		message string
		timeout time.Duration
	)

	command := &cobra.Command{
		Use:   "shelve <id>",
		Short: "Shelve an alarm so it stops opening tickets.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *client.Session) error {
				return s.Shelve(ctx, args[0], message, timeout)
			})
		},
	}

	command.Flags().StringVarP(&message, "message", "m", "", "shelve reason (required)")
	command.Flags().DurationVarP(&timeout, "timeout", "t", 0, "how long the alarm stays shelved, server default when zero")
	_ = command.MarkFlagRequired("message")

	return command
}

func newUnshelveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unshelve <id>...",
		Short: "Unshelve alarms.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *client.Session) error {
				return s.Unshelve(ctx, args)
			})
		},
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one alarm.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *client.Session) error {
				return s.Get(ctx, args[0])
			})
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every alarm.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withSession(func(ctx context.Context, s *client.Session) error {
				return s.List(ctx)
			})
		},
	}
}

func newDepsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <id>",
		Short: "Print an alarm and everything it depends on.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *client.Session) error {
				return s.Dependencies(ctx, args[0])
			})
		},
	}
}

func newAncestorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ancestors <id>",
		Short: "Print an alarm and everything that depends on it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *client.Session) error {
				return s.Ancestors(ctx, args[0])
			})
		},
	}
}

func newCountersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "counters",
		Short: "Print the active unacknowledged alarm count of each view.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withSession(func(ctx context.Context, s *client.Session) error {
				return s.Counters(ctx)
			})
		},
	}
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream alarm changes until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withSession(func(ctx context.Context, s *client.Session) error {
				return s.Watch(ctx)
			})
		},
	}
}
