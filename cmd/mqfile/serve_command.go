package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mqfile/internal/history"
	"mqfile/internal/lifecycle"
	"mqfile/internal/logging"
	"mqfile/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var rootFlag string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the file server on the shared queue",
		Long: `Run the file server in the foreground.

The server creates the queue when needed, answers every request with the
file's chunks followed by an empty final message, and removes the queue when
it stops on SIGINT or SIGTERM. Only one server may run per state directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root := cfg.Server.Root
			if strings.TrimSpace(rootFlag) != "" {
				if root, err = expandFlagPath(rootFlag); err != nil {
					return err
				}
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			var recorder server.Recorder
			if cfg.History.Enabled {
				store, err := history.Open(cfg)
				if err != nil {
					return fmt.Errorf("open history: %w", err)
				}
				defer store.Close()
				recorder = store
			}

			queue, err := ctx.openQueue()
			if err != nil {
				return err
			}
			defer queue.Close()

			ctrl := lifecycle.New(cmd.Context())
			ctrl.Watch()
			defer ctrl.Terminate()
			defer ctrl.StopWatching()

			srv, err := server.New(queue, ctrl, server.Options{
				Root:            root,
				MaxTransfers:    cfg.Server.MaxTransfers,
				PollInterval:    cfg.PollInterval(),
				MaxPollInterval: cfg.MaxPollInterval(),
				ShutdownTimeout: cfg.ShutdownTimeout(),
				LockPath:        cfg.LockPath(),
				History:         recorder,
				Logger:          logger,
			})
			if err != nil {
				return err
			}

			logger.Info("queue opened",
				logging.String(logging.FieldQueueKey, fmt.Sprintf("%#x", cfg.Queue.Key)),
				logging.String("root", displayRoot(root)),
				logging.Bool("history", cfg.History.Enabled),
			)
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&rootFlag, "root", "", "Directory to serve files from (overrides server.root)")
	return cmd
}

func displayRoot(root string) string {
	if root == "" {
		return "(unrestricted)"
	}
	return root
}
