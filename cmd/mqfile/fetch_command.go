package main

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mqfile/internal/client"
	"mqfile/internal/lifecycle"
)

var errMissingFile = errors.New("fetch requires a FILE argument")

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var (
		priority int
		target   int
	)

	cmd := &cobra.Command{
		Use:   "fetch FILE",
		Short: "Request a file from the server and write it to stdout",
		Long: `Request FILE from the server and write its contents to stdout.

After the first request, further directives are read from stdin, one per
line:

  FILE [PRIORITY [TARGET]]   request another file
  quit                       stop without waiting

At end of input the client waits for outstanding transfers before exiting.
Error messages from the server are written to stderr.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return nil
			}
			_ = cmd.Usage()
			if len(args) == 0 {
				return errMissingFile
			}
			return fmt.Errorf("fetch takes one FILE, got %d arguments", len(args))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			queue, err := ctx.openQueue()
			if err != nil {
				return err
			}
			defer queue.Close()

			ctrl := lifecycle.New(cmd.Context())
			ctrl.Watch()
			defer ctrl.Terminate()

			session, err := client.NewSession(queue, client.SessionOptions{
				DefaultPriority: cfg.Client.DefaultPriority,
				Logger:          logger,
			})
			if err != nil {
				return err
			}

			out := bufio.NewWriter(cmd.OutOrStdout())
			reader := client.NewReader(queue, session, ctrl, client.ReaderOptions{
				Output:          out,
				ErrorOutput:     cmd.ErrOrStderr(),
				Colorize:        client.ShouldColorize(cmd.ErrOrStderr()),
				PollInterval:    cfg.PollInterval(),
				MaxPollInterval: cfg.MaxPollInterval(),
				Logger:          logger,
			})
			console := &client.Console{
				Session:     session,
				Reader:      reader,
				Controller:  ctrl,
				Input:       cmd.InOrStdin(),
				Diagnostics: cmd.ErrOrStderr(),
				Output:      out,
				Logger:      logger,
			}
			return console.Run(cmd.Context(), client.Directive{
				Filename: args[0],
				Priority: priority,
				Target:   target,
			})
		},
	}

	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Request priority (1-10, default from client.default_priority)")
	cmd.Flags().IntVarP(&target, "target", "t", 0, "Deliver the file to another client pid instead of this one")
	return cmd
}
