package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"mqfile/internal/client"
	"mqfile/internal/msgq"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or remove the shared message queue",
	}
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the queue occupancy and whether a server is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := client.ShouldColorize(out)
			key := fmt.Sprintf("%#x", cfg.Queue.Key)

			running, err := serverRunning(cfg.LockPath())
			if err != nil {
				return err
			}

			fmt.Fprintln(out, renderSectionHeader("Queue "+key, colorize))
			stats, present, err := queueStats(ctx)
			if err != nil {
				return err
			}
			if present {
				fmt.Fprintln(out, renderStatusLine("Queue", statusOK, fmt.Sprintf("present, %d message(s) waiting", stats.Messages), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Queue", statusInfo, "not present", colorize))
			}
			if running {
				fmt.Fprintln(out, renderStatusLine("Server", statusOK, "running", colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Server", statusInfo, "not running", colorize))
			}
			if present && !running && stats.Messages > 0 {
				fmt.Fprintln(out, renderStatusLine("Backlog", statusWarn, "messages are waiting but no server holds the lock", colorize))
			}
			if !present {
				return nil
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, queueStatsRows(stats), nil))
			return nil
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove the shared queue",
		Long: `Remove the shared queue from the system.

Clients and servers attached to it see the queue disappear: readers stop and
the server shuts down. Removal is refused while a server holds the lock
unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := client.ShouldColorize(out)
			key := fmt.Sprintf("%#x", cfg.Queue.Key)

			running, err := serverRunning(cfg.LockPath())
			if err != nil {
				return err
			}
			if running && !force {
				return fmt.Errorf("server is running (lock %s); stop it or pass --force", cfg.LockPath())
			}

			queue, err := ctx.attachQueue()
			if err != nil {
				if errors.Is(err, msgq.ErrQueueUnavailable) {
					fmt.Fprintln(out, renderStatusLine("Queue", statusInfo, "no queue with key "+key, colorize))
					return nil
				}
				return err
			}
			defer queue.Close()

			switch err := queue.Destroy(); {
			case errors.Is(err, msgq.ErrQueueAlreadyRemoved):
				fmt.Fprintln(out, renderStatusLine("Queue", statusWarn, "already removed", colorize))
			case err != nil:
				return fmt.Errorf("remove queue %s: %w", key, err)
			default:
				fmt.Fprintln(out, renderStatusLine("Queue", statusOK, "removed "+key, colorize))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Remove the queue even while a server is running")
	return cmd
}

// queueStats reports present=false when no queue exists for the key.
func queueStats(ctx *commandContext) (msgq.Stats, bool, error) {
	queue, err := ctx.attachQueue()
	if err != nil {
		if errors.Is(err, msgq.ErrQueueUnavailable) {
			return msgq.Stats{}, false, nil
		}
		return msgq.Stats{}, false, err
	}
	defer queue.Close()

	stats, err := queue.Stat()
	if err != nil {
		if errors.Is(err, msgq.ErrQueueClosed) {
			return msgq.Stats{}, false, nil
		}
		return msgq.Stats{}, false, fmt.Errorf("stat queue: %w", err)
	}
	return stats, true, nil
}

func queueStatsRows(stats msgq.Stats) [][]string {
	capacity := "unknown"
	if stats.MaxBytes > 0 {
		capacity = humanize.IBytes(stats.MaxBytes)
	}
	return [][]string{
		{"Queue ID", strconv.Itoa(stats.ID)},
		{"Messages", strconv.FormatUint(stats.Messages, 10)},
		{"Bytes", humanize.IBytes(stats.Bytes) + " of " + capacity},
		{"Permissions", fmt.Sprintf("%#o", stats.Permissions)},
		{"Owner UID", strconv.FormatUint(uint64(stats.OwnerUID), 10)},
		{"Last send", formatEvent(stats.LastSend, stats.LastSendPID)},
		{"Last receive", formatEvent(stats.LastReceive, stats.LastRecvPID)},
		{"Last change", formatEvent(stats.LastChange, 0)},
	}
}

func formatEvent(at time.Time, pid int) string {
	if at.IsZero() {
		return "never"
	}
	value := at.Local().Format("2006-01-02 15:04:05") + " (" + humanize.Time(at) + ")"
	if pid > 0 {
		value += " by pid " + strconv.Itoa(pid)
	}
	return value
}

// serverRunning probes the server lock file. Holding the lock means a server
// is running.
func serverRunning(lockPath string) (bool, error) {
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe server lock %s: %w", lockPath, err)
	}
	if !ok {
		return true, nil
	}
	if err := lock.Unlock(); err != nil {
		return false, fmt.Errorf("release server lock probe: %w", err)
	}
	return false, nil
}
