package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mqfile/internal/history"
)

const defaultHistoryLimit = 20

var errHistoryDisabled = errors.New("transfer history is disabled (history.enabled = false)")

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent transfers recorded by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return errHistoryDisabled
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			transfers, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			totals, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(transfers) == 0 {
				fmt.Fprintln(out, "No transfers recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "ID", "File", "Requester", "Destination", "Pri", "Status", "Chunks", "Bytes", "Duration", "BLAKE3"},
				historyRows(transfers),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintln(out, summarizeTotals(totals))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "Number of transfers to show")
	return cmd
}

func historyRows(transfers []*history.Transfer) [][]string {
	rows := make([][]string, 0, len(transfers))
	for _, t := range transfers {
		rows = append(rows, []string{
			t.StartedAt.Local().Format("2006-01-02 15:04:05"),
			shortID(t.ID),
			t.Filename,
			strconv.FormatInt(t.Requester, 10),
			strconv.FormatInt(t.Destination, 10),
			strconv.Itoa(t.Priority),
			statusCell(t),
			strconv.Itoa(t.Chunks),
			humanize.IBytes(uint64(max(t.Bytes, 0))),
			durationCell(t),
			shortDigest(t.Digest),
		})
	}
	return rows
}

func statusCell(t *history.Transfer) string {
	if t.Error == "" {
		return string(t.Status)
	}
	return string(t.Status) + ": " + t.Error
}

func durationCell(t *history.Transfer) string {
	if t.Status == history.StatusActive {
		return "-"
	}
	return t.Duration().Round(time.Millisecond).String()
}

func shortDigest(digest string) string {
	if digest == "" {
		return "-"
	}
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func summarizeTotals(totals map[history.Status]int) string {
	parts := make([]string, 0, len(totals))
	sum := 0
	for _, status := range history.Statuses() {
		n := totals[status]
		if n == 0 {
			continue
		}
		sum += n
		parts = append(parts, fmt.Sprintf("%s=%d", status, n))
	}
	return fmt.Sprintf("Total: %d (%s)", sum, strings.Join(parts, ", "))
}
