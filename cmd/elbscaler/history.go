package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cuemby/elbscaler/pkg/history"
	"github.com/cuemby/elbscaler/pkg/types"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent scale decisions from the journal",
	Long: `Print the most recent control loop decisions recorded in the journal
under history.data_dir, newest first. The journal is locked while the
scheduler runs; query GET /decisions on a running scheduler instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		showEvents, _ := cmd.Flags().GetBool("events")

		store, err := history.Open(cfg.History.DataDir, cfg.History.Retain)
		if errors.Is(err, history.ErrDisabled) {
			return fmt.Errorf("%w: set history.data_dir or --data-dir", err)
		}
		if err != nil {
			return err
		}
		defer store.Close()

		if showEvents {
			records, err := store.RecentEvents(limit)
			if err != nil {
				return fmt.Errorf("failed to read events: %w", err)
			}
			printEvents(cmd.OutOrStdout(), records)
			return nil
		}

		decisions, err := store.RecentDecisions(limit)
		if err != nil {
			return fmt.Errorf("failed to read decisions: %w", err)
		}
		printDecisions(cmd.OutOrStdout(), decisions)
		return nil
	},
}

func init() {
	addOverrideFlags(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Number of records to show")
	historyCmd.Flags().Bool("events", false, "Show task and backend events instead of decisions")
}

func printDecisions(w io.Writer, decisions []types.ScaleDecision) {
	if len(decisions) == 0 {
		fmt.Fprintln(w, "No decisions recorded")
		return
	}

	fmt.Fprintf(w, "%-20s %10s %8s %8s %8s  %s\n", "TIME", "REQUESTS", "BEFORE", "DESIRED", "COUNTED", "KILLED")
	for _, d := range decisions {
		killed := "-"
		if len(d.Victims) > 0 {
			ids := make([]string, len(d.Victims))
			for i, id := range d.Victims {
				ids[i] = fmt.Sprint(id)
			}
			killed = strings.Join(ids, ",")
		}
		fmt.Fprintf(w, "%-20s %10.0f %8d %8d %8d  %s\n",
			d.Time.Format(time.DateTime), d.RequestSum, d.Previous, d.Desired, d.Counted, killed)
	}
}

func printEvents(w io.Writer, records []history.EventRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No events recorded")
		return
	}

	fmt.Fprintf(w, "%-20s %-22s %s\n", "TIME", "TYPE", "MESSAGE")
	for _, r := range records {
		fmt.Fprintf(w, "%-20s %-22s %s\n", r.Timestamp.Format(time.DateTime), r.Type, r.Message)
	}
}
