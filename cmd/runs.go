package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mre-cli/internal/model"
	"github.com/sells-group/mre-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect extraction run history",
	Long:  "Commands for listing, viewing, and summarizing runs recorded in the run ledger (store.dsn).",
}

// openLedger opens the run ledger, failing when none is configured.
func openLedger(cmd *cobra.Command) (store.Store, error) {
	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("runs: no run ledger configured (set store.dsn or MRE_STORE_DSN)")
	}
	return st, nil
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List extraction runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(cmd.Context(), store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its records and skipped rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(cmd.Context(), store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	Other      int
	Records    int
	LLMRecords int
	Unresolved int
	AvgDurSecs float64
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.RunSummary) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			s.Records += r.Records
			s.LLMRecords += r.LLMRecords
			s.Unresolved += r.Unresolved
			totalDur += r.FinishedAt.Sub(r.StartedAt)
			durCount++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Other++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tDOCS\tRECORDS\tLLM\tUNRESOLVED\tOUTPUT")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t----\t-------\t---\t----------\t------")

	for _, r := range runs {
		dur := "-"
		if !r.FinishedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Documents,
			r.Records,
			r.LLMRecords,
			r.Unresolved,
			r.OutputPath,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Other:\t%d\n", s.Other)
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", s.Records)
	_, _ = fmt.Fprintf(w, "  From LLM:\t%d\n", s.LLMRecords)
	_, _ = fmt.Fprintf(w, "Unresolved fragments:\t%d\n", s.Unresolved)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
