package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/harborview-capital/regionscan/internal/model"
	"github.com/harborview-capital/regionscan/internal/store"
)

var (
	runsLimit  int
	runsStatus string
	runsJSON   bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted scan runs",
	Long: `Lists scan runs saved with --save, newest first. Use "runs show <id>"
to print the full report of one run. Requires the run store.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.ScanStatus(runsStatus),
			Limit:  runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		if runsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}

		formatRuns(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one persisted scan run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get run %s", args[0])
		}

		if runsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}

		formatRun(os.Stdout, run)
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status: running, complete, or failed")
	runsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "print as JSON")
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRuns writes the run list as an aligned table, newest first.
func formatRuns(out io.Writer, runs []model.ScanRun) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "no runs")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tREGIONS\tBUY\tWATCH\tPASS\tUNSCORED")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t-------\t---\t-----\t----\t--------")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			r.ID,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.RegionCount,
			r.BuyCount, r.WatchCount, r.PassCount, r.UnscoredCount,
		)
	}
	_ = w.Flush()
}

// formatRun writes one run's summary and, when present, its full report.
func formatRun(out io.Writer, run *model.ScanRun) {
	_, _ = fmt.Fprintf(out, "run %s  %s\n", run.ID, run.Status)
	_, _ = fmt.Fprintf(out, "started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if !run.FinishedAt.IsZero() {
		_, _ = fmt.Fprintf(out, "finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if run.Error != "" {
		_, _ = fmt.Fprintf(out, "error:    %s\n", run.Error)
	}

	if run.Report == nil {
		_, _ = fmt.Fprintf(out, "\n%d regions: %d buy, %d watch, %d pass, %d unscored (no report payload)\n",
			run.RegionCount, run.BuyCount, run.WatchCount, run.PassCount, run.UnscoredCount)
		return
	}

	_, _ = fmt.Fprintln(out)
	formatReportTable(out, run.Report)
}
