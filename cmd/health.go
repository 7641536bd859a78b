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

	"github.com/harborview-capital/regionscan/internal/monitoring"
)

var (
	healthJSON   bool
	healthNotify bool
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of recent scan runs",
	Long: `Summarizes persisted scan runs over the configured lookback window:
run failure rate, regions left unscored, and how much of the latest run was
scored from degraded (partial or fallback) infrastructure data. Thresholds
come from the monitoring config section; --notify posts triggered alerts to
the configured webhook. Requires the run store.`,
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

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring.Thresholds, cfg.Monitoring.WebhookURL),
			cfg.Monitoring.LookbackWindowHours,
		)

		snap, alerts, err := checker.Check(ctx, healthNotify)
		if err != nil {
			return err
		}

		if healthJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Snapshot *monitoring.MetricsSnapshot `json:"snapshot"`
				Alerts   []monitoring.Alert          `json:"alerts,omitempty"`
			}{snap, alerts})
		}

		formatHealth(os.Stdout, snap, alerts)
		if len(alerts) > 0 {
			return eris.Errorf("%d alert(s) triggered", len(alerts))
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "print the snapshot as JSON")
	healthCmd.Flags().BoolVar(&healthNotify, "notify", false, "send triggered alerts to the configured webhook")
	rootCmd.AddCommand(healthCmd)
}

// formatHealth writes the snapshot summary and any triggered alerts.
func formatHealth(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	_, _ = fmt.Fprintf(out, "scan health, last %dh (collected %s)\n\n",
		snap.LookbackHours, snap.CollectedAt.Format("2006-01-02 15:04 MST"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "runs\t%d total, %d complete, %d failed, %d running\n",
		snap.RunsTotal, snap.RunsComplete, snap.RunsFailed, snap.RunsRunning)
	_, _ = fmt.Fprintf(w, "failure rate\t%.1f%%\n", snap.RunFailRate*100)
	_, _ = fmt.Fprintf(w, "regions\t%d scored, %d unscored (%.1f%%)\n",
		snap.RegionsScored, snap.RegionsUnscored, snap.UnscoredRate*100)
	if snap.LatestRunID != "" {
		_, _ = fmt.Fprintf(w, "latest run\t%s\n", snap.LatestRunID)
		_, _ = fmt.Fprintf(w, "signal quality\t%d live, %d partial, %d fallback (%.1f%% degraded)\n",
			snap.LiveRecords, snap.PartialRecords, snap.FallbackRecords, snap.DegradedRate*100)
	}
	_ = w.Flush()

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\nno alerts")
		return
	}

	_, _ = fmt.Fprintf(out, "\n%d alert(s):\n", len(alerts))
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "  [%s] %s: %s\n", a.Severity, a.Type, a.Message)
	}
}
