package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harborview-capital/regionscan/internal/model"
)

var (
	scanRegionsFile string
	scanFormat      string
	scanOutput      string
	scanSave        bool
	scanConcurrency int
	scanBuy         float64
	scanWatch       float64
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Score every configured region",
	Long: `Runs the full scoring pass: counts transport infrastructure near each
region center, resolves the market price trend, and classifies every region
as BUY, WATCH, or PASS. Regions that cannot be scored are reported with the
missing signal, never dropped.

Examples:
  # Scan the regions from config.yaml, print a table
  regionscan scan

  # Scan a region list exported from a portal, save the run
  regionscan scan --regions-file regions.csv --save

  # Machine-readable report
  regionscan scan --format json --output report.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyScanOverrides(cmd)

		regions, err := loadRegions(ctx, scanRegionsFile)
		if err != nil {
			return err
		}

		env, err := initScanEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if scanSave && env.Store == nil {
			return eris.New("scan: --save requires store.enabled in config")
		}

		var run *model.ScanRun
		if scanSave {
			run, err = env.Store.CreateRun(ctx)
			if err != nil {
				return eris.Wrap(err, "scan: create run")
			}
			zap.L().Info("run created", zap.String("run_id", run.ID))
		}

		report, err := env.Runner.Run(ctx, regions)
		if err != nil {
			if run != nil {
				if ferr := env.Store.FailRun(ctx, run.ID, err.Error()); ferr != nil {
					zap.L().Error("scan: mark run failed", zap.Error(ferr))
				}
			}
			return eris.Wrap(err, "scan")
		}

		if run != nil {
			if err := env.Store.CompleteRun(ctx, run.ID, report); err != nil {
				return eris.Wrap(err, "scan: complete run")
			}
			if _, err := env.Store.SaveResults(ctx, run.ID, report.Results()); err != nil {
				return eris.Wrap(err, "scan: save results")
			}
			zap.L().Info("run saved", zap.String("run_id", run.ID))
		}

		return writeReport(report, scanFormat, scanOutput)
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanRegionsFile, "regions-file", "", "region list (YAML or CSV), merged with config regions")
	scanCmd.Flags().StringVar(&scanFormat, "format", "table", "output format: table, csv, or json")
	scanCmd.Flags().StringVar(&scanOutput, "output", "", "write the report to a file (default: stdout)")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "persist the run to the configured store")
	scanCmd.Flags().IntVar(&scanConcurrency, "concurrency", 0, "regions scanned in parallel (overrides config)")
	scanCmd.Flags().Float64Var(&scanBuy, "buy-threshold", 0, "BUY classification threshold (overrides config)")
	scanCmd.Flags().Float64Var(&scanWatch, "watch-threshold", 0, "WATCH classification threshold (overrides config)")
	rootCmd.AddCommand(scanCmd)
}

// applyScanOverrides folds changed scan flags into the loaded config before
// the environment is wired.
func applyScanOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("concurrency") {
		cfg.Pipeline.Concurrency = scanConcurrency
	}
	if cmd.Flags().Changed("buy-threshold") {
		cfg.Scorer.BuyThreshold = scanBuy
	}
	if cmd.Flags().Changed("watch-threshold") {
		cfg.Scorer.WatchThreshold = scanWatch
	}
}

// writeReport renders the report in the requested format to the output file
// or stdout.
func writeReport(report *model.ScanReport, format, output string) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return eris.Wrap(err, "scan: create output file")
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	switch format {
	case "table":
		formatReportTable(w, report)
		return nil
	case "csv":
		return writeReportCSV(w, report)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		return eris.Errorf("unknown output format %q (want table, csv, or json)", format)
	}
}

// formatReportTable writes the classified regions as an aligned table,
// highest score first, with unscored regions listed after.
func formatReportTable(out io.Writer, report *model.ScanReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REGION\tVERDICT\tSCORE\tBASE\tINFRA\tMARKET\tSOURCES")
	_, _ = fmt.Fprintln(w, "------\t-------\t-----\t----\t-----\t------\t-------")

	for _, res := range report.Results() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%d (x%.2f)\t%+.1f%% (x%.2f)\t%s\n",
			res.Region,
			res.Classification,
			res.FinalScore,
			res.BaseScore,
			res.InfraScore, res.InfraMultiplier,
			res.MarketTrendPct, res.MarketMultiplier,
			resultSources(res),
		)
	}
	_ = w.Flush()

	if len(report.Unscored) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "UNSCORED\tREASON")
		_, _ = fmt.Fprintln(w, "--------\t------")
		for _, u := range report.Unscored {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", u.Region, u.Reason)
		}
		_ = w.Flush()
	}

	_, _ = fmt.Fprintf(out, "\n%d analyzed: %d buy, %d watch, %d pass, %d unscored\n",
		report.Scored()+len(report.Unscored),
		len(report.BuyRecommendations),
		len(report.WatchList),
		len(report.PassList),
		len(report.Unscored),
	)
}

// resultSources renders the signal provenance column.
func resultSources(res model.ScoringResult) string {
	infra := string(res.InfraSource)
	if infra == "" {
		infra = "none"
	}
	mkt := res.MarketSource
	if mkt == "" {
		mkt = "none"
	}
	return infra + "/" + mkt
}

// writeReportCSV writes one row per scored region plus reason-annotated rows
// for unscored regions.
func writeReportCSV(out io.Writer, report *model.ScanReport) error {
	w := csv.NewWriter(out)

	header := []string{"region", "name", "classification", "final_score", "base_score",
		"infra_score", "infra_multiplier", "infra_source",
		"market_trend_pct", "market_multiplier", "market_source", "reason"}
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "scan: write csv")
	}

	for _, res := range report.Results() {
		row := []string{
			res.Region,
			res.RegionName,
			string(res.Classification),
			strconv.FormatFloat(res.FinalScore, 'f', 1, 64),
			strconv.FormatFloat(res.BaseScore, 'f', 1, 64),
			strconv.Itoa(res.InfraScore),
			strconv.FormatFloat(res.InfraMultiplier, 'f', 2, 64),
			string(res.InfraSource),
			strconv.FormatFloat(res.MarketTrendPct, 'f', 1, 64),
			strconv.FormatFloat(res.MarketMultiplier, 'f', 2, 64),
			res.MarketSource,
			"",
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "scan: write csv")
		}
	}

	for _, u := range report.Unscored {
		row := []string{u.Region, "", "UNSCORED", "", "", "", "", "", "", "", "", u.Reason}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "scan: write csv")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "scan: write csv")
}
