package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harborview-capital/regionscan/internal/dataset"
	"github.com/harborview-capital/regionscan/internal/fetcher"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Maintain the static fallback database",
}

var datasetOut string
var datasetSave bool

var datasetBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the fallback database from infrastructure shapefiles",
	Long: `Downloads the configured transport-infrastructure shapefiles, counts
features within each analyzer radius of every region center, and writes the
resulting records as the static fallback database. Scans consult that file
when every proximity endpoint is exhausted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := datasetOut
		if out == "" {
			out = cfg.Proximity.Fallback
		}
		if out == "" {
			return eris.New("dataset build: no output path (set --out or proximity.fallback)")
		}

		regions, err := loadRegions(ctx, "")
		if err != nil {
			return err
		}

		builder, err := dataset.NewBuilder(cfg.Dataset, cfg.Analyzer,
			dataset.WithHTTPFetcher(fetcher.NewHTTPFetcher(cfg.Fetcher.HTTPOptions())),
			dataset.WithFTPFetcher(fetcher.NewFTPFetcher(cfg.Fetcher.FTPOptions())),
		)
		if err != nil {
			return err
		}

		records, err := builder.Build(ctx, regions)
		if err != nil {
			return eris.Wrap(err, "dataset build")
		}

		if err := dataset.WriteFallback(out, records); err != nil {
			return err
		}
		zap.L().Info("fallback database written",
			zap.String("path", out),
			zap.Int("regions", len(records)),
		)

		if datasetSave {
			if !cfg.Store.Enabled {
				return eris.New("dataset build: --save requires store.enabled in config")
			}
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			n, err := st.SaveInfraRecords(ctx, records)
			if err != nil {
				return eris.Wrap(err, "dataset build: mirror records")
			}
			zap.L().Info("fallback records mirrored to store", zap.Int64("records", n))
		}

		return nil
	},
}

func init() {
	datasetBuildCmd.Flags().StringVar(&datasetOut, "out", "", "output path (default: proximity.fallback from config)")
	datasetBuildCmd.Flags().BoolVar(&datasetSave, "save", false, "also mirror the records into the run store")
	datasetCmd.AddCommand(datasetBuildCmd)
	rootCmd.AddCommand(datasetCmd)
}
