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
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <region>",
	Short: "Analyze infrastructure proximity for one region",
	Long: `Runs the infrastructure analysis for a single configured region and
prints the per-feature counts, the derived score, and where the record came
from (live queries, partial, or the fallback database). Useful for checking
endpoint health and fallback coverage before a full scan.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		regions, err := loadRegions(ctx, "")
		if err != nil {
			return err
		}

		region, err := findRegion(regions, args[0])
		if err != nil {
			return err
		}

		env, err := initScanEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Analyzer.Analyze(ctx, region)
		if err != nil {
			return eris.Wrapf(err, "analyze %s", region.Key)
		}

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}

		formatRecord(os.Stdout, region, rec)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the record as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

// findRegion resolves the argument against configured region keys; a display
// name is accepted and slugified.
func findRegion(regions []model.Region, arg string) (model.Region, error) {
	want := model.Slugify(arg)
	for _, r := range regions {
		if r.Key == want {
			return r, nil
		}
	}

	keys := make([]string, len(regions))
	for i, r := range regions {
		keys[i] = r.Key
	}
	return model.Region{}, eris.Errorf("region %q not configured (have: %s)", arg, joinKeys(keys))
}

func joinKeys(keys []string) string {
	if len(keys) == 0 {
		return "none"
	}
	out := keys[0]
	for _, k := range keys[1:] {
		out += ", " + k
	}
	return out
}

// formatRecord writes the per-feature counts and derived score as a table.
func formatRecord(out io.Writer, region model.Region, rec model.InfrastructureRecord) {
	_, _ = fmt.Fprintf(out, "%s (%s)  center %.4f,%.4f\n\n", region.Name, region.Key, region.Center.Lat, region.Center.Lon)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FEATURE\tCOUNT")
	_, _ = fmt.Fprintln(w, "-------\t-----")
	for _, ft := range model.FeatureTypes {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", ft, rec.Count(ft))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nscore:  %d\nsource: %s\n", rec.Score, rec.Source)
}
