package market

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harborview-capital/regionscan/internal/fetcher"
	"github.com/harborview-capital/regionscan/internal/model"
)

// WorkbookConfig locates a price-history sheet and sets the trend window.
type WorkbookConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	// URL, when set, lets RefreshWorkbook pull a newer copy of the sheet
	// into Path before loading. Empty means Path is maintained by hand.
	URL string `yaml:"url" mapstructure:"url"`
	// Sheet selects a worksheet by name; empty means the first sheet.
	Sheet    string `yaml:"sheet" mapstructure:"sheet"`
	SkipRows int    `yaml:"skip_rows" mapstructure:"skip_rows"`
	// Window is how many periods back the trend comparison reaches.
	// Default: 4.
	Window int `yaml:"window" mapstructure:"window"`
}

// Workbook derives trends from a price-history spreadsheet: one row per
// region, first cell the region name, remaining cells one price per period.
// The whole sheet is folded into a trend table at load time.
type Workbook struct {
	trends map[string]float64
}

// LoadWorkbook reads the sheet and precomputes every region's trend as the
// percent change between the newest price and the price Window periods
// earlier. Rows without enough history are skipped with a warning.
func LoadWorkbook(cfg WorkbookConfig) (*Workbook, error) {
	if cfg.Window <= 0 {
		cfg.Window = 4
	}

	rows, err := fetcher.ReadXLSX(cfg.Path, fetcher.XLSXOptions{
		SheetName: cfg.Sheet,
		SkipRows:  cfg.SkipRows,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "market: read workbook %s", cfg.Path)
	}

	wb := &Workbook{trends: make(map[string]float64, len(rows))}
	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		name := strings.TrimSpace(row[0])
		slug := model.Slugify(name)
		if slug == "" {
			zap.L().Warn("market: workbook region name normalizes to nothing",
				zap.String("region", name),
				zap.Int("row", i+cfg.SkipRows+1),
			)
			continue
		}
		if _, dup := wb.trends[slug]; dup {
			return nil, eris.Errorf("market: workbook regions collide on %q", slug)
		}

		series := parseSeries(row[1:])
		if len(series) < cfg.Window+1 {
			zap.L().Warn("market: not enough price history for trend window",
				zap.String("region", name),
				zap.Int("points", len(series)),
				zap.Int("window", cfg.Window),
			)
			continue
		}

		last := series[len(series)-1]
		earlier := series[len(series)-1-cfg.Window]
		if earlier == 0 {
			zap.L().Warn("market: zero base price, cannot compute trend",
				zap.String("region", name),
			)
			continue
		}
		wb.trends[slug] = (last - earlier) / earlier * 100
	}

	zap.L().Info("market workbook loaded",
		zap.String("path", cfg.Path),
		zap.Int("regions", len(wb.trends)),
	)
	return wb, nil
}

// parseSeries reads the numeric cells of a row in order, skipping blanks.
func parseSeries(cells []string) []float64 {
	series := make([]float64, 0, len(cells))
	for _, cell := range cells {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			continue
		}
		series = append(series, v)
	}
	return series
}

// Name implements Provider.
func (w *Workbook) Name() string { return "workbook" }

// Available implements Provider.
func (w *Workbook) Available() bool { return w != nil && len(w.trends) > 0 }

// Trend implements Provider.
func (w *Workbook) Trend(_ context.Context, regionKey string) (Trend, bool, error) {
	pct, ok := w.trends[model.Slugify(regionKey)]
	if !ok {
		return Trend{}, false, nil
	}
	return Trend{Pct: pct, Source: w.Name()}, true, nil
}
