package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/harborview-capital/regionscan/internal/fetcher"
	"github.com/harborview-capital/regionscan/internal/model"
)

// regionsFile is the YAML shape: a top-level regions list, the same framing
// the fallback database and the dataset builder use.
type regionsFile struct {
	Regions []model.Region `yaml:"regions"`
}

// LoadRegionsFile reads an external region list. The format follows the
// extension: .yaml/.yml, or .csv with a header row naming at least name,
// lat, lon and base_score (key and market_trend_pct columns are optional).
func LoadRegionsFile(ctx context.Context, cfg RegionsFileConfig) ([]model.Region, error) {
	switch strings.ToLower(filepath.Ext(cfg.Path)) {
	case ".yaml", ".yml":
		return loadRegionsYAML(cfg.Path)
	case ".csv":
		return loadRegionsCSV(ctx, cfg)
	default:
		return nil, eris.Errorf("config: regions file %s is neither YAML nor CSV", cfg.Path)
	}
}

func loadRegionsYAML(path string) ([]model.Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read regions file %s", path)
	}

	var file regionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "config: parse regions file %s", path)
	}
	if len(file.Regions) == 0 {
		return nil, eris.Errorf("config: regions file %s lists no regions", path)
	}
	return file.Regions, nil
}

func loadRegionsCSV(ctx context.Context, cfg RegionsFileConfig) ([]model.Region, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: open regions file %s", cfg.Path)
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
		Charset:   cfg.Charset,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, eris.Wrapf(err, "config: read regions file %s", cfg.Path)
		}
	}

	// Both channels are closed, so a sent header is sitting in the buffer.
	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, eris.Errorf("config: regions file %s has no header row", cfg.Path)
	}

	colIdx := mapColumns(header)
	for _, need := range []string{"name", "lat", "lon", "base_score"} {
		if _, ok := colIdx[need]; !ok {
			return nil, eris.Errorf("config: regions file %s is missing the %s column", cfg.Path, need)
		}
	}

	regions := make([]model.Region, 0, len(rows))
	for i, row := range rows {
		line := i + 2 // the header is line 1
		name := getCol(row, colIdx, "name")
		if name == "" {
			continue
		}

		lat, err := strconv.ParseFloat(getCol(row, colIdx, "lat"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "config: regions file %s line %d: lat", cfg.Path, line)
		}
		lon, err := strconv.ParseFloat(getCol(row, colIdx, "lon"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "config: regions file %s line %d: lon", cfg.Path, line)
		}
		base, err := strconv.ParseFloat(getCol(row, colIdx, "base_score"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "config: regions file %s line %d: base_score", cfg.Path, line)
		}

		region := model.Region{
			Key:       getCol(row, colIdx, "key"),
			Name:      name,
			Center:    model.Coordinate{Lat: lat, Lon: lon},
			BaseScore: base,
		}
		if s := getCol(row, colIdx, "market_trend_pct"); s != "" {
			pct, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "config: regions file %s line %d: market_trend_pct", cfg.Path, line)
			}
			region.MarketTrendPct = &pct
		}
		regions = append(regions, region)
	}

	if len(regions) == 0 {
		return nil, eris.Errorf("config: regions file %s lists no regions", cfg.Path)
	}
	return regions, nil
}

// MergeRegions joins inline and file-sourced region lists into one scan set:
// keys filled in, every region validated, key collisions rejected.
func MergeRegions(lists ...[]model.Region) ([]model.Region, error) {
	var merged []model.Region
	seen := make(map[string]string) // key → display name
	for _, list := range lists {
		for _, region := range list {
			region.Normalize()
			if err := region.Validate(); err != nil {
				return nil, eris.Wrap(err, "config: region list")
			}
			if prev, dup := seen[region.Key]; dup {
				return nil, eris.Errorf("config: regions %q and %q collide on key %q",
					prev, region.Name, region.Key)
			}
			seen[region.Key] = region.Name
			merged = append(merged, region)
		}
	}
	if len(merged) == 0 {
		return nil, eris.New("config: no regions configured")
	}
	return merged, nil
}

// mapColumns builds a case-insensitive column name to index map.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

// getCol gets a column value by name, returning empty string if not found.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}
