// Package dataset builds the static fallback database from public
// transport-infrastructure shapefiles. It exists so scans keep working when
// every proximity endpoint is down: counts are computed offline against the
// same radii and scoring parameters the live analyzer uses.
package dataset

import (
	"context"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/harborview-capital/regionscan/internal/analyzer"
	"github.com/harborview-capital/regionscan/internal/fetcher"
	"github.com/harborview-capital/regionscan/internal/model"
)

// Builder turns feature shapefiles into per-region infrastructure records.
type Builder struct {
	cfg  Config
	acfg analyzer.Config
	http *fetcher.HTTPFetcher
	ftp  *fetcher.FTPFetcher

	// loadMarks is swapped out in tests to avoid real shapefile fixtures.
	loadMarks func(shpPath string) ([]Mark, error)
}

// Option configures a Builder.
type Option func(*Builder)

// WithHTTPFetcher sets the fetcher used for http(s) sources.
func WithHTTPFetcher(f *fetcher.HTTPFetcher) Option {
	return func(b *Builder) {
		b.http = f
	}
}

// WithFTPFetcher sets the fetcher used for ftp sources.
func WithFTPFetcher(f *fetcher.FTPFetcher) Option {
	return func(b *Builder) {
		b.ftp = f
	}
}

// NewBuilder validates the build configuration and the analyzer parameters
// the counts will be scored with. Validating analyzer config here means a
// radius typo fails the build before any download starts.
func NewBuilder(cfg Config, acfg analyzer.Config, opts ...Option) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := analyzer.ValidateConfig(acfg); err != nil {
		return nil, err
	}

	b := &Builder{
		cfg:       cfg,
		acfg:      acfg,
		http:      fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}),
		ftp:       fetcher.NewFTPFetcher(fetcher.FTPOptions{}),
		loadMarks: LoadMarks,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build fetches every configured source and counts, for each region, the
// features within that feature's analyzer radius of the region center. The
// returned records carry the derived infrastructure score and are keyed by
// region key.
func (b *Builder) Build(ctx context.Context, regions []model.Region) (map[string]model.InfrastructureRecord, error) {
	if len(regions) == 0 {
		return nil, eris.New("dataset: no regions to build records for")
	}

	workDir := b.cfg.WorkDir
	if workDir == "" {
		tmp, err := os.MkdirTemp("", "regionscan-dataset-")
		if err != nil {
			return nil, eris.Wrap(err, "dataset: create work dir")
		}
		defer func() { _ = os.RemoveAll(tmp) }()
		workDir = tmp
	} else if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "dataset: create work dir")
	}

	log := zap.L().With(zap.String("component", "dataset.builder"))

	type site struct {
		key    string
		center orb.Point
	}
	sites := make([]site, 0, len(regions))
	records := make(map[string]model.InfrastructureRecord, len(regions))

	for i := range regions {
		region := regions[i]
		region.Normalize()
		if err := region.Validate(); err != nil {
			return nil, err
		}
		if _, dup := records[region.Key]; dup {
			return nil, eris.Errorf("dataset: regions collide on key %q", region.Key)
		}
		records[region.Key] = model.InfrastructureRecord{}
		sites = append(sites, site{
			key:    region.Key,
			center: orb.Point{region.Center.Lon, region.Center.Lat},
		})
	}

	for _, src := range b.cfg.Sources {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "dataset: build interrupted")
		}
		params := b.acfg.Features[src.Feature]

		shpPath, err := b.resolveShapefile(ctx, src, workDir)
		if err != nil {
			return nil, err
		}

		marks, err := b.loadMarks(shpPath)
		if err != nil {
			return nil, err
		}
		log.Info("feature source loaded",
			zap.String("feature", string(src.Feature)),
			zap.Int("marks", len(marks)),
		)

		for _, s := range sites {
			count := 0
			for _, m := range marks {
				if m.WithinKm(s.center, params.RadiusKm) {
					count++
				}
			}
			rec := records[s.key]
			rec.SetCount(src.Feature, count)
			records[s.key] = rec
		}
	}

	for key, rec := range records {
		rec.Score = analyzer.ScoreCounts(rec, b.acfg)
		records[key] = rec
	}

	log.Info("fallback records built",
		zap.Int("regions", len(records)),
		zap.Int("sources", len(b.cfg.Sources)),
	)
	return records, nil
}

// fallbackFile is the on-disk shape of the fallback database.
type fallbackFile struct {
	Regions map[string]model.InfrastructureRecord `yaml:"regions"`
}

// WriteFallback writes records as a fallback database file. The write goes
// through a temp file and rename so a concurrent reader never sees a
// half-written table.
func WriteFallback(path string, records map[string]model.InfrastructureRecord) error {
	if len(records) == 0 {
		return eris.New("dataset: refusing to write an empty fallback database")
	}

	out, err := yaml.Marshal(fallbackFile{Regions: records})
	if err != nil {
		return eris.Wrap(err, "dataset: marshal fallback database")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "dataset: create %s", dir)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return eris.Wrapf(err, "dataset: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "dataset: replace %s", path)
	}

	zap.L().Info("fallback database written",
		zap.String("path", path),
		zap.Int("regions", len(records)),
	)
	return nil
}
