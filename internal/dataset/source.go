package dataset

import (
	"github.com/rotisserie/eris"

	"github.com/harborview-capital/regionscan/internal/model"
)

// FeatureSource names the shapefile that carries every feature of one class.
type FeatureSource struct {
	Feature model.FeatureType `yaml:"feature" mapstructure:"feature"`
	// URL locates the shapefile or a ZIP archive containing one. http(s)
	// and ftp URLs are downloaded; anything else is treated as a local path.
	URL string `yaml:"url" mapstructure:"url"`
}

// Config describes one fallback-database build.
type Config struct {
	Sources []FeatureSource `yaml:"sources" mapstructure:"sources"`
	// WorkDir keeps downloaded archives between builds so a rerun skips
	// finished downloads. Empty means a throwaway temp dir.
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`
}

// Validate rejects a build configuration that could not produce a complete
// record per region.
func (c Config) Validate() error {
	if len(c.Sources) == 0 {
		return eris.New("dataset: at least one feature source is required")
	}

	seen := make(map[model.FeatureType]bool, len(c.Sources))
	for _, src := range c.Sources {
		if !src.Feature.Valid() {
			return eris.Errorf("dataset: unknown feature type %q", src.Feature)
		}
		if seen[src.Feature] {
			return eris.Errorf("dataset: duplicate source for feature %s", src.Feature)
		}
		seen[src.Feature] = true

		if src.URL == "" {
			return eris.Errorf("dataset: source for %s has no url", src.Feature)
		}
	}
	return nil
}
