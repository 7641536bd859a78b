package analyzer

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/harborview-capital/regionscan/internal/model"
)

// FeatureParams weights one feature class inside the infrastructure score.
type FeatureParams struct {
	// Weight is this feature's share of the score; all weights sum to 1.
	Weight float64 `yaml:"weight" mapstructure:"weight"`
	// Saturation is the count at which the feature contributes its full
	// weight; more features past this point stop helping.
	Saturation int `yaml:"saturation" mapstructure:"saturation"`
	// RadiusKm is the search radius for this feature class. Sparser feature
	// classes get larger radii so rural regions still yield signal.
	RadiusKm float64 `yaml:"radius_km" mapstructure:"radius_km"`
}

// Config controls the infrastructure analyzer.
type Config struct {
	Features    map[model.FeatureType]FeatureParams `yaml:"features" mapstructure:"features"`
	Concurrency int                                 `yaml:"concurrency" mapstructure:"concurrency"`
}

// DefaultConfig returns the standard analyzer parameters.
func DefaultConfig() Config {
	return Config{
		Features: map[model.FeatureType]FeatureParams{
			model.FeatureHighway: {Weight: 0.35, Saturation: 12, RadiusKm: 50},
			model.FeatureAirport: {Weight: 0.25, Saturation: 3, RadiusKm: 100},
			model.FeatureRailway: {Weight: 0.25, Saturation: 8, RadiusKm: 25},
			model.FeaturePort:    {Weight: 0.15, Saturation: 4, RadiusKm: 50},
		},
		Concurrency: len(model.FeatureTypes),
	}
}

// ValidateConfig rejects analyzer parameters that would break score
// boundedness before any query runs.
func ValidateConfig(cfg Config) error {
	var errs []string

	var weightSum float64
	for _, f := range model.FeatureTypes {
		params, ok := cfg.Features[f]
		if !ok {
			errs = append(errs, string(f)+": missing parameters")
			continue
		}
		if params.Weight <= 0 {
			errs = append(errs, string(f)+": weight must be positive")
		}
		if params.Saturation < 1 {
			errs = append(errs, string(f)+": saturation must be at least 1")
		}
		if params.RadiusKm <= 0 {
			errs = append(errs, string(f)+": radius must be positive")
		}
		weightSum += params.Weight
	}
	for f := range cfg.Features {
		if !f.Valid() {
			errs = append(errs, "unknown feature "+string(f))
		}
	}

	if math.Abs(weightSum-1.0) > 1e-6 {
		errs = append(errs, eris.Errorf("weights sum to %.4f, want 1.0", weightSum).Error())
	}
	if cfg.Concurrency < 1 {
		errs = append(errs, "concurrency must be at least 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("analyzer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
