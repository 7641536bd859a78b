package scorer

import (
	"strings"

	"github.com/rotisserie/eris"
)

// MissingSignalPolicy selects what happens to a region when one of its
// scoring signals cannot be obtained.
type MissingSignalPolicy string

const (
	// PolicySkip sends the region to the unscored list with a reason.
	PolicySkip MissingSignalPolicy = "skip"
	// PolicyNeutral scores the region with the neutral 1.00 multiplier and
	// logs the substitution.
	PolicyNeutral MissingSignalPolicy = "neutral"
)

func (p MissingSignalPolicy) valid() bool {
	return p == PolicySkip || p == PolicyNeutral
}

// Config controls band tables, classification thresholds, and the handling
// of absent signals.
type Config struct {
	InfraBands     BandTable `yaml:"infra_bands" mapstructure:"infra_bands"`
	MarketBands    BandTable `yaml:"market_bands" mapstructure:"market_bands"`
	BuyThreshold   float64   `yaml:"buy_threshold" mapstructure:"buy_threshold"`
	WatchThreshold float64   `yaml:"watch_threshold" mapstructure:"watch_threshold"`

	MissingInfra  MissingSignalPolicy `yaml:"missing_infra" mapstructure:"missing_infra"`
	MissingMarket MissingSignalPolicy `yaml:"missing_market" mapstructure:"missing_market"`
}

// DefaultConfig returns the standard scoring parameters.
func DefaultConfig() Config {
	return Config{
		InfraBands:     DefaultInfraBands(),
		MarketBands:    DefaultMarketBands(),
		BuyThreshold:   40,
		WatchThreshold: 25,
		MissingInfra:   PolicySkip,
		MissingMarket:  PolicySkip,
	}
}

// ValidateConfig rejects scoring parameters that could misclassify or drop
// regions, before any scan starts.
func ValidateConfig(cfg Config) error {
	var errs []string

	if err := cfg.InfraBands.Validate("infra"); err != nil {
		errs = append(errs, err.Error())
	}
	if err := cfg.MarketBands.Validate("market"); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.BuyThreshold <= cfg.WatchThreshold {
		errs = append(errs, eris.Errorf("buy threshold %.2f must exceed watch threshold %.2f",
			cfg.BuyThreshold, cfg.WatchThreshold).Error())
	}
	if !cfg.MissingInfra.valid() {
		errs = append(errs, "missing_infra policy must be skip or neutral")
	}
	if !cfg.MissingMarket.valid() {
		errs = append(errs, "missing_market policy must be skip or neutral")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
