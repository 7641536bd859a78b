// Package config loads the application configuration from file and
// environment and owns the global logger setup.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/harborview-capital/regionscan/internal/analyzer"
	"github.com/harborview-capital/regionscan/internal/dataset"
	"github.com/harborview-capital/regionscan/internal/fetcher"
	"github.com/harborview-capital/regionscan/internal/market"
	"github.com/harborview-capital/regionscan/internal/model"
	"github.com/harborview-capital/regionscan/internal/monitoring"
	"github.com/harborview-capital/regionscan/internal/pipeline"
	"github.com/harborview-capital/regionscan/internal/proximity"
	"github.com/harborview-capital/regionscan/internal/scorer"
)

// Config holds the full application configuration.
type Config struct {
	Regions     []model.Region    `yaml:"regions" mapstructure:"regions"`
	RegionsFile RegionsFileConfig `yaml:"regions_file" mapstructure:"regions_file"`
	Proximity   ProximityConfig   `yaml:"proximity" mapstructure:"proximity"`
	Analyzer    analyzer.Config   `yaml:"analyzer" mapstructure:"analyzer"`
	Market      MarketConfig      `yaml:"market" mapstructure:"market"`
	Scorer      scorer.Config     `yaml:"scorer" mapstructure:"scorer"`
	Pipeline    pipeline.Config   `yaml:"pipeline" mapstructure:"pipeline"`
	Dataset     dataset.Config    `yaml:"dataset" mapstructure:"dataset"`
	Fetcher     FetcherConfig     `yaml:"fetcher" mapstructure:"fetcher"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// RegionsFileConfig points at an external region list, merged after the
// inline regions. YAML and CSV files are accepted; Charset applies to CSV
// only (regional portals still publish ISO-8859-1).
type RegionsFileConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	Charset string `yaml:"charset" mapstructure:"charset"`
}

// ProximityConfig configures the endpoint failover ladder and the static
// fallback database.
type ProximityConfig struct {
	Primary            string   `yaml:"primary" mapstructure:"primary"`
	Mirrors            []string `yaml:"mirrors" mapstructure:"mirrors"`
	InitialTimeoutSecs int      `yaml:"initial_timeout_secs" mapstructure:"initial_timeout_secs"`
	RetryTimeoutSecs   int      `yaml:"retry_timeout_secs" mapstructure:"retry_timeout_secs"`
	InitialDelayMs     int      `yaml:"initial_delay_ms" mapstructure:"initial_delay_ms"`
	DelayMultiplier    float64  `yaml:"delay_multiplier" mapstructure:"delay_multiplier"`
	// Fallback is the path of the static fallback database. Empty disables
	// fallback substitution.
	Fallback string `yaml:"fallback" mapstructure:"fallback"`
}

// Schedule converts the flat config knobs into a schedule config.
func (c ProximityConfig) Schedule() proximity.ScheduleConfig {
	return proximity.ScheduleConfig{
		Primary:         c.Primary,
		Mirrors:         c.Mirrors,
		InitialTimeout:  time.Duration(c.InitialTimeoutSecs) * time.Second,
		RetryTimeout:    time.Duration(c.RetryTimeoutSecs) * time.Second,
		InitialDelay:    time.Duration(c.InitialDelayMs) * time.Millisecond,
		DelayMultiplier: c.DelayMultiplier,
	}
}

// MarketConfig configures the trend provider cascade.
type MarketConfig struct {
	// Order names providers in cascade order; providers with no configured
	// source are left out of the cascade.
	Order []string `yaml:"order" mapstructure:"order"`
	// Static is the path of the YAML trend table.
	Static   string                `yaml:"static" mapstructure:"static"`
	Workbook market.WorkbookConfig `yaml:"workbook" mapstructure:"workbook"`
	API      MarketAPIConfig       `yaml:"api" mapstructure:"api"`
}

// MarketAPIConfig holds the HTTP trend API settings.
type MarketAPIConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// FetcherConfig configures the HTTP/FTP download layer shared by the
// dataset builder and the market workbook refresh.
type FetcherConfig struct {
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int    `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBaseDelayMs int    `yaml:"retry_base_delay_ms" mapstructure:"retry_base_delay_ms"`
	// DefaultRatePerSec applies to hosts not listed in HostRatesPerSec.
	DefaultRatePerSec float64            `yaml:"default_rate_per_sec" mapstructure:"default_rate_per_sec"`
	HostRatesPerSec   map[string]float64 `yaml:"host_rates_per_sec" mapstructure:"host_rates_per_sec"`
}

// HTTPOptions converts the flat config knobs into HTTP fetcher options.
func (c FetcherConfig) HTTPOptions() fetcher.HTTPOptions {
	hostRates := make(map[string]fetcher.HostRate, len(c.HostRatesPerSec))
	for host, perSec := range c.HostRatesPerSec {
		hostRates[host] = fetcher.HostRate{PerSecond: perSec, Burst: burstFor(perSec)}
	}
	return fetcher.HTTPOptions{
		UserAgent:      c.UserAgent,
		Timeout:        time.Duration(c.TimeoutSecs) * time.Second,
		MaxRetries:     c.MaxRetries,
		RetryBaseDelay: time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		HostRates:      hostRates,
		DefaultRate:    fetcher.HostRate{PerSecond: c.DefaultRatePerSec, Burst: burstFor(c.DefaultRatePerSec)},
	}
}

// FTPOptions converts the shared timeout knob into FTP fetcher options.
func (c FetcherConfig) FTPOptions() fetcher.FTPOptions {
	return fetcher.FTPOptions{Timeout: time.Duration(c.TimeoutSecs) * time.Second}
}

// burstFor sizes a limiter burst to its rate, at least 1.
func burstFor(perSec float64) int {
	if perSec < 1 {
		return 1
	}
	return int(perSec)
}

// StoreConfig configures the scan-run database backend.
type StoreConfig struct {
	// Enabled turns on run persistence; scans work without it.
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MonitoringConfig configures run-health checks over persisted scan runs.
// Thresholds are rates in [0,1]; zero disables a check.
type MonitoringConfig struct {
	LookbackWindowHours int                   `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	Thresholds          monitoring.Thresholds `yaml:"thresholds" mapstructure:"thresholds"`
	WebhookURL          string                `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. cfgFile, when not
// empty, pins the exact file instead of the search path.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.regionscan")
		v.AddConfigPath("/etc/regionscan")
	}

	// Environment
	v.SetEnvPrefix("REGIONSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "regionscan.db")
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("proximity.primary", "https://overpass-api.de/api/interpreter")
	v.SetDefault("proximity.mirrors", []string{
		"https://overpass.kumi.systems/api/interpreter",
		"https://overpass.openstreetmap.ru/api/interpreter",
	})
	v.SetDefault("proximity.initial_timeout_secs", 8)
	v.SetDefault("proximity.retry_timeout_secs", 20)
	v.SetDefault("proximity.initial_delay_ms", 500)
	v.SetDefault("proximity.delay_multiplier", 2.0)
	v.SetDefault("analyzer.concurrency", 4)
	v.SetDefault("analyzer.features.highway.weight", 0.35)
	v.SetDefault("analyzer.features.highway.saturation", 12)
	v.SetDefault("analyzer.features.highway.radius_km", 50.0)
	v.SetDefault("analyzer.features.airport.weight", 0.25)
	v.SetDefault("analyzer.features.airport.saturation", 3)
	v.SetDefault("analyzer.features.airport.radius_km", 100.0)
	v.SetDefault("analyzer.features.railway.weight", 0.25)
	v.SetDefault("analyzer.features.railway.saturation", 8)
	v.SetDefault("analyzer.features.railway.radius_km", 25.0)
	v.SetDefault("analyzer.features.port.weight", 0.15)
	v.SetDefault("analyzer.features.port.saturation", 4)
	v.SetDefault("analyzer.features.port.radius_km", 50.0)
	v.SetDefault("scorer.buy_threshold", 40.0)
	v.SetDefault("scorer.watch_threshold", 25.0)
	v.SetDefault("scorer.missing_infra", "skip")
	v.SetDefault("scorer.missing_market", "skip")
	v.SetDefault("market.order", []string{"static", "workbook", "api"})
	v.SetDefault("market.workbook.window", 4)
	v.SetDefault("fetcher.user_agent", "regionscan/1.0")
	v.SetDefault("fetcher.timeout_secs", 30)
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.retry_base_delay_ms", 1000)
	v.SetDefault("fetcher.default_rate_per_sec", 20.0)
	// Geofabrik serves multi-hundred-MB extracts, so it gets the most
	// conservative rate.
	v.SetDefault("fetcher.host_rates_per_sec", map[string]float64{
		"download.geofabrik.de": 2,
		"www.ine.pt":            5,
		"data.europa.eu":        5,
	})
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.thresholds.run_failure_rate", 0.25)
	v.SetDefault("monitoring.thresholds.unscored_rate", 0.20)
	v.SetDefault("monitoring.thresholds.degraded_rate", 0.50)

	// Read config file (optional; a pinned file that is missing fails
	// with a path error rather than ConfigFileNotFoundError)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// Band tables are data, not scalars; default them after the unmarshal.
	if len(cfg.Scorer.InfraBands) == 0 {
		cfg.Scorer.InfraBands = scorer.DefaultInfraBands()
	}
	if len(cfg.Scorer.MarketBands) == 0 {
		cfg.Scorer.MarketBands = scorer.DefaultMarketBands()
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
