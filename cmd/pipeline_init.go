package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harborview-capital/regionscan/internal/analyzer"
	"github.com/harborview-capital/regionscan/internal/config"
	"github.com/harborview-capital/regionscan/internal/fetcher"
	"github.com/harborview-capital/regionscan/internal/market"
	"github.com/harborview-capital/regionscan/internal/model"
	"github.com/harborview-capital/regionscan/internal/pipeline"
	"github.com/harborview-capital/regionscan/internal/proximity"
	"github.com/harborview-capital/regionscan/internal/scorer"
	"github.com/harborview-capital/regionscan/internal/store"
	"github.com/harborview-capital/regionscan/pkg/overpass"
)

// scanEnv holds the initialized analyzer, market cascade, pipeline, and the
// optional run store needed by the scan and analyze commands.
type scanEnv struct {
	Store    store.Store // nil unless store.enabled
	Analyzer *analyzer.Analyzer
	Market   *market.Cascade
	Runner   *pipeline.Runner
}

// Close releases resources held by the scan environment.
func (se *scanEnv) Close() {
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

// initScanEnv wires the proximity schedule, fallback database, market
// providers, scorer, and pipeline from the loaded config. Callers should
// defer env.Close().
func initScanEnv(ctx context.Context) (*scanEnv, error) {
	an, err := initAnalyzer()
	if err != nil {
		return nil, err
	}

	cascade, err := initMarket(ctx)
	if err != nil {
		return nil, err
	}

	sc, err := scorer.New(cfg.Scorer)
	if err != nil {
		return nil, err
	}

	env := &scanEnv{
		Analyzer: an,
		Market:   cascade,
		Runner:   pipeline.New(an, cascade, sc, cfg.Pipeline),
	}

	if cfg.Store.Enabled {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		env.Store = st
	}

	return env, nil
}

// initAnalyzer builds the proximity failover service and the infrastructure
// analyzer on top of it.
func initAnalyzer() (*analyzer.Analyzer, error) {
	plan, err := proximity.BuildSchedule(cfg.Proximity.Schedule())
	if err != nil {
		return nil, err
	}

	client := overpass.NewClient()
	svc := proximity.NewService(client, plan)

	var fallback *proximity.FallbackDB
	if cfg.Proximity.Fallback != "" {
		fallback, err = proximity.LoadFallbackDB(cfg.Proximity.Fallback)
		if err != nil {
			return nil, eris.Wrap(err, "load fallback database")
		}
		zap.L().Info("fallback database loaded",
			zap.String("path", cfg.Proximity.Fallback),
			zap.Int("regions", fallback.Len()),
		)
	} else {
		zap.L().Debug("no fallback database configured, regions degrade to live-only")
	}

	return analyzer.New(svc, fallback, cfg.Analyzer)
}

// initMarket assembles the trend provider cascade in configured order.
// Providers whose source is not configured are skipped; a configured source
// that fails to load aborts instead of silently shrinking the cascade.
func initMarket(ctx context.Context) (*market.Cascade, error) {
	var providers []market.Provider

	for _, name := range cfg.Market.Order {
		switch name {
		case "static":
			if cfg.Market.Static == "" {
				zap.L().Debug("market provider skipped, no source configured", zap.String("provider", name))
				continue
			}
			p, err := market.LoadStatic(cfg.Market.Static)
			if err != nil {
				return nil, eris.Wrap(err, "load static trend table")
			}
			providers = append(providers, p)

		case "workbook":
			if cfg.Market.Workbook.Path == "" {
				zap.L().Debug("market provider skipped, no source configured", zap.String("provider", name))
				continue
			}
			if _, err := market.RefreshWorkbook(ctx, newConditionalFetcher(), cfg.Market.Workbook); err != nil {
				// A stale local copy still beats no workbook.
				zap.L().Warn("workbook refresh failed, using local copy", zap.Error(err))
			}
			p, err := market.LoadWorkbook(cfg.Market.Workbook)
			if err != nil {
				return nil, eris.Wrap(err, "load trend workbook")
			}
			providers = append(providers, p)

		case "api":
			if cfg.Market.API.BaseURL == "" {
				zap.L().Debug("market provider skipped, no source configured", zap.String("provider", name))
				continue
			}
			providers = append(providers, market.NewAPI(cfg.Market.API.BaseURL, cfg.Market.API.Key))

		default:
			return nil, eris.Errorf("unknown market provider %q in market.order", name)
		}
	}

	zap.L().Info("market cascade assembled", zap.Int("providers", len(providers)))
	return market.NewCascade(providers...), nil
}

// newConditionalFetcher returns the HTTP fetcher used for workbook refresh,
// configured from the fetcher config section.
func newConditionalFetcher() fetcher.ConditionalFetcher {
	return fetcher.NewHTTPFetcher(cfg.Fetcher.HTTPOptions())
}

// loadRegions merges the inline config regions with the regions file, when
// one is configured. regionsFile, when not empty, overrides the configured
// path.
func loadRegions(ctx context.Context, regionsFile string) ([]model.Region, error) {
	fileCfg := cfg.RegionsFile
	if regionsFile != "" {
		fileCfg.Path = regionsFile
	}

	var fromFile []model.Region
	if fileCfg.Path != "" {
		var err error
		fromFile, err = config.LoadRegionsFile(ctx, fileCfg)
		if err != nil {
			return nil, err
		}
		zap.L().Info("regions file loaded",
			zap.String("path", fileCfg.Path),
			zap.Int("regions", len(fromFile)),
		)
	}

	return config.MergeRegions(cfg.Regions, fromFile)
}
