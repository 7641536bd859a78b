// Package analyzer turns per-feature proximity counts into one bounded
// infrastructure record per region, degrading through partial records and
// the static fallback database when the live service fails.
package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harborview-capital/regionscan/internal/model"
	"github.com/harborview-capital/regionscan/internal/proximity"
)

// ScoreMissingError means a region has no live data and no fallback entry.
// Callers must handle it explicitly; it is never folded into a zero score.
type ScoreMissingError struct {
	Region   string
	Attempts int
}

func (e *ScoreMissingError) Error() string {
	return fmt.Sprintf("infrastructure score missing for %s: all %d proximity queries exhausted and no fallback entry", e.Region, e.Attempts)
}

// IsScoreMissing reports whether err is (or wraps) a missing-score condition.
func IsScoreMissing(err error) bool {
	var sm *ScoreMissingError
	return errors.As(err, &sm)
}

// Counter resolves one proximity query. *proximity.Service satisfies it.
type Counter interface {
	Count(ctx context.Context, q model.ProximityQuery) (int, error)
}

// Analyzer computes infrastructure records for regions.
type Analyzer struct {
	counter  Counter
	fallback *proximity.FallbackDB
	cfg      Config
}

// New builds an analyzer. fallback may be nil when no static database is
// configured; total query failure then surfaces a ScoreMissingError.
func New(counter Counter, fallback *proximity.FallbackDB, cfg Config) (*Analyzer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Analyzer{counter: counter, fallback: fallback, cfg: cfg}, nil
}

// Analyze issues one proximity query per feature class and aggregates the
// counts into a record.
//
// Failure ladder: every feature answered -> live record; some exhausted
// their schedule -> partial record with zero counts for the failed features;
// all exhausted -> the region's fallback entry verbatim, or ScoreMissingError
// when it has none. Context cancellation and malformed queries abort the
// whole region instead.
func (a *Analyzer) Analyze(ctx context.Context, region model.Region) (model.InfrastructureRecord, error) {
	region.Normalize()

	counts := make([]int, len(model.FeatureTypes))
	unavailable := make([]error, len(model.FeatureTypes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, feature := range model.FeatureTypes {
		g.Go(func() error {
			q := model.ProximityQuery{
				RegionKey: region.Key,
				Center:    region.Center,
				Feature:   feature,
				RadiusKm:  a.cfg.Features[feature].RadiusKm,
			}
			n, err := a.counter.Count(gctx, q)
			if err != nil {
				if proximity.IsUnavailable(err) {
					unavailable[i] = err
					return nil
				}
				return err
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.InfrastructureRecord{}, eris.Wrapf(err, "analyzer: region %s", region.Key)
	}

	var failed []model.FeatureType
	for i, f := range model.FeatureTypes {
		if unavailable[i] != nil {
			failed = append(failed, f)
		}
	}

	if len(failed) == len(model.FeatureTypes) {
		if rec, ok := a.fallback.Lookup(region.Key); ok {
			zap.L().Info("substituting fallback infrastructure record",
				zap.String("region", region.Key),
				zap.Int("infra_score", rec.Score),
			)
			return rec, nil
		}
		return model.InfrastructureRecord{}, &ScoreMissingError{
			Region:   region.Key,
			Attempts: len(model.FeatureTypes),
		}
	}

	rec := model.InfrastructureRecord{Source: model.SourceLive}
	for i, f := range model.FeatureTypes {
		rec.SetCount(f, counts[i])
	}
	if len(failed) > 0 {
		rec.Source = model.SourcePartial
		zap.L().Warn("partial infrastructure record",
			zap.String("region", region.Key),
			zap.Any("failed_features", failed),
		)
	}
	rec.Score = ScoreCounts(rec, a.cfg)

	zap.L().Info("infrastructure analyzed",
		zap.String("region", region.Key),
		zap.Int("infra_score", rec.Score),
		zap.Int("highways", rec.Highways),
		zap.Int("airports", rec.Airports),
		zap.Int("railways", rec.Railways),
		zap.Int("ports", rec.Ports),
		zap.String("source", string(rec.Source)),
	)
	return rec, nil
}
