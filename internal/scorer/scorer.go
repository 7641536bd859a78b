// Package scorer turns a region's signals into a classified investment
// verdict with a tiered-multiplier model: each signal selects a multiplier
// from a banded table and the base score is scaled by the product.
package scorer

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/harborview-capital/regionscan/internal/model"
)

// neutralMultiplier is applied in place of a missing signal when the
// configured policy is PolicyNeutral.
const neutralMultiplier = 1.00

// SignalGapError reports that a required signal was absent and policy says
// the region must not be scored without it.
type SignalGapError struct {
	Region string
	Signal string
}

func (e *SignalGapError) Error() string {
	return fmt.Sprintf("region %s has no %s signal and policy is skip", e.Region, e.Signal)
}

// IsSignalGap reports whether err is (or wraps) a skipped-signal condition.
func IsSignalGap(err error) bool {
	var sg *SignalGapError
	return errors.As(err, &sg)
}

// Scorer applies the tiered-multiplier model.
type Scorer struct {
	cfg Config
}

// New validates the band tables and thresholds up front so every later
// Score call is total over its inputs.
func New(cfg Config) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Score computes final_score = base x infra multiplier x market multiplier
// and classifies it against the configured thresholds. Missing signals are
// resolved by policy: skip surfaces a SignalGapError, neutral scores with
// the 1.00 multiplier.
func (s *Scorer) Score(in model.ScoringInput) (model.ScoringResult, error) {
	infraMult, err := s.infraMultiplier(in)
	if err != nil {
		return model.ScoringResult{}, err
	}
	marketMult, err := s.marketMultiplier(in)
	if err != nil {
		return model.ScoringResult{}, err
	}

	final := round2(in.BaseScore * infraMult * marketMult)
	class := s.classify(final)

	res := model.ScoringResult{
		Region:           in.Region.Key,
		RegionName:       in.Region.Name,
		FinalScore:       final,
		BaseScore:        in.BaseScore,
		InfraScore:       in.InfraScore,
		InfraSource:      in.InfraSource,
		InfraMultiplier:  infraMult,
		MarketTrendPct:   in.MarketTrendPct,
		MarketSource:     in.MarketSource,
		MarketMultiplier: marketMult,
		Classification:   class,
	}

	zap.L().Info("scorer: region scored",
		zap.String("region", in.Region.Key),
		zap.Float64("final_score", final),
		zap.Float64("infra_multiplier", infraMult),
		zap.Float64("market_multiplier", marketMult),
		zap.String("classification", string(class)),
	)
	return res, nil
}

func (s *Scorer) infraMultiplier(in model.ScoringInput) (float64, error) {
	if !in.InfraAvailable {
		if s.cfg.MissingInfra == PolicyNeutral {
			zap.L().Warn("scorer: no infrastructure signal, applying neutral multiplier",
				zap.String("region", in.Region.Key))
			return neutralMultiplier, nil
		}
		return 0, &SignalGapError{Region: in.Region.Key, Signal: "infrastructure"}
	}
	mult, ok := s.cfg.InfraBands.Lookup(float64(in.InfraScore))
	if !ok {
		return 0, &GapError{Table: "infra",
			Reason: fmt.Sprintf("no band for score %d", in.InfraScore)}
	}
	return mult, nil
}

func (s *Scorer) marketMultiplier(in model.ScoringInput) (float64, error) {
	if !in.MarketAvailable {
		if s.cfg.MissingMarket == PolicyNeutral {
			zap.L().Warn("scorer: no market signal, applying neutral multiplier",
				zap.String("region", in.Region.Key))
			return neutralMultiplier, nil
		}
		return 0, &SignalGapError{Region: in.Region.Key, Signal: "market"}
	}
	mult, ok := s.cfg.MarketBands.Lookup(in.MarketTrendPct)
	if !ok {
		return 0, &GapError{Table: "market",
			Reason: fmt.Sprintf("no band for trend %.2f%%", in.MarketTrendPct)}
	}
	return mult, nil
}

// classify runs on the rounded final score so the reported number and the
// verdict can never disagree at a threshold boundary.
func (s *Scorer) classify(final float64) model.Classification {
	switch {
	case final >= s.cfg.BuyThreshold:
		return model.ClassificationBuy
	case final >= s.cfg.WatchThreshold:
		return model.ClassificationWatch
	default:
		return model.ClassificationPass
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
