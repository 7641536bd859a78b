// Package pipeline runs the scan: every configured region is analyzed for
// infrastructure and market signals, scored, and filed into exactly one
// report bucket. Regions that cannot be scored are named with a reason,
// never dropped.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harborview-capital/regionscan/internal/analyzer"
	"github.com/harborview-capital/regionscan/internal/market"
	"github.com/harborview-capital/regionscan/internal/model"
	"github.com/harborview-capital/regionscan/internal/resilience"
	"github.com/harborview-capital/regionscan/internal/scorer"
)

// InfraAnalyzer produces one infrastructure record per region.
// *analyzer.Analyzer satisfies it.
type InfraAnalyzer interface {
	Analyze(ctx context.Context, region model.Region) (model.InfrastructureRecord, error)
}

// TrendResolver produces one market trend per region. *market.Cascade
// satisfies it.
type TrendResolver interface {
	Resolve(ctx context.Context, region model.Region) (market.Trend, error)
}

// RegionScorer turns collected signals into a verdict. *scorer.Scorer
// satisfies it.
type RegionScorer interface {
	Score(in model.ScoringInput) (model.ScoringResult, error)
}

// Config controls scan-wide behavior.
type Config struct {
	// Concurrency bounds how many regions are in flight at once. Default: 4.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// Runner executes scans over a fixed set of collaborators.
type Runner struct {
	analyzer InfraAnalyzer
	market   TrendResolver
	scorer   RegionScorer
	cfg      Config

	// nowFunc is swapped in tests.
	nowFunc func() time.Time
}

// New builds a Runner.
func New(infra InfraAnalyzer, trends TrendResolver, sc RegionScorer, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Runner{
		analyzer: infra,
		market:   trends,
		scorer:   sc,
		cfg:      cfg,
		nowFunc:  time.Now,
	}
}

// outcome is one region's terminal state; exactly one field is set.
type outcome struct {
	result *model.ScoringResult
	skip   *model.UnscoredRegion
}

func skipOutcome(region, reason string) outcome {
	return outcome{skip: &model.UnscoredRegion{Region: region, Reason: reason}}
}

// Run scans the regions and assembles the report. Only a dead context or a
// broken scoring configuration aborts the run; per-region signal failures
// land in the unscored list instead.
func (r *Runner) Run(ctx context.Context, regions []model.Region) (*model.ScanReport, error) {
	if len(regions) == 0 {
		return nil, eris.New("pipeline: no regions to scan")
	}

	report := &model.ScanReport{StartedAt: r.nowFunc().UTC()}
	outcomes := make([]outcome, len(regions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, region := range regions {
		g.Go(func() error {
			out, err := r.scanRegion(gctx, region)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: scan aborted")
	}

	for _, out := range outcomes {
		switch {
		case out.result != nil:
			report.Add(*out.result)
		case out.skip != nil:
			report.Skip(out.skip.Region, out.skip.Reason)
		}
	}
	report.Sort()
	report.FinishedAt = r.nowFunc().UTC()

	zap.L().Info("pipeline: scan complete",
		zap.Int("regions", len(regions)),
		zap.Int("buy", len(report.BuyRecommendations)),
		zap.Int("watch", len(report.WatchList)),
		zap.Int("pass", len(report.PassList)),
		zap.Int("unscored", len(report.Unscored)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// scanRegion gathers both signals and scores one region. A returned error
// aborts the whole scan and is reserved for cancellation and configuration
// defects; everything else becomes an unscored entry.
func (r *Runner) scanRegion(ctx context.Context, region model.Region) (outcome, error) {
	region.Normalize()
	log := zap.L().With(zap.String("region", region.Key))

	if err := region.Validate(); err != nil {
		log.Warn("pipeline: region rejected", zap.Error(err))
		return skipOutcome(region.Key, "invalid region: "+err.Error()), nil
	}

	in := model.ScoringInput{
		Region:    region,
		BaseScore: region.BaseScore,
	}
	var infraErr, marketErr error

	rec, err := r.analyzer.Analyze(ctx, region)
	switch {
	case err == nil:
		in.InfraScore = rec.Score
		in.InfraSource = rec.Source
		in.InfraAvailable = true
	case analyzer.IsScoreMissing(err):
		infraErr = err
		log.Warn("pipeline: no infrastructure signal", zap.Error(err))
	case ctx.Err() != nil:
		return outcome{}, ctx.Err()
	default:
		fr := resilience.NewFailureRecord(region.Key, "infrastructure", err, 0)
		log.Warn("pipeline: infrastructure analysis failed", zap.Error(err))
		return skipOutcome(region.Key, fr.Reason()), nil
	}

	trend, err := r.market.Resolve(ctx, region)
	switch {
	case err == nil:
		in.MarketTrendPct = trend.Pct
		in.MarketSource = trend.Source
		in.MarketAvailable = true
	case market.IsUnavailable(err):
		marketErr = err
		log.Warn("pipeline: no market signal", zap.Error(err))
	case ctx.Err() != nil:
		return outcome{}, ctx.Err()
	default:
		fr := resilience.NewFailureRecord(region.Key, "market", err, 0)
		log.Warn("pipeline: market resolution failed", zap.Error(err))
		return skipOutcome(region.Key, fr.Reason()), nil
	}

	res, err := r.scorer.Score(in)
	if err != nil {
		var gap *scorer.SignalGapError
		if errors.As(err, &gap) {
			cause := infraErr
			if gap.Signal == "market" {
				cause = marketErr
			}
			if cause == nil {
				cause = err
			}
			fr := resilience.NewFailureRecord(region.Key, gap.Signal, cause, signalAttempts(cause))
			return skipOutcome(region.Key, fr.Reason()), nil
		}
		return outcome{}, eris.Wrapf(err, "pipeline: score region %s", region.Key)
	}

	return outcome{result: &res}, nil
}

// signalAttempts recovers how many lookups a failed signal burned, when the
// error carries that detail.
func signalAttempts(err error) int {
	var sm *analyzer.ScoreMissingError
	if errors.As(err, &sm) {
		return sm.Attempts
	}
	var mu *market.UnavailableError
	if errors.As(err, &mu) {
		return len(mu.Tried)
	}
	return 0
}
