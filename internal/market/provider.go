// Package market resolves regional price-trend signals. Providers are tried
// in configured order and the first one that knows the region wins; a
// per-region override in the scan configuration beats them all.
package market

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/harborview-capital/regionscan/internal/model"
)

// SourceRegionConfig marks trends taken from a region's own configuration.
const SourceRegionConfig = "region-config"

// Trend is one region's market signal and its provenance.
type Trend struct {
	Pct    float64 `json:"pct"`
	Source string  `json:"source"`
}

// Provider resolves the market trend for one region key. The second return
// reports whether the provider knows the region; errors are reserved for
// lookups that failed rather than missed.
type Provider interface {
	Name() string
	Available() bool
	Trend(ctx context.Context, regionKey string) (Trend, bool, error)
}

// UnavailableError means no provider could produce a trend for a region.
type UnavailableError struct {
	Region string
	Tried  []string
}

func (e *UnavailableError) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("no market trend for %s (no providers configured)", e.Region)
	}
	return fmt.Sprintf("no market trend for %s (tried %s)", e.Region, strings.Join(e.Tried, ", "))
}

// IsUnavailable reports whether err is (or wraps) an exhausted-cascade miss.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// Cascade tries providers in order.
type Cascade struct {
	providers []Provider
}

// NewCascade builds a cascade over the given providers; order is precedence.
func NewCascade(providers ...Provider) *Cascade {
	return &Cascade{providers: providers}
}

// Resolve returns the region's market trend. Provider errors are logged and
// the next provider is consulted; only an exhausted cascade or a dead
// context surfaces an error.
func (c *Cascade) Resolve(ctx context.Context, region model.Region) (Trend, error) {
	if region.MarketTrendPct != nil {
		return Trend{Pct: *region.MarketTrendPct, Source: SourceRegionConfig}, nil
	}

	tried := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return Trend{}, err
		}
		if !p.Available() {
			continue
		}
		tried = append(tried, p.Name())

		trend, ok, err := p.Trend(ctx, region.Key)
		if err != nil {
			zap.L().Debug("market: provider error, trying next",
				zap.String("provider", p.Name()),
				zap.String("region", region.Key),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}
		if trend.Source == "" {
			trend.Source = p.Name()
		}
		return trend, nil
	}

	return Trend{}, &UnavailableError{Region: region.Key, Tried: tried}
}
