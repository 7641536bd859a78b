// Package monitoring summarizes the health of recent scan runs and raises
// webhook alerts when run failures or degraded geodata cross configured
// thresholds. It is invoked once per health check, not as a daemon.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/harborview-capital/regionscan/internal/model"
	"github.com/harborview-capital/regionscan/internal/store"
)

// MetricsSnapshot holds a point-in-time view of scan health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Region metrics aggregated over completed runs in the window.
	RegionsScored   int     `json:"regions_scored"`
	RegionsUnscored int     `json:"regions_unscored"`
	UnscoredRate    float64 `json:"unscored_rate"`

	// Signal quality of the most recent completed run. A record counts as
	// degraded when its infrastructure numbers did not come entirely from
	// live queries.
	LatestRunID     string  `json:"latest_run_id,omitempty"`
	LiveRecords     int     `json:"live_records"`
	PartialRecords  int     `json:"partial_records"`
	FallbackRecords int     `json:"fallback_records"`
	DegradedRate    float64 `json:"degraded_rate"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// maxRunsScanned caps how many persisted runs one collection reads before
// the lookback cutoff filter applies.
const maxRunsScanned = 500

// Collector gathers run-health metrics from the run store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of scan health over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}
	cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: maxRunsScanned})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var latest *model.ScanRun
	for i := range runs {
		r := &runs[i]
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.ScanStatusComplete:
			snap.RunsComplete++
			snap.RegionsScored += r.BuyCount + r.WatchCount + r.PassCount
			snap.RegionsUnscored += r.UnscoredCount
			if latest == nil || r.StartedAt.After(latest.StartedAt) {
				latest = r
			}
		case model.ScanStatusFailed:
			snap.RunsFailed++
		case model.ScanStatusRunning:
			snap.RunsRunning++
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if entered := snap.RegionsScored + snap.RegionsUnscored; entered > 0 {
		snap.UnscoredRate = float64(snap.RegionsUnscored) / float64(entered)
	}

	if latest != nil {
		snap.LatestRunID = latest.ID
		if err := c.collectSignalQuality(ctx, latest.ID, snap); err != nil {
			return nil, err
		}
	}

	return snap, nil
}

// collectSignalQuality tallies where the latest run's infrastructure
// records came from.
func (c *Collector) collectSignalQuality(ctx context.Context, runID string, snap *MetricsSnapshot) error {
	results, err := c.store.RunResults(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "monitoring: results for run %s", runID)
	}

	for _, res := range results {
		switch res.InfraSource {
		case model.SourcePartial:
			snap.PartialRecords++
		case model.SourceFallback:
			snap.FallbackRecords++
		default:
			snap.LiveRecords++
		}
	}

	if total := len(results); total > 0 {
		snap.DegradedRate = float64(snap.PartialRecords+snap.FallbackRecords) / float64(total)
	}
	return nil
}
