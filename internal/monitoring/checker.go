package monitoring

import (
	"context"

	"go.uber.org/zap"
)

// Checker runs one health check: collect a snapshot, evaluate thresholds,
// and optionally deliver the resulting alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	lookback  int
}

// NewChecker creates a health checker over the given lookback window in
// hours. A non-positive window defaults to 24 hours.
func NewChecker(collector *Collector, alerter *Alerter, lookbackHours int) *Checker {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		lookback:  lookbackHours,
	}
}

// Check collects the current snapshot and evaluates it. When notify is set,
// triggered alerts are also sent to the configured webhook.
func (c *Checker) Check(ctx context.Context, notify bool) (*MetricsSnapshot, []Alert, error) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		return nil, nil, err
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered",
			zap.Int("runs_total", snap.RunsTotal),
			zap.Int("lookback_hours", snap.LookbackHours),
		)
		return snap, nil, nil
	}

	sent := 0
	if notify {
		sent = c.alerter.SendAlerts(ctx, alerts)
	}
	log.Info("monitoring: health check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return snap, alerts, nil
}
