package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertUnscoredRate   AlertType = "unscored_rate"
	AlertDegradedSignal AlertType = "degraded_signal"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Thresholds are the alert trigger levels, all expressed as rates in [0,1].
// A zero threshold disables its check.
type Thresholds struct {
	RunFailureRate float64 `yaml:"run_failure_rate" mapstructure:"run_failure_rate"`
	UnscoredRate   float64 `yaml:"unscored_rate" mapstructure:"unscored_rate"`
	DegradedRate   float64 `yaml:"degraded_rate" mapstructure:"degraded_rate"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	thresholds Thresholds
	webhookURL string
	client     *http.Client
}

// NewAlerter creates a new Alerter. webhookURL may be empty, in which case
// alerts are evaluated but not delivered anywhere.
func NewAlerter(thresholds Thresholds, webhookURL string) *Alerter {
	return &Alerter{
		thresholds: thresholds,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Failed scan runs.
	finished := snap.RunsComplete + snap.RunsFailed
	if a.thresholds.RunFailureRate > 0 && finished > 0 && snap.RunFailRate > a.thresholds.RunFailureRate {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Scan failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RunFailRate*100, a.thresholds.RunFailureRate*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.thresholds.RunFailureRate,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	// Regions dropping out of scoring. These regions were reported by name,
	// but a rising rate means a signal source is rotting.
	entered := snap.RegionsScored + snap.RegionsUnscored
	if a.thresholds.UnscoredRate > 0 && entered > 0 && snap.UnscoredRate > a.thresholds.UnscoredRate {
		alerts = append(alerts, Alert{
			Type:     AlertUnscoredRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d of %d regions left unscored (%.1f%%, threshold %.1f%%) in last %dh",
				snap.RegionsUnscored, entered,
				snap.UnscoredRate*100, a.thresholds.UnscoredRate*100, snap.LookbackHours,
			),
			Details: map[string]any{
				"unscored_rate": snap.UnscoredRate,
				"threshold":     a.thresholds.UnscoredRate,
				"unscored":      snap.RegionsUnscored,
				"entered":       entered,
			},
			Timestamp: now,
		})
	}

	// Latest run leaning on fallback or partial infrastructure records:
	// the live geodata endpoints are failing over too often.
	if a.thresholds.DegradedRate > 0 && snap.LatestRunID != "" && snap.DegradedRate > a.thresholds.DegradedRate {
		alerts = append(alerts, Alert{
			Type:     AlertDegradedSignal,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Run %s scored %.1f%% of regions from degraded infrastructure data (threshold %.1f%%; %d partial, %d fallback)",
				snap.LatestRunID, snap.DegradedRate*100, a.thresholds.DegradedRate*100,
				snap.PartialRecords, snap.FallbackRecords,
			),
			Details: map[string]any{
				"degraded_rate": snap.DegradedRate,
				"threshold":     a.thresholds.DegradedRate,
				"run_id":        snap.LatestRunID,
				"partial":       snap.PartialRecords,
				"fallback":      snap.FallbackRecords,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.webhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
