//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harborview-capital/regionscan/internal/monitoring"
)

func TestFormatHealth_NoAlerts(t *testing.T) {
	snap := &monitoring.MetricsSnapshot{
		RunsTotal:     4,
		RunsComplete:  4,
		RegionsScored: 40,
		LatestRunID:   "run-1",
		LiveRecords:   40,
		LookbackHours: 24,
		CollectedAt:   time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	formatHealth(&buf, snap, nil)

	output := buf.String()
	assert.Contains(t, output, "last 24h")
	assert.Contains(t, output, "4 total, 4 complete")
	assert.Contains(t, output, "run-1")
	assert.Contains(t, output, "40 live")
	assert.Contains(t, output, "no alerts")
}

func TestFormatHealth_WithAlerts(t *testing.T) {
	snap := &monitoring.MetricsSnapshot{
		RunsTotal:     2,
		RunsComplete:  1,
		RunsFailed:    1,
		RunFailRate:   0.5,
		LookbackHours: 24,
		CollectedAt:   time.Now().UTC(),
	}
	alerts := []monitoring.Alert{
		{Type: monitoring.AlertRunFailureRate, Severity: "high", Message: "half the runs failed"},
	}

	var buf bytes.Buffer
	formatHealth(&buf, snap, alerts)

	output := buf.String()
	assert.Contains(t, output, "failure rate")
	assert.Contains(t, output, "50.0%")
	assert.Contains(t, output, "1 alert(s)")
	assert.Contains(t, output, "[high] run_failure_rate")
	assert.Contains(t, output, "half the runs failed")
}

func TestFormatHealth_NoRunsNoSignalSection(t *testing.T) {
	snap := &monitoring.MetricsSnapshot{
		LookbackHours: 24,
		CollectedAt:   time.Now().UTC(),
	}

	var buf bytes.Buffer
	formatHealth(&buf, snap, nil)

	output := buf.String()
	assert.Contains(t, output, "0 total")
	assert.NotContains(t, output, "signal quality")
}
