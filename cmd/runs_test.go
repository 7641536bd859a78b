//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harborview-capital/regionscan/internal/model"
)

func TestFormatRuns(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)
	runs := []model.ScanRun{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			Status:      model.ScanStatusComplete,
			RegionCount: 12,
			BuyCount:    3,
			WatchCount:  5,
			PassCount:   4,
			StartedAt:   now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Status:    model.ScanStatusFailed,
			StartedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRuns(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "2026-03-10 09:15")
}

func TestFormatRuns_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRuns(&buf, nil)
	assert.Contains(t, buf.String(), "no runs")
}

func TestFormatRun_WithReport(t *testing.T) {
	report := &model.ScanReport{}
	report.Add(model.ScoringResult{
		Region:         "braga",
		Classification: model.ClassificationBuy,
		FinalScore:     41.4,
		BaseScore:      30,
		InfraScore:     75,
	})
	report.Skip("azores", "no live data and no fallback entry")

	run := model.NewScanRun("abc12345-6789-0000-0000-000000000000", report)

	var buf bytes.Buffer
	formatRun(&buf, run)

	output := buf.String()
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "braga")
	assert.Contains(t, output, "BUY")
	assert.Contains(t, output, "azores")
	assert.Contains(t, output, "no live data")
}

func TestFormatRun_FailedWithoutReport(t *testing.T) {
	run := &model.ScanRun{
		ID:        "def12345-6789-0000-0000-000000000000",
		Status:    model.ScanStatusFailed,
		Error:     "scan: context canceled",
		StartedAt: time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	formatRun(&buf, run)

	output := buf.String()
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "context canceled")
	assert.Contains(t, output, "no report payload")
}
