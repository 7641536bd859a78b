package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassificationValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		class Classification
		want  string
	}{
		{ClassificationBuy, "BUY"},
		{ClassificationWatch, "WATCH"},
		{ClassificationPass, "PASS"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.class))
		})
	}
}

func TestScanReportAddPartitions(t *testing.T) {
	t.Parallel()

	report := &ScanReport{}
	report.Add(ScoringResult{Region: "a", FinalScore: 55, Classification: ClassificationBuy})
	report.Add(ScoringResult{Region: "b", FinalScore: 30, Classification: ClassificationWatch})
	report.Add(ScoringResult{Region: "c", FinalScore: 10, Classification: ClassificationPass})
	report.Add(ScoringResult{Region: "d", FinalScore: 48, Classification: ClassificationBuy})
	report.Skip("e", "no fallback entry")

	assert.Len(t, report.BuyRecommendations, 2)
	assert.Len(t, report.WatchList, 1)
	assert.Len(t, report.PassList, 1)
	assert.Len(t, report.Unscored, 1)

	// Every scored region appears in exactly one list.
	assert.Equal(t, report.Scored(), len(report.RegionsAnalyzed))
}

func TestScanReportResultsOrdering(t *testing.T) {
	t.Parallel()

	report := &ScanReport{}
	report.Add(ScoringResult{Region: "low", FinalScore: 12, Classification: ClassificationPass})
	report.Add(ScoringResult{Region: "high", FinalScore: 61, Classification: ClassificationBuy})
	report.Add(ScoringResult{Region: "mid", FinalScore: 33, Classification: ClassificationWatch})
	report.Add(ScoringResult{Region: "tie-b", FinalScore: 33, Classification: ClassificationWatch})

	results := report.Results()
	require.Len(t, results, 4)
	assert.Equal(t, "high", results[0].Region)
	assert.Equal(t, "mid", results[1].Region)
	assert.Equal(t, "tie-b", results[2].Region)
	assert.Equal(t, "low", results[3].Region)
}

func TestScanReportSortDeterministic(t *testing.T) {
	t.Parallel()

	report := &ScanReport{}
	report.Add(ScoringResult{Region: "z", FinalScore: 41, Classification: ClassificationBuy})
	report.Add(ScoringResult{Region: "a", FinalScore: 52, Classification: ClassificationBuy})
	report.Skip("m", "late")
	report.Skip("b", "early")
	report.Sort()

	assert.Equal(t, "a", report.BuyRecommendations[0].Region)
	assert.Equal(t, []string{"a", "z"}, report.RegionsAnalyzed)
	assert.Equal(t, "b", report.Unscored[0].Region)
}

func TestNewScanRun(t *testing.T) {
	t.Parallel()

	report := &ScanReport{}
	report.Add(ScoringResult{Region: "a", Classification: ClassificationBuy})
	report.Add(ScoringResult{Region: "b", Classification: ClassificationPass})
	report.Skip("c", "market signal unavailable")

	run := NewScanRun("run-1", report)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, ScanStatusComplete, run.Status)
	assert.Equal(t, 3, run.RegionCount)
	assert.Equal(t, 1, run.BuyCount)
	assert.Equal(t, 0, run.WatchCount)
	assert.Equal(t, 1, run.PassCount)
	assert.Equal(t, 1, run.UnscoredCount)
	require.NotNil(t, run.Report)
}
