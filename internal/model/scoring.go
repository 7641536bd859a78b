package model

import (
	"sort"
	"time"
)

// Classification is the three-way investment decision for a scored region.
type Classification string

const (
	ClassificationBuy   Classification = "BUY"
	ClassificationWatch Classification = "WATCH"
	ClassificationPass  Classification = "PASS"
)

// ScoringInput carries the signals for one region into the scorer. Built per
// region per pass and discarded afterwards.
type ScoringInput struct {
	Region          Region
	BaseScore       float64
	InfraScore      int
	InfraSource     RecordSource
	InfraAvailable  bool
	MarketTrendPct  float64
	MarketSource    string
	MarketAvailable bool
}

// ScoringResult is the scored verdict for one region.
type ScoringResult struct {
	Region           string         `json:"region"`
	RegionName       string         `json:"region_name"`
	FinalScore       float64        `json:"final_score"`
	BaseScore        float64        `json:"base_score"`
	InfraScore       int            `json:"infra_score"`
	InfraSource      RecordSource   `json:"infra_source,omitempty"`
	InfraMultiplier  float64        `json:"infra_multiplier"`
	MarketTrendPct   float64        `json:"market_trend_pct"`
	MarketSource     string         `json:"market_source,omitempty"`
	MarketMultiplier float64        `json:"market_multiplier"`
	Classification   Classification `json:"classification"`
}

// UnscoredRegion names a region that could not be scored and the missing
// signal that stopped it.
type UnscoredRegion struct {
	Region string `json:"region"`
	Reason string `json:"reason"`
}

// ScanReport is the output of one scan pass: every scored region lands in
// exactly one of the three lists, and regions without a score are reported
// by name, never dropped.
type ScanReport struct {
	BuyRecommendations []ScoringResult  `json:"buy_recommendations"`
	WatchList          []ScoringResult  `json:"watch_list"`
	PassList           []ScoringResult  `json:"pass_list"`
	Unscored           []UnscoredRegion `json:"unscored,omitempty"`
	RegionsAnalyzed    []string         `json:"regions_analyzed"`
	StartedAt          time.Time        `json:"started_at"`
	FinishedAt         time.Time        `json:"finished_at"`
}

// Add files a result under its classification and records the region as
// analyzed.
func (r *ScanReport) Add(res ScoringResult) {
	switch res.Classification {
	case ClassificationBuy:
		r.BuyRecommendations = append(r.BuyRecommendations, res)
	case ClassificationWatch:
		r.WatchList = append(r.WatchList, res)
	default:
		r.PassList = append(r.PassList, res)
	}
	r.RegionsAnalyzed = append(r.RegionsAnalyzed, res.Region)
}

// Skip records a region that produced no score.
func (r *ScanReport) Skip(region, reason string) {
	r.Unscored = append(r.Unscored, UnscoredRegion{Region: region, Reason: reason})
}

// Scored returns the total number of classified regions.
func (r *ScanReport) Scored() int {
	return len(r.BuyRecommendations) + len(r.WatchList) + len(r.PassList)
}

// Results flattens the three lists into one slice ordered by final score,
// highest first.
func (r *ScanReport) Results() []ScoringResult {
	out := make([]ScoringResult, 0, r.Scored())
	out = append(out, r.BuyRecommendations...)
	out = append(out, r.WatchList...)
	out = append(out, r.PassList...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].FinalScore == out[j].FinalScore {
			return out[i].Region < out[j].Region
		}
		return out[i].FinalScore > out[j].FinalScore
	})
	return out
}

// Sort orders each classification list by final score descending, ties by
// region key, so report output is deterministic.
func (r *ScanReport) Sort() {
	for _, list := range [][]ScoringResult{r.BuyRecommendations, r.WatchList, r.PassList} {
		sort.Slice(list, func(i, j int) bool {
			if list[i].FinalScore == list[j].FinalScore {
				return list[i].Region < list[j].Region
			}
			return list[i].FinalScore > list[j].FinalScore
		})
	}
	sort.Strings(r.RegionsAnalyzed)
	sort.Slice(r.Unscored, func(i, j int) bool { return r.Unscored[i].Region < r.Unscored[j].Region })
}

// ScanStatus represents the lifecycle state of a persisted scan run.
type ScanStatus string

const (
	ScanStatusRunning  ScanStatus = "running"
	ScanStatusComplete ScanStatus = "complete"
	ScanStatusFailed   ScanStatus = "failed"
)

// ScanRun is the persisted record of one scan invocation.
type ScanRun struct {
	ID            string      `json:"id"`
	Status        ScanStatus  `json:"status"`
	RegionCount   int         `json:"region_count"`
	BuyCount      int         `json:"buy_count"`
	WatchCount    int         `json:"watch_count"`
	PassCount     int         `json:"pass_count"`
	UnscoredCount int         `json:"unscored_count"`
	Report        *ScanReport `json:"report,omitempty"`
	Error         string      `json:"error,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
}

// NewScanRun builds the persisted summary for a finished report.
func NewScanRun(id string, report *ScanReport) *ScanRun {
	return &ScanRun{
		ID:            id,
		Status:        ScanStatusComplete,
		RegionCount:   report.Scored() + len(report.Unscored),
		BuyCount:      len(report.BuyRecommendations),
		WatchCount:    len(report.WatchList),
		PassCount:     len(report.PassList),
		UnscoredCount: len(report.Unscored),
		Report:        report,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
	}
}
