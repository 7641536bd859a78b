// Package store persists scan runs to SQLite or PostgreSQL.
package store

import (
	"context"

	"github.com/harborview-capital/regionscan/internal/model"
)

// RunFilter specifies criteria for listing scan runs.
type RunFilter struct {
	Status model.ScanStatus `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for scan runs. A run is created
// when a scan starts, then either completed with its report or failed with
// a reason; per-region results are flattened into their own table so they
// can be queried without unpacking report JSON.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.ScanRun, error)
	CompleteRun(ctx context.Context, runID string, report *model.ScanReport) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.ScanRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ScanRun, error)

	// Per-region results
	SaveResults(ctx context.Context, runID string, results []model.ScoringResult) (int64, error)
	RunResults(ctx context.Context, runID string) ([]model.ScoringResult, error)

	// Fallback dataset mirror
	SaveInfraRecords(ctx context.Context, recs map[string]model.InfrastructureRecord) (int64, error)
	LoadInfraRecords(ctx context.Context) (map[string]model.InfrastructureRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
