package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/harborview-capital/regionscan/internal/db"
	"github.com/harborview-capital/regionscan/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":     `INSERT INTO scan_runs (id, status, started_at) VALUES ($1, $2, $3)`,
	"fail_run":       `UPDATE scan_runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
	"get_run":        `SELECT id, status, region_count, buy_count, watch_count, pass_count, unscored_count, report, error, started_at, finished_at FROM scan_runs WHERE id = $1`,
	"delete_results": `DELETE FROM scan_results WHERE run_id = $1`,
	"get_results":    `SELECT region, region_name, final_score, base_score, infra_score, infra_source, infra_multiplier, market_trend_pct, market_source, market_multiplier, classification FROM scan_results WHERE run_id = $1 ORDER BY final_score DESC, region ASC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status         TEXT NOT NULL DEFAULT 'running',
	region_count   INTEGER NOT NULL DEFAULT 0,
	buy_count      INTEGER NOT NULL DEFAULT 0,
	watch_count    INTEGER NOT NULL DEFAULT 0,
	pass_count     INTEGER NOT NULL DEFAULT 0,
	unscored_count INTEGER NOT NULL DEFAULT 0,
	report         JSONB,
	error          TEXT,
	started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS scan_results (
	run_id            TEXT NOT NULL REFERENCES scan_runs(id),
	region            TEXT NOT NULL,
	region_name       TEXT NOT NULL,
	final_score       DOUBLE PRECISION NOT NULL,
	base_score        DOUBLE PRECISION NOT NULL,
	infra_score       INTEGER NOT NULL,
	infra_source      TEXT NOT NULL DEFAULT '',
	infra_multiplier  DOUBLE PRECISION NOT NULL,
	market_trend_pct  DOUBLE PRECISION NOT NULL,
	market_source     TEXT NOT NULL DEFAULT '',
	market_multiplier DOUBLE PRECISION NOT NULL,
	classification    TEXT NOT NULL,
	PRIMARY KEY (run_id, region)
);

CREATE TABLE IF NOT EXISTS infra_records (
	region      TEXT PRIMARY KEY,
	infra_score INTEGER NOT NULL,
	highways    INTEGER NOT NULL,
	airports    INTEGER NOT NULL,
	railways    INTEGER NOT NULL,
	ports       INTEGER NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scan_runs_status ON scan_runs(status);
CREATE INDEX IF NOT EXISTS idx_scan_runs_started_at ON scan_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_scan_results_run_id ON scan_results(run_id);
CREATE INDEX IF NOT EXISTS idx_scan_results_classification ON scan_results(classification);
CREATE INDEX IF NOT EXISTS idx_scan_results_final_score ON scan_results(final_score DESC);
`

// resultColumns is the scan_results column order shared by COPY and SELECT.
var resultColumns = []string{
	"run_id", "region", "region_name", "final_score", "base_score", "infra_score",
	"infra_source", "infra_multiplier", "market_trend_pct", "market_source",
	"market_multiplier", "classification",
}

// infraColumns is the infra_records column order used by the bulk upsert.
var infraColumns = []string{
	"region", "infra_score", "highways", "airports", "railways", "ports", "updated_at",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.ScanRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.ScanStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert scan run")
	}

	return &model.ScanRun{
		ID:        id,
		Status:    model.ScanStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, report *model.ScanReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	finished := report.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scan_runs
		 SET status = $1, report = $2, region_count = $3, buy_count = $4, watch_count = $5,
		     pass_count = $6, unscored_count = $7, finished_at = $8
		 WHERE id = $9`,
		string(model.ScanStatusComplete), reportJSON,
		report.Scored()+len(report.Unscored), len(report.BuyRecommendations),
		len(report.WatchList), len(report.PassList), len(report.Unscored),
		finished, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete scan run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("scan run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scan_runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		string(model.ScanStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail scan run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("scan run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.ScanRun, error) {
	var r model.ScanRun
	var status string
	var reportJSON *[]byte
	var errText *string
	var finished *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, status, region_count, buy_count, watch_count, pass_count,
		        unscored_count, report, error, started_at, finished_at
		 FROM scan_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &status, &r.RegionCount, &r.BuyCount, &r.WatchCount,
		&r.PassCount, &r.UnscoredCount, &reportJSON, &errText, &r.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("scan run not found: %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get scan run %s", runID)
	}

	r.Status = model.ScanStatus(status)
	if reportJSON != nil {
		r.Report = &model.ScanReport{}
		if err := json.Unmarshal(*reportJSON, r.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
	}
	if errText != nil {
		r.Error = *errText
	}
	if finished != nil {
		r.FinishedAt = finished.UTC()
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ScanRun, error) {
	query := `SELECT id, status, region_count, buy_count, watch_count, pass_count,
	                 unscored_count, report, error, started_at, finished_at
	          FROM scan_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scan runs")
	}
	defer rows.Close()

	var runs []model.ScanRun
	for rows.Next() {
		var r model.ScanRun
		var status string
		var reportJSON *[]byte
		var errText *string
		var finished *time.Time

		if err := rows.Scan(&r.ID, &status, &r.RegionCount, &r.BuyCount, &r.WatchCount,
			&r.PassCount, &r.UnscoredCount, &reportJSON, &errText, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run row")
		}
		r.Status = model.ScanStatus(status)
		if reportJSON != nil {
			r.Report = &model.ScanReport{}
			if err := json.Unmarshal(*reportJSON, r.Report); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal report")
			}
		}
		if errText != nil {
			r.Error = *errText
		}
		if finished != nil {
			r.FinishedAt = finished.UTC()
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list scan runs iterate")
}

func (s *PostgresStore) SaveResults(ctx context.Context, runID string, results []model.ScoringResult) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}

	// Re-saving a run replaces its rows rather than erroring on the PK.
	if _, err := s.pool.Exec(ctx, `DELETE FROM scan_results WHERE run_id = $1`, runID); err != nil {
		return 0, eris.Wrapf(err, "postgres: clear results for run %s", runID)
	}

	rows := make([][]any, 0, len(results))
	for _, r := range results {
		rows = append(rows, []any{
			runID, r.Region, r.RegionName, r.FinalScore, r.BaseScore, r.InfraScore,
			string(r.InfraSource), r.InfraMultiplier, r.MarketTrendPct, r.MarketSource,
			r.MarketMultiplier, string(r.Classification),
		})
	}
	return db.CopyFrom(ctx, s.pool, "scan_results", resultColumns, rows)
}

func (s *PostgresStore) RunResults(ctx context.Context, runID string) ([]model.ScoringResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT region, region_name, final_score, base_score, infra_score, infra_source,
		        infra_multiplier, market_trend_pct, market_source, market_multiplier, classification
		 FROM scan_results WHERE run_id = $1
		 ORDER BY final_score DESC, region ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: results for run %s", runID)
	}
	defer rows.Close()

	var results []model.ScoringResult
	for rows.Next() {
		var r model.ScoringResult
		var infraSource, classification string
		if err := rows.Scan(&r.Region, &r.RegionName, &r.FinalScore, &r.BaseScore,
			&r.InfraScore, &infraSource, &r.InfraMultiplier, &r.MarketTrendPct,
			&r.MarketSource, &r.MarketMultiplier, &classification); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result row")
		}
		r.InfraSource = model.RecordSource(infraSource)
		r.Classification = model.Classification(classification)
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: results iterate")
}

func (s *PostgresStore) SaveInfraRecords(ctx context.Context, recs map[string]model.InfrastructureRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(recs))
	for k := range recs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for _, key := range keys {
		rec := recs[key]
		rows = append(rows, []any{
			key, rec.Score, rec.Highways, rec.Airports, rec.Railways, rec.Ports, now,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "infra_records",
		Columns:      infraColumns,
		ConflictKeys: []string{"region"},
	}, rows)
}

func (s *PostgresStore) LoadInfraRecords(ctx context.Context) (map[string]model.InfrastructureRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT region, infra_score, highways, airports, railways, ports FROM infra_records`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load infra records")
	}
	defer rows.Close()

	recs := make(map[string]model.InfrastructureRecord)
	for rows.Next() {
		var key string
		var rec model.InfrastructureRecord
		if err := rows.Scan(&key, &rec.Score, &rec.Highways, &rec.Airports, &rec.Railways, &rec.Ports); err != nil {
			return nil, eris.Wrap(err, "postgres: scan infra record")
		}
		recs[key] = rec
	}
	return recs, eris.Wrap(rows.Err(), "postgres: infra records iterate")
}
