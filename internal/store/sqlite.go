package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/harborview-capital/regionscan/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL DEFAULT 'running',
	region_count   INTEGER NOT NULL DEFAULT 0,
	buy_count      INTEGER NOT NULL DEFAULT 0,
	watch_count    INTEGER NOT NULL DEFAULT 0,
	pass_count     INTEGER NOT NULL DEFAULT 0,
	unscored_count INTEGER NOT NULL DEFAULT 0,
	report         TEXT,
	error          TEXT,
	started_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at    DATETIME
);

CREATE TABLE IF NOT EXISTS scan_results (
	run_id            TEXT NOT NULL REFERENCES scan_runs(id),
	region            TEXT NOT NULL,
	region_name       TEXT NOT NULL,
	final_score       REAL NOT NULL,
	base_score        REAL NOT NULL,
	infra_score       INTEGER NOT NULL,
	infra_source      TEXT NOT NULL DEFAULT '',
	infra_multiplier  REAL NOT NULL,
	market_trend_pct  REAL NOT NULL,
	market_source     TEXT NOT NULL DEFAULT '',
	market_multiplier REAL NOT NULL,
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
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_scan_runs_status ON scan_runs(status);
CREATE INDEX IF NOT EXISTS idx_scan_runs_started_at ON scan_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_scan_results_run_id ON scan_results(run_id);
CREATE INDEX IF NOT EXISTS idx_scan_results_classification ON scan_results(classification);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.ScanRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.ScanStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert scan run")
	}

	return &model.ScanRun{
		ID:        id,
		Status:    model.ScanStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, report *model.ScanReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	finished := report.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE scan_runs
		 SET status = ?, report = ?, region_count = ?, buy_count = ?, watch_count = ?,
		     pass_count = ?, unscored_count = ?, finished_at = ?
		 WHERE id = ?`,
		string(model.ScanStatusComplete), string(reportJSON),
		report.Scored()+len(report.Unscored), len(report.BuyRecommendations),
		len(report.WatchList), len(report.PassList), len(report.Unscored),
		finished, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete scan run %s", runID)
	}
	return checkRowsAffected(res, "scan run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scan_runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(model.ScanStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail scan run %s", runID)
	}
	return checkRowsAffected(res, "scan run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.ScanRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, region_count, buy_count, watch_count, pass_count,
		        unscored_count, report, error, started_at, finished_at
		 FROM scan_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row, runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ScanRun, error) {
	query := `SELECT id, status, region_count, buy_count, watch_count, pass_count,
	                 unscored_count, report, error, started_at, finished_at
	          FROM scan_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scan runs")
	}
	defer rows.Close()

	var runs []model.ScanRun
	for rows.Next() {
		r, err := scanRun(rows, "")
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list scan runs iterate")
}

func (s *SQLiteStore) SaveResults(ctx context.Context, runID string, results []model.ScoringResult) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin results tx")
	}
	defer tx.Rollback()

	// Re-saving a run replaces its rows rather than erroring on the PK.
	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_results WHERE run_id = ?`, runID); err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear results for run %s", runID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scan_results
		 (run_id, region, region_name, final_score, base_score, infra_score, infra_source,
		  infra_multiplier, market_trend_pct, market_source, market_multiplier, classification)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare results insert")
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx,
			runID, r.Region, r.RegionName, r.FinalScore, r.BaseScore, r.InfraScore,
			string(r.InfraSource), r.InfraMultiplier, r.MarketTrendPct, r.MarketSource,
			r.MarketMultiplier, string(r.Classification),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert result %s", r.Region)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit results tx")
	}
	return int64(len(results)), nil
}

func (s *SQLiteStore) RunResults(ctx context.Context, runID string) ([]model.ScoringResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT region, region_name, final_score, base_score, infra_score, infra_source,
		        infra_multiplier, market_trend_pct, market_source, market_multiplier, classification
		 FROM scan_results WHERE run_id = ?
		 ORDER BY final_score DESC, region ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: results for run %s", runID)
	}
	defer rows.Close()

	var results []model.ScoringResult
	for rows.Next() {
		var r model.ScoringResult
		var infraSource, classification string
		if err := rows.Scan(&r.Region, &r.RegionName, &r.FinalScore, &r.BaseScore,
			&r.InfraScore, &infraSource, &r.InfraMultiplier, &r.MarketTrendPct,
			&r.MarketSource, &r.MarketMultiplier, &classification); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result row")
		}
		r.InfraSource = model.RecordSource(infraSource)
		r.Classification = model.Classification(classification)
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: results iterate")
}

func (s *SQLiteStore) SaveInfraRecords(ctx context.Context, recs map[string]model.InfrastructureRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(recs))
	for k := range recs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin infra tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO infra_records
		 (region, infra_score, highways, airports, railways, ports, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare infra insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, key := range keys {
		rec := recs[key]
		if _, err := stmt.ExecContext(ctx,
			key, rec.Score, rec.Highways, rec.Airports, rec.Railways, rec.Ports, now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert infra record %s", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit infra tx")
	}
	return int64(len(recs)), nil
}

func (s *SQLiteStore) LoadInfraRecords(ctx context.Context) (map[string]model.InfrastructureRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT region, infra_score, highways, airports, railways, ports FROM infra_records`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load infra records")
	}
	defer rows.Close()

	recs := make(map[string]model.InfrastructureRecord)
	for rows.Next() {
		var key string
		var rec model.InfrastructureRecord
		if err := rows.Scan(&key, &rec.Score, &rec.Highways, &rec.Airports, &rec.Railways, &rec.Ports); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan infra record")
		}
		recs[key] = rec
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: infra records iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable, runID string) (*model.ScanRun, error) {
	var r model.ScanRun
	var status string
	var reportJSON, errText sql.NullString
	var finished sql.NullTime

	err := row.Scan(&r.ID, &status, &r.RegionCount, &r.BuyCount, &r.WatchCount,
		&r.PassCount, &r.UnscoredCount, &reportJSON, &errText, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("scan run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run row")
	}

	r.Status = model.ScanStatus(status)
	if reportJSON.Valid {
		r.Report = &model.ScanReport{}
		if err := json.Unmarshal([]byte(reportJSON.String), r.Report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
	}
	if errText.Valid {
		r.Error = errText.String
	}
	if finished.Valid {
		r.FinishedAt = finished.Time.UTC()
	}
	return &r, nil
}
