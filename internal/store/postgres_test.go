package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview-capital/regionscan/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, status, region_count`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE scan_runs SET status`).
		WithArgs(string(model.ScanStatusFailed), "proximity endpoints exhausted", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FailRun(context.Background(), "run-1", "proximity endpoints exhausted")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE scan_runs SET status`).
		WithArgs(string(model.ScanStatusFailed), "boom", pgxmock.AnyArg(), "run-gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FailRun(context.Background(), "run-gone", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE scan_runs`).
		WithArgs(string(model.ScanStatusComplete), pgxmock.AnyArg(),
			4, 1, 1, 1, 1, pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteRun(context.Background(), "run-1", sampleReport())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResults_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM scan_results`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"scan_results"}, resultColumns).WillReturnResult(3)

	n, err := s.SaveResults(context.Background(), "run-1", sampleReport().Results())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResults_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.SaveResults(context.Background(), "run-1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RunResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{
		"region", "region_name", "final_score", "base_score", "infra_score", "infra_source",
		"infra_multiplier", "market_trend_pct", "market_source", "market_multiplier", "classification",
	}).AddRow("porto-metro", "Porto Metro", 41.4, 30.0, 75, "live", 1.15, 8.0, "workbook", 1.2, "BUY")

	mock.ExpectQuery(`SELECT region, region_name, final_score`).
		WithArgs("run-1").
		WillReturnRows(rows)

	results, err := s.RunResults(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "porto-metro", results[0].Region)
	assert.Equal(t, 41.4, results[0].FinalScore)
	assert.Equal(t, model.SourceLive, results[0].InfraSource)
	assert.Equal(t, model.ClassificationBuy, results[0].Classification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveInfraRecords_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_infra_records"}, infraColumns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "infra_records"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	recs := map[string]model.InfrastructureRecord{
		"porto-metro": {Score: 75, Highways: 6, Airports: 1, Railways: 4, Ports: 2},
	}
	n, err := s.SaveInfraRecords(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveInfraRecords_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.SaveInfraRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadInfraRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"region", "infra_score", "highways", "airports", "railways", "ports"}).
		AddRow("porto-metro", 75, 6, 1, 4, 2).
		AddRow("lisbon-coast", 60, 5, 1, 2, 1)

	mock.ExpectQuery(`SELECT region, infra_score, highways`).
		WillReturnRows(rows)

	recs, err := s.LoadInfraRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]model.InfrastructureRecord{
		"porto-metro":  {Score: 75, Highways: 6, Airports: 1, Railways: 4, Ports: 2},
		"lisbon-coast": {Score: 60, Highways: 5, Airports: 1, Railways: 2, Ports: 1},
	}, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
