package ingest

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/registry"
	"github.com/roach88/assetgov/internal/runid"
	"github.com/roach88/assetgov/internal/store"
	"github.com/roach88/assetgov/internal/testutil"
)

const blastQuery = `SELECT id, source FROM blasts WHERE blast_at >= $1 AND blast_at < $2`

var march = Window{
	Start: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
}

type copierEnv struct {
	copier *Copier
	source sqlmock.Sqlmock
	target sqlmock.Sqlmock
	store  *store.Store
}

func newCopierEnv(t *testing.T) copierEnv {
	t.Helper()
	srcDB, src, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { srcDB.Close() })
	dstDB, dst, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { dstDB.Close() })

	clk := testutil.NewFakeClock(time.Time{})
	st, err := store.Open(filepath.Join(t.TempDir(), "meta.db"), store.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	reg := registry.New(st, registry.WithClock(clk))

	c := NewCopier(srcDB, dstDB,
		WithTarget("postgres", "stg"),
		WithGovernance(st, reg),
		WithClock(clk),
		WithRunIDs(runid.NewFixedGenerator("run-1", "run-2")))
	return copierEnv{copier: c, source: src, target: dst, store: st}
}

func blastRows(m sqlmock.Sqlmock) *sqlmock.Rows {
	return m.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("INT8", int64(0)).Nullable(false),
		sqlmock.NewColumn("source").OfType("TEXT", "").Nullable(true),
	)
}

func TestCopy_InsertsRowsAndRecordsExecution(t *testing.T) {
	env := newCopierEnv(t)
	ctx := context.Background()

	env.source.ExpectQuery(regexp.QuoteMeta(blastQuery)).
		WithArgs(march.Start, march.End).
		WillReturnRows(blastRows(env.source).
			AddRow(int64(1), "north").
			AddRow(int64(2), "south"))

	env.target.ExpectBegin()
	env.target.ExpectExec(regexp.QuoteMeta("DELETE FROM stg.blast_raw")).
		WillReturnResult(sqlmock.NewResult(0, 7))
	prep := env.target.ExpectPrepare(regexp.QuoteMeta("INSERT INTO stg.blast_raw (id, source) VALUES ($1, $2)"))
	prep.ExpectExec().WithArgs(int64(1), "north").WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs(int64(2), "south").WillReturnResult(sqlmock.NewResult(2, 1))
	env.target.ExpectCommit()

	n, err := env.copier.Copy(ctx, Request{
		AssetKey: "blast.raw",
		Query:    blastQuery,
		Table:    "blast_raw",
		Truncate: true,
		Window:   march,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NoError(t, env.source.ExpectationsWereMet())
	require.NoError(t, env.target.ExpectationsWereMet())

	last, err := env.store.LastExecution(ctx, "blast.raw")
	require.NoError(t, err)
	assert.Equal(t, "run-1", last.RunID)
	assert.Equal(t, model.ExecutionSuccess, last.Status)
	require.NotNil(t, last.RecordsProcessed)
	assert.EqualValues(t, 2, *last.RecordsProcessed)
	require.NotNil(t, last.WindowStart)
	assert.True(t, last.WindowStart.Equal(march.Start))
	assert.Equal(t, "blast_raw", last.Metadata["target_table"])

	metrics, err := env.store.Metrics(ctx, "blast.raw", MetricRecordsIngested, 0)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, 2.0, metrics[0].Value)

	schema, err := env.store.AssetSchema(ctx, "blast.raw")
	require.NoError(t, err)
	require.Len(t, schema, 2)
	assert.Equal(t, model.SchemaColumn{Name: "id", DataType: "INT8", IsNullable: false, LastSeen: schema[0].LastSeen}, schema[0])
	assert.True(t, schema[1].IsNullable)
}

func TestCopy_SourceFailureRecordedAsFailedExecution(t *testing.T) {
	env := newCopierEnv(t)
	ctx := context.Background()

	env.source.ExpectQuery(regexp.QuoteMeta(blastQuery)).
		WillReturnError(errors.New("connection reset"))

	n, err := env.copier.Copy(ctx, Request{AssetKey: "blast.raw", Query: blastQuery, Table: "blast_raw", Window: march})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Zero(t, n)

	last, err := env.store.LastExecution(ctx, "blast.raw")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionFailed, last.Status)
	assert.Nil(t, last.RecordsProcessed)
	assert.Contains(t, last.ErrorMessage(), "connection reset")

	metrics, err := env.store.Metrics(ctx, "blast.raw", MetricRecordsIngested, 0)
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestCopy_InsertFailureRollsBack(t *testing.T) {
	env := newCopierEnv(t)

	env.source.ExpectQuery(regexp.QuoteMeta(blastQuery)).
		WillReturnRows(blastRows(env.source).AddRow(int64(1), "north"))
	env.target.ExpectBegin()
	env.target.ExpectPrepare(regexp.QuoteMeta("INSERT INTO stg.blast_raw")).
		ExpectExec().WillReturnError(errors.New("disk full"))
	env.target.ExpectRollback()

	_, err := env.copier.Copy(context.Background(), Request{AssetKey: "blast.raw", Query: blastQuery, Table: "blast_raw", Window: march})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert row 1")
	assert.NoError(t, env.target.ExpectationsWereMet())
}

func TestCopy_PartialInsertReportsNoRows(t *testing.T) {
	env := newCopierEnv(t)
	ctx := context.Background()

	env.source.ExpectQuery(regexp.QuoteMeta(blastQuery)).
		WillReturnRows(blastRows(env.source).
			AddRow(int64(1), "north").
			AddRow(int64(2), "south"))
	env.target.ExpectBegin()
	prep := env.target.ExpectPrepare(regexp.QuoteMeta("INSERT INTO stg.blast_raw"))
	prep.ExpectExec().WithArgs(int64(1), "north").WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs(int64(2), "south").WillReturnError(errors.New("constraint violation"))
	env.target.ExpectRollback()

	n, err := env.copier.Copy(ctx, Request{AssetKey: "blast.raw", Query: blastQuery, Table: "blast_raw", Window: march})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert row 2")
	assert.Zero(t, n, "rolled back rows must not be reported")
	assert.NoError(t, env.target.ExpectationsWereMet())

	last, err := env.store.LastExecution(ctx, "blast.raw")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionFailed, last.Status)
	assert.Nil(t, last.RecordsProcessed)
}

func TestCopy_RejectsUnsafeTableName(t *testing.T) {
	env := newCopierEnv(t)

	_, err := env.copier.Copy(context.Background(), Request{
		AssetKey: "blast.raw",
		Query:    blastQuery,
		Table:    "blast; DROP TABLE x",
		Window:   march,
	})
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))
	assert.NoError(t, env.source.ExpectationsWereMet())
}

func TestCopy_GovernanceFailureDoesNotFailCopy(t *testing.T) {
	env := newCopierEnv(t)
	require.NoError(t, env.store.Close())

	env.source.ExpectQuery(regexp.QuoteMeta(blastQuery)).
		WillReturnRows(blastRows(env.source).AddRow(int64(1), "north"))
	env.target.ExpectBegin()
	env.target.ExpectPrepare(regexp.QuoteMeta("INSERT INTO stg.blast_raw")).
		ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	env.target.ExpectCommit()

	n, err := env.copier.Copy(context.Background(), Request{AssetKey: "blast.raw", Query: blastQuery, Table: "blast_raw", Window: march})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestInsertSQL_Placeholders(t *testing.T) {
	cols := []model.SchemaColumn{{Name: "a"}, {Name: "b"}}

	pg := NewCopier(nil, nil, WithTarget("postgres", ""))
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", pg.insertSQL("t", cols))

	my := NewCopier(nil, nil, WithTarget("mysql", ""))
	assert.Equal(t, "INSERT INTO t (a, b) VALUES (?, ?)", my.insertSQL("t", cols))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "src.db"))
	require.NoError(t, err)
	assert.IsType(t, &sql.DB{}, db)
	require.NoError(t, db.Close())
}
