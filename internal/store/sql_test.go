package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/vitals/internal/model"
)

func rec(country string, year int, marriage, divorce *float64) model.FlatRecord {
	return model.FlatRecord{
		Country:      country,
		Year:         year,
		MarriageRate: marriage,
		DivorceRate:  divorce,
		ExtractedAt:  model.Float(1700000000),
		UpdatedAt:    model.Float(1700000000),
	}
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "postgres"), "demographics_data", nil), mock
}

func TestSQLStore_PostgresUpsert(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO demographics_data (country, year, marriage_rate, divorce_rate, extracted_at, updated_at) VALUES "+
			"($1, $2, $3, $4, to_timestamp($5), to_timestamp($6)), ($7, $8, $9, $10, to_timestamp($11), to_timestamp($12)) "+
			"ON CONFLICT (country, year) DO UPDATE SET marriage_rate = excluded.marriage_rate")).
		WithArgs("France", 2019, 3.5, nil, sqlmock.AnyArg(), sqlmock.AnyArg(),
			"Spain", 2020, nil, 1.9, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := s.Upsert(context.Background(), []model.FlatRecord{
		rec("France", 2019, model.Float(3.5), nil),
		rec("Spain", 2020, nil, model.Float(1.9)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresUpsertRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO demographics_data").WillReturnError(errors.New("duplicate key in batch"))
	mock.ExpectRollback()

	_, err := s.Upsert(context.Background(), []model.FlatRecord{rec("France", 2019, model.Float(3.5), nil)})

	var perr *model.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "upsert", perr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresSelect(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows(model.Columns).
		AddRow("France", 2019, 3.5, nil, 1700000000.0, 1700000000.0).
		AddRow("Spain", 2020, nil, 1.9, nil, 1700000000.0)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT country, year, marriage_rate, divorce_rate, EXTRACT(EPOCH FROM extracted_at)::float8 AS extracted_at, " +
			"EXTRACT(EPOCH FROM updated_at)::float8 AS updated_at FROM demographics_data ORDER BY country, year DESC LIMIT 10")).
		WillReturnRows(rows)

	got, err := s.Select(context.Background(), Query{
		OrderBy: []Order{{Column: "country"}, {Column: "year", Desc: true}},
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "France", got[0].Country)
	assert.Equal(t, 3.5, *got[0].MarriageRate)
	assert.Nil(t, got[0].DivorceRate)
	assert.Nil(t, got[1].ExtractedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SelectRejectsUnknownColumn(t *testing.T) {
	s, _ := newMockStore(t)
	_, err := s.Select(context.Background(), Query{OrderBy: []Order{{Column: "1; DROP TABLE x"}}})
	var perr *model.PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestSQLStore_EnsureSchemaPostgres(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS demographics_data")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.Contains(t, s.createTableSQL(), "extracted_at TIMESTAMPTZ")
	assert.Contains(t, s.createTableSQL(), "PRIMARY KEY (country, year)")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func openTestSQLite(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "vitals.db"), "demographics_data", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

func TestSQLiteStore_UpsertIsIdempotent(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	batch := []model.FlatRecord{
		rec("France", 2019, model.Float(3.5), nil),
		rec("Spain", 2020, nil, model.Float(1.9)),
	}

	for i := 0; i < 2; i++ {
		n, err := s.Upsert(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}

	rows, err := s.Select(ctx, DefaultQuery())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSQLiteStore_LastWriteWins(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, []model.FlatRecord{rec("France", 2019, model.Float(3.5), model.Float(1.9))})
	require.NoError(t, err)

	later := rec("France", 2019, model.Float(3.6), nil)
	later.UpdatedAt = model.Float(1800000000)
	_, err = s.Upsert(ctx, []model.FlatRecord{later, rec("Austria", 2018, model.Float(5.2), nil)})
	require.NoError(t, err)

	rows, err := s.Select(ctx, DefaultQuery())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Austria", rows[0].Country)
	france := rows[1]
	assert.Equal(t, "France", france.Country)
	assert.Equal(t, 2019, france.Year)
	assert.Equal(t, 3.6, *france.MarriageRate)
	assert.Nil(t, france.DivorceRate)
	assert.Equal(t, 1800000000.0, *france.UpdatedAt)
}

func TestSQLiteStore_LargeBatchSpansChunks(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	var batch []model.FlatRecord
	for year := 1000; year < 1000+upsertChunk+25; year++ {
		batch = append(batch, rec("Testland", year, model.Float(1), nil))
	}

	n, err := s.Upsert(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, len(batch), n)

	rows, err := s.Select(ctx, Query{OrderBy: []Order{{Column: "year", Desc: true}}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1000+upsertChunk+24, rows[0].Year)
}

func TestOpenSQLite_RejectsBadTable(t *testing.T) {
	_, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "x.db"), "demo; DROP", nil)
	var cfgErr *model.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
