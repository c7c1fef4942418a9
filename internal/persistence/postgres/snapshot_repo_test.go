package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmlongan/jmomden/internal/persistence"
)

var columns = []string{"id", "hash", "degree", "family", "c", "moments", "basis1", "basis2", "tensor", "created_at"}

func newMock(t *testing.T) (persistence.SnapshotRepo, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewSnapshotRepo(sqlx.NewDb(mockDB, "postgres"), time.Second), mock
}

func sample() persistence.Snapshot {
	return persistence.Snapshot{
		ID:        "5f1c",
		Hash:      "abc123",
		Degree:    1,
		Family:    "normal",
		C:         -0.5,
		Moments:   [][]float64{{1, 0, 1}, {0, 0.5}, {1}},
		Basis1:    [][]float64{{1, 0}, {0, 1}},
		Basis2:    [][]float64{{1, 0}, {0, 1.1547005}},
		Tensor:    [][]float64{{1, 0}, {0, 0}},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestUpsert(t *testing.T) {
	repo, mock := newMock(t)
	s := sample()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO model_snapshots")).
		WithArgs(s.ID, s.Hash, s.Degree, s.Family, s.C,
			[]byte(`[[1,0,1],[0,0.5],[1]]`), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), s.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertValidation(t *testing.T) {
	repo, mock := newMock(t)

	s := sample()
	s.ID = ""
	assert.Error(t, repo.Upsert(context.Background(), s))

	s = sample()
	s.Degree = 0
	assert.Error(t, repo.Upsert(context.Background(), s))

	assert.NoError(t, mock.ExpectationsWereMet(), "no query issued")
}

func TestUpsertFailure(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("INSERT INTO model_snapshots").WillReturnError(sql.ErrConnDone)

	err := repo.Upsert(context.Background(), sample())
	assert.True(t, errors.Is(err, sql.ErrConnDone))
}

func sampleRow(s persistence.Snapshot) []driver.Value {
	return []driver.Value{
		s.ID, s.Hash, s.Degree, s.Family, s.C,
		[]byte(`[[1,0,1],[0,0.5],[1]]`),
		[]byte(`[[1,0],[0,1]]`),
		[]byte(`[[1,0],[0,1.1547005]]`),
		[]byte(`[[1,0],[0,0]]`),
		s.CreatedAt,
	}
}

func TestGet(t *testing.T) {
	repo, mock := newMock(t)
	want := sample()

	mock.ExpectQuery(regexp.QuoteMeta("FROM model_snapshots WHERE id = $1")).
		WithArgs(want.ID).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(sampleRow(want)...))

	got, err := repo.Get(context.Background(), want.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	mock.ExpectQuery(regexp.QuoteMeta("FROM model_snapshots WHERE id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(columns))

	got, err = repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestByHash(t *testing.T) {
	repo, mock := newMock(t)
	want := sample()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE hash = $1")).
		WithArgs(want.Hash).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(sampleRow(want)...))

	got, err := repo.ByHash(context.Background(), want.Hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	repo, mock := newMock(t)
	a := sample()
	b := sample()
	b.ID = "77aa"

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(sampleRow(a)...).AddRow(sampleRow(b)...))

	got, err := repo.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "77aa", got[1].ID)
	assert.Equal(t, [][]float64{{1, 0}, {0, 0}}, got[1].Tensor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCorruptJSON(t *testing.T) {
	repo, mock := newMock(t)
	row := sampleRow(sample())
	row[8] = []byte(`{not json`)

	mock.ExpectQuery("FROM model_snapshots").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(row...))

	_, err := repo.Get(context.Background(), "5f1c")
	assert.ErrorContains(t, err, "tensor")
}

func TestHealth(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()
	h := NewHealthChecker(sqlx.NewDb(mockDB, "postgres"), time.Second)

	mock.ExpectPing()
	check := h.Health(context.Background())
	assert.True(t, check.Healthy)
	assert.Empty(t, check.Errors)

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	check = h.Health(context.Background())
	assert.False(t, check.Healthy)
	require.Len(t, check.Errors, 1)
	assert.Contains(t, check.Errors[0], "ping failed")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS model_snapshots")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), sqlx.NewDb(mockDB, "postgres")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	repo, mock := newMock(t)
	ctx := context.Background()
	query := regexp.QuoteMeta("DELETE FROM model_snapshots WHERE id = $1")

	mock.ExpectExec(query).WithArgs("5f1c").WillReturnResult(sqlmock.NewResult(0, 1))
	found, err := repo.Delete(ctx, "5f1c")
	require.NoError(t, err)
	assert.True(t, found)

	mock.ExpectExec(query).WithArgs("none").WillReturnResult(sqlmock.NewResult(0, 0))
	found, err = repo.Delete(ctx, "none")
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectExec(query).WithArgs("5f1c").WillReturnError(sql.ErrConnDone)
	_, err = repo.Delete(ctx, "5f1c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrConnDone))

	assert.NoError(t, mock.ExpectationsWereMet())
}
