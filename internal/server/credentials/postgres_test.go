package credentials

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/securechat/internal/common"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

const selectVerifier = `(?s)^SELECT\s+verifier\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s*$`
const upsertUser = `(?s)^INSERT\s+INTO\s+users\s*\(username,\s*verifier\)\s*VALUES\s*\(\$1,\s*\$2\)\s*ON\s+CONFLICT.*$`

func TestPostgresStore_Verifier(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(selectVerifier).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"verifier"}).AddRow("abc"))

	v, err := s.Verifier(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Verifier_NotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(selectVerifier).WithArgs("mallory").WillReturnError(sql.ErrNoRows)

	_, err := s.Verifier(context.Background(), "mallory")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPostgresStore_Verifier_DBError(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(selectVerifier).WithArgs("alice").WillReturnError(errors.New("db down"))

	_, err := s.Verifier(context.Background(), "alice")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrNotFound)
	assert.Contains(t, err.Error(), "db error: db down")
}

func TestPostgresStore_AddUser(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectExec(upsertUser).WithArgs("carol", "abc").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.AddUser(context.Background(), "carol", []byte("abc")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Seed_RollsBackOnError(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(upsertUser).WithArgs("alice", "abc").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err := s.Seed(context.Background(), map[string]string{"alice": "abc"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Seed_Commits(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(upsertUser).WithArgs("alice", "abc").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Seed(context.Background(), map[string]string{"alice": "abc"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_UsesGoose(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(context.Background(), db))
	assert.Equal(t, ".", gotDir)

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("migration failed")
	}
	assert.EqualError(t, RunMigrations(context.Background(), db), "migration failed")
}
