package postgres

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"0001_wallets.sql": {Data: []byte("CREATE TABLE wallets (id UUID);\n")},
		"0002_more.sql":    {Data: []byte("CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);\n")},
		"README.md":        {Data: []byte("ignored")},
	}
}

func TestLoadMigrations(t *testing.T) {
	ms, err := loadMigrations(testMigrations())
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "0001", ms[0].version)
	assert.Equal(t, "0002", ms[1].version)
	assert.Len(t, ms[1].statements, 2)
}

func TestMigrate_SkipsApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow("0001"))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("0002").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = Migrate(context.Background(), mock, testMigrations(), zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"version"}))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE wallets").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err = Migrate(context.Background(), mock, testMigrations(), zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_wallets.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
