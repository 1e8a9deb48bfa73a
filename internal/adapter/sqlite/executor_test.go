package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/guillermoBallester/nlquery/internal/adapter/sqlite"
	"github.com/guillermoBallester/nlquery/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
	CREATE TABLE Match (
		match_api_id     INTEGER PRIMARY KEY,
		date             TEXT,
		home_team_api_id INTEGER,
		away_team_api_id INTEGER,
		home_team_goal   INTEGER,
		away_team_goal   INTEGER
	);
	INSERT INTO Match VALUES (1, '2015-08-01', 10, 20, 2, 1);
	INSERT INTO Match VALUES (2, '2015-08-08', 20, 10, 0, 0);
	INSERT INTO Match VALUES (3, '2015-08-15', 10, 30, 3, NULL);
	INSERT INTO Match VALUES (4, '2015-08-22', 30, 20, 1, 4);
	INSERT INTO Match VALUES (5, '2015-08-29', 20, 30, 2, 2);
`

// setupTestDB writes a small soccer database to a temp file and returns its path.
func setupTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "soccer.sqlite")

	db, err := sql.Open(sqlite.DriverName, path)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return path
}

func TestExecute_ReturnsAllRows(t *testing.T) {
	path := setupTestDB(t)
	executor := sqlite.NewExecutor(sqlite.DriverName, sqlite.ReadOnlyDSN(path), 1000, 5*time.Second)

	result, err := executor.Execute(context.Background(), "SELECT * FROM match LIMIT 1000;", 0)
	require.NoError(t, err)

	assert.Equal(t, 5, result.RowCount)
	assert.Len(t, result.Rows, 5)
	assert.False(t, result.Truncated)
	assert.GreaterOrEqual(t, result.Duration, time.Duration(0))

	names := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{
		"match_api_id", "date", "home_team_api_id", "away_team_api_id", "home_team_goal", "away_team_goal",
	}, names)
}

func TestExecute_NullIsExplicit(t *testing.T) {
	path := setupTestDB(t)
	executor := sqlite.NewExecutor(sqlite.DriverName, path, 1000, 5*time.Second)

	result, err := executor.Execute(context.Background(),
		"SELECT match_api_id, away_team_goal FROM match WHERE match_api_id = 3", 0)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]
	assert.Contains(t, row, "away_team_goal")
	assert.Nil(t, row["away_team_goal"])
	assert.EqualValues(t, 3, row["match_api_id"])
}

func TestExecute_StreamingCap(t *testing.T) {
	path := setupTestDB(t)
	executor := sqlite.NewExecutor(sqlite.DriverName, path, 3, 5*time.Second)

	result, err := executor.Execute(context.Background(), "SELECT * FROM match LIMIT 100", 0)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 3)
	assert.Equal(t, 3, result.RowCount)
	assert.True(t, result.Truncated)
}

func TestExecute_SyntaxError(t *testing.T) {
	path := setupTestDB(t)
	executor := sqlite.NewExecutor(sqlite.DriverName, path, 1000, 5*time.Second)

	_, err := executor.Execute(context.Background(), "SELECT FROM WHERE", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)

	var execErr *domain.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Contains(t, execErr.Message, "syntax error")
}

func TestExecute_UnknownTable(t *testing.T) {
	path := setupTestDB(t)
	executor := sqlite.NewExecutor(sqlite.DriverName, path, 1000, 5*time.Second)

	_, err := executor.Execute(context.Background(), "SELECT * FROM team", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)
	assert.Contains(t, err.Error(), "no such table")
}

func TestExecute_ReadOnlyRefusesWrites(t *testing.T) {
	path := setupTestDB(t)
	executor := sqlite.NewExecutor(sqlite.DriverName, sqlite.ReadOnlyDSN(path), 1000, 5*time.Second)

	_, err := executor.Execute(context.Background(), "DELETE FROM match", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)

	result, err := executor.Execute(context.Background(), "SELECT * FROM match", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, result.RowCount)
}

func TestExecute_CanceledBeforeFirstRow(t *testing.T) {
	path := setupTestDB(t)
	executor := sqlite.NewExecutor(sqlite.DriverName, path, 1000, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := executor.Execute(ctx, "SELECT * FROM match", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCanceled)
	assert.Nil(t, result)
}

func TestReadOnlyDSN(t *testing.T) {
	assert.Equal(t, "data/db.sqlite?_pragma=query_only(1)", sqlite.ReadOnlyDSN("data/db.sqlite"))
	assert.Equal(t, "db.sqlite?_busy_timeout=5000&_pragma=query_only(1)", sqlite.ReadOnlyDSN("db.sqlite?_busy_timeout=5000"))
}

// --- sqlmock-driven paths ---

func newMock(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.NewWithDSN(t.Name(), sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return mock
}

func TestExecute_Timeout(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT * FROM match LIMIT 1000;").
		WillDelayFor(2 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"match_api_id"}).AddRow(1))

	executor := sqlite.NewExecutor("sqlmock", t.Name(), 1000, 5*time.Second)

	result, err := executor.Execute(context.Background(), "SELECT * FROM match LIMIT 1000;", 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Nil(t, result)
}

func TestExecute_CanceledMidRead(t *testing.T) {
	mock := newMock(t)
	rows := sqlmock.NewRows([]string{"match_api_id"}).
		AddRow(1).
		AddRow(2).
		AddRow(3).
		RowError(1, context.Canceled)
	mock.ExpectQuery("SELECT match_api_id FROM match").WillReturnRows(rows)

	executor := sqlite.NewExecutor("sqlmock", t.Name(), 1000, 5*time.Second)

	result, err := executor.Execute(context.Background(), "SELECT match_api_id FROM match", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCanceled)
	assert.Nil(t, result, "partially read rows must be discarded")
}

func TestExecute_DriverFault(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT * FROM match").WillReturnError(errors.New("disk I/O error"))

	executor := sqlite.NewExecutor("sqlmock", t.Name(), 1000, 5*time.Second)

	_, err := executor.Execute(context.Background(), "SELECT * FROM match", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExecutionFailed)
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestExecute_BytesBecomeStrings(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT team_long_name FROM team").
		WillReturnRows(sqlmock.NewRows([]string{"team_long_name"}).AddRow([]byte("FC Barcelona")).AddRow(nil))

	executor := sqlite.NewExecutor("sqlmock", t.Name(), 1000, 5*time.Second)

	result, err := executor.Execute(context.Background(), "SELECT team_long_name FROM team", 0)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "FC Barcelona", result.Rows[0]["team_long_name"])
	assert.Contains(t, result.Rows[1], "team_long_name")
	assert.Nil(t, result.Rows[1]["team_long_name"])
}

func TestFilePath(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"data/db.sqlite", "data/db.sqlite"},
		{"data/db.sqlite?_pragma=query_only(1)", "data/db.sqlite"},
		{"file:data/db.sqlite", "data/db.sqlite"},
		{"file:/srv/db.sqlite?mode=ro&_busy_timeout=5000", "/srv/db.sqlite"},
		{":memory:", ""},
		{"file::memory:?cache=shared", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sqlite.FilePath(tt.dsn), tt.dsn)
	}
}
