package log

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withTempDB points the global logger at a temp database for one test.
func withTempDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log", "tagbox-log.db")
	prev := dbPathFunc
	dbPathFunc = func() string { return path }
	t.Cleanup(func() {
		Close()
		dbPathFunc = prev
	})
	return path
}

func countRows(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM log`).Scan(&n))
	return n
}

func TestEvent_WriteRecordsSuccessAndFailure(t *testing.T) {
	path := withTempDB(t)
	require.NoError(t, Open())

	Event("importer:import", "import").Path("/tmp/x.pdf").FileID("id-1").Write(nil)
	Event("editor:delete", "delete").FileID("id-1").Detail("reason", "obsolete").Write(os.ErrPermission)
	Close()

	assert.Equal(t, 2, countRows(t, path))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var success int
	var errMsg sql.NullString
	require.NoError(t, db.QueryRow(
		`SELECT success, error FROM log WHERE source = 'editor:delete'`).Scan(&success, &errMsg))
	assert.Equal(t, 0, success)
	require.True(t, errMsg.Valid)
	assert.Contains(t, errMsg.String, "permission")
}

func TestLog_NoopWhenClosed(t *testing.T) {
	withTempDB(t)
	// Never opened: writing must be a silent no-op, not a panic.
	Event("importer:import", "import").Write(nil)
}

func TestOpen_Idempotent(t *testing.T) {
	withTempDB(t)
	require.NoError(t, Open())
	require.NoError(t, Open())
}
