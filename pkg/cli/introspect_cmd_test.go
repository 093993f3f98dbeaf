package cli

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.sqlite")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	_, err = db.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active'
	)`)
	require.NoError(t, err)
	return path
}

func TestCLI_Introspect_SQLiteToStdout(t *testing.T) {
	dsn := seedSQLite(t)

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"introspect", "--driver", "sqlite", "--dsn", dsn})
	err := rootCmd.Execute()
	out := restore()

	require.NoError(t, err)
	assert.Contains(t, out, "Table users {")
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "name")
}

func TestCLI_Introspect_OutputFile(t *testing.T) {
	dsn := seedSQLite(t)
	dest := filepath.Join(t.TempDir(), "schema.dbml")

	restore := captureStdout(t)
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"introspect", "--driver", "sqlite", "--dsn", dsn, "-o", dest})
	err := rootCmd.Execute()
	out := restore()

	require.NoError(t, err)
	assert.Equal(t, dest, strings.TrimSpace(out))

	dbmlText, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(dbmlText), "Table users {")
}

func TestCLI_Introspect_UnsupportedDriver(t *testing.T) {
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"introspect", "--driver", "oracle", "--dsn", "whatever"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestCLI_Introspect_RequiresDSN(t *testing.T) {
	rootCmd := newRootCmd()
	rootCmd.SetArgs([]string{"introspect"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn")
}
