package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewMetadataDB_CreatesDirectory verifies that the parent directory is created if missing.
func TestNewMetadataDB_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "metadata.db")

	db, err := NewMetadataDB(dbPath)
	require.NoError(t, err, "NewMetadataDB should succeed even with nested non-existent directories")
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err, "Directory should exist after NewMetadataDB")
	require.True(t, info.IsDir(), "Should be a directory")

	// Windows doesn't support Unix permissions
	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0700), info.Mode().Perm(), "Directory should have 0700 permissions")
	}
}

// TestNewMetadataDB_RunsMigrations verifies migrations create the metadata tables.
func TestNewMetadataDB_RunsMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")

	db, err := NewMetadataDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"artifacts", "deliverables", "manifests", "requirement_marks"} {
		var name string
		err = db.conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist after migrations", table)
		require.Equal(t, table, name)
	}
}

// TestNewReceiptsDB_RunsMigrations verifies migrations create the receipts table.
func TestNewReceiptsDB_RunsMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "receipts.db")

	db, err := NewReceiptsDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	var name string
	err = db.conn.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='receipts'",
	).Scan(&name)
	require.NoError(t, err, "receipts table should exist after migrations")
	require.Equal(t, "receipts", name)
}

// TestNewMetadataDB_PreMigrationBackup verifies that a .bak file is created
// before migrations when an existing database file is present.
func TestNewMetadataDB_PreMigrationBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")

	db1, err := NewMetadataDB(dbPath)
	require.NoError(t, err, "First open should succeed")
	_, err = db1.conn.Exec(
		`INSERT INTO deliverables (tenant_id, deliverable_id, root_task_id, spec_json, status, created_at)
		 VALUES ('t', 'd', 'task', '{}', 'declared', 1000)`,
	)
	require.NoError(t, err, "Should be able to insert test data")
	require.NoError(t, db1.Close())

	db2, err := NewMetadataDB(dbPath)
	require.NoError(t, err, "Second open should succeed")
	defer db2.Close()

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err, "Backup file should exist after second open")
	require.False(t, info.IsDir())
	require.Greater(t, info.Size(), int64(0), "Backup file should have content")
}

// TestNewMetadataDB_Pragmas verifies WAL, foreign keys, and busy timeout.
func TestNewMetadataDB_Pragmas(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")

	db, err := NewMetadataDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.conn.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, 5000, busyTimeout)
}

// TestDB_Close verifies that the connection closes cleanly.
func TestDB_Close(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")

	db, err := NewMetadataDB(dbPath)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.Error(t, db.conn.Ping(), "Ping should fail after Close")
}

// TestDB_Connection verifies that Connection returns the underlying *sql.DB.
func TestDB_Connection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")

	db, err := NewMetadataDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	conn := db.Connection()
	require.NotNil(t, conn)
	require.IsType(t, (*sql.DB)(nil), conn)
	require.NoError(t, conn.Ping())
}

// TestNewMetadataDB_MultipleCalls verifies that opening the same database twice is safe.
func TestNewMetadataDB_MultipleCalls(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")

	db1, err := NewMetadataDB(dbPath)
	require.NoError(t, err)
	defer db1.Close()

	db2, err := NewMetadataDB(dbPath)
	require.NoError(t, err, "Second open should succeed (WAL mode allows concurrent access)")
	defer db2.Close()

	var count1, count2 int
	require.NoError(t, db1.conn.QueryRow("SELECT COUNT(*) FROM artifacts").Scan(&count1))
	require.NoError(t, db2.conn.QueryRow("SELECT COUNT(*) FROM artifacts").Scan(&count2))
}

// TestNewMetadataDB_InvalidPath verifies an error for unwritable paths.
func TestNewMetadataDB_InvalidPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Unix-specific restricted path test")
	}
	if os.Geteuid() == 0 {
		t.Skip("running as root, restricted paths are writable")
	}

	_, err := NewMetadataDB("/proc/depotgate-test/metadata.db")
	require.Error(t, err, "NewMetadataDB should fail for path in restricted directory")
}
