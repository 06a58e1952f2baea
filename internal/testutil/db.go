// Package testutil provides shared helpers for building depot test
// fixtures: temp databases with migrations applied, pointer and
// deliverable constructors with option functions, and canned data
// presets used across service and transport tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/depotgate/internal/infrastructure/sqlite"
)

// NewMetadataDB creates a migrated metadata database in a temp
// directory and closes it when the test finishes.
func NewMetadataDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewMetadataDB(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewReceiptsDB creates a migrated receipts database in a temp
// directory and closes it when the test finishes.
func NewReceiptsDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewReceiptsDB(filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
