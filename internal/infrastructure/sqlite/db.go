// Package sqlite implements the depot's metadata and receipt stores
// over database/sql with embedded schema migrations.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// Register the wasm-backed sqlite3 driver for database/sql.
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/log"
)

//go:embed migrations/metadata/*.sql
var metadataMigrations embed.FS

//go:embed migrations/receipts/*.sql
var receiptMigrations embed.FS

// DB wraps a sqlite connection plus its migration set.
type DB struct {
	conn *sql.DB
	path string
}

// NewMetadataDB opens (creating if needed) the metadata database holding
// artifact pointers, deliverables, manifests, and requirement marks.
func NewMetadataDB(path string) (*DB, error) {
	return open(path, metadataMigrations, "migrations/metadata")
}

// NewReceiptsDB opens (creating if needed) the receipts database.
// Receipts live in their own file so the append-only log can be archived
// independently of mutable metadata.
func NewReceiptsDB(path string) (*DB, error) {
	return open(path, receiptMigrations, "migrations/receipts")
}

func open(path string, migrations embed.FS, dir string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Back up an existing file before migrating it forward.
	if _, err := os.Stat(path); err == nil {
		if err := backupFile(path, path+".bak"); err != nil {
			return nil, fmt.Errorf("failed to back up database: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := runMigrations(conn, migrations, dir); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Debug(log.CatDB, "database ready", "path", path)
	return &DB{conn: conn, path: path}, nil
}

func runMigrations(conn *sql.DB, migrations embed.FS, dir string) error {
	src, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func backupFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: operator-configured database path
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Connection exposes the underlying *sql.DB.
func (d *DB) Connection() *sql.DB {
	return d.conn
}

// Close closes the connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// ArtifactRepository returns the pointer store backed by this database.
func (d *DB) ArtifactRepository() domain.ArtifactRepository {
	return newArtifactRepository(d.conn)
}

// DeliverableRepository returns the deliverable store backed by this database.
func (d *DB) DeliverableRepository() domain.DeliverableRepository {
	return newDeliverableRepository(d.conn)
}

// ManifestRepository returns the manifest store backed by this database.
func (d *DB) ManifestRepository() domain.ManifestRepository {
	return newManifestRepository(d.conn)
}

// RequirementMarkRepository returns the requirement mark store.
func (d *DB) RequirementMarkRepository() domain.RequirementMarkRepository {
	return newRequirementMarkRepository(d.conn)
}

// ShipmentCommitter returns the transactional committer for shipping.
func (d *DB) ShipmentCommitter() domain.ShipmentCommitter {
	return newShipmentCommitter(d.conn)
}

// ReceiptRepository returns the append-only receipt log backed by this
// database. Call it on the receipts database only.
func (d *DB) ReceiptRepository() domain.ReceiptRepository {
	return newReceiptRepository(d.conn)
}
