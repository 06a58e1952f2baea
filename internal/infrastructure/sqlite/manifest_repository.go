package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
)

const manifestColumns = `tenant_id, manifest_id, deliverable_id, root_task_id,
	pointers_json, destination, destination_refs_json, shipped_at`

// manifestRepository implements domain.ManifestRepository using SQLite.
// Manifest rows are inserted only by the shipment committer; this
// repository is read-only.
type manifestRepository struct {
	db *sql.DB
}

func newManifestRepository(db *sql.DB) *manifestRepository {
	return &manifestRepository{db: db}
}

var _ domain.ManifestRepository = (*manifestRepository)(nil)

func scanManifest(scanner interface{ Scan(...any) error }) (ManifestModel, error) {
	var m ManifestModel
	err := scanner.Scan(
		&m.TenantID, &m.ManifestID, &m.DeliverableID, &m.RootTaskID,
		&m.PointersJSON, &m.Destination, &m.DestinationRefsJSON, &m.ShippedAt,
	)
	return m, err
}

func (r *manifestRepository) FindByID(ctx context.Context, tenantID string, manifestID uuid.UUID) (domain.ShipmentManifest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+manifestColumns+` FROM manifests WHERE tenant_id = ? AND manifest_id = ?`,
		tenantID, manifestID.String(),
	)
	m, err := scanManifest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ShipmentManifest{}, domain.E(domain.KindNotFound, "manifest %s not found", manifestID)
	}
	if err != nil {
		return domain.ShipmentManifest{}, fmt.Errorf("failed to find manifest by id: %w", err)
	}
	return m.toDomain()
}

func (r *manifestRepository) ListByTask(ctx context.Context, tenantID, rootTaskID string) ([]domain.ShipmentManifest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+manifestColumns+` FROM manifests
		 WHERE tenant_id = ? AND root_task_id = ?
		 ORDER BY shipped_at DESC, manifest_id DESC`,
		tenantID, rootTaskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var manifests []domain.ShipmentManifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan manifest row: %w", err)
		}
		manifest, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, manifest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating manifest rows: %w", err)
	}
	return manifests, nil
}
