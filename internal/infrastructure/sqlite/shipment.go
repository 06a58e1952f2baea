package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zjrosen/depotgate/internal/domain"
)

// shipmentCommitter implements domain.ShipmentCommitter. The deliverable
// CAS declared→shipped and the manifest insert commit or roll back
// together.
type shipmentCommitter struct {
	db *sql.DB
}

func newShipmentCommitter(db *sql.DB) *shipmentCommitter {
	return &shipmentCommitter{db: db}
}

var _ domain.ShipmentCommitter = (*shipmentCommitter)(nil)

func (c *shipmentCommitter) CommitShipment(ctx context.Context, m domain.ShipmentManifest) error {
	model, err := toManifestModel(m)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin shipment transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE deliverables SET status = ?, shipped_at = ?
		 WHERE tenant_id = ? AND deliverable_id = ? AND status = ?`,
		string(domain.StatusShipped), model.ShippedAt,
		m.TenantID, m.DeliverableID.String(), string(domain.StatusDeclared),
	)
	if err != nil {
		return fmt.Errorf("failed to transition deliverable to shipped: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// A concurrent ship already won the CAS.
		return domain.E(domain.KindRaceLost, "deliverable %s was not in declared status", m.DeliverableID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO manifests (
			tenant_id, manifest_id, deliverable_id, root_task_id,
			pointers_json, destination, destination_refs_json, shipped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		model.TenantID, model.ManifestID, model.DeliverableID, model.RootTaskID,
		model.PointersJSON, model.Destination, model.DestinationRefsJSON, model.ShippedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert manifest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit shipment transaction: %w", err)
	}
	return nil
}
