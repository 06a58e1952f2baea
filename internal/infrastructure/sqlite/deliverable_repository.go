package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
)

const deliverableColumns = `tenant_id, deliverable_id, root_task_id, spec_json, status, created_at, shipped_at`

// deliverableRepository implements domain.DeliverableRepository using SQLite.
type deliverableRepository struct {
	db *sql.DB
}

func newDeliverableRepository(db *sql.DB) *deliverableRepository {
	return &deliverableRepository{db: db}
}

var _ domain.DeliverableRepository = (*deliverableRepository)(nil)

func scanDeliverable(scanner interface{ Scan(...any) error }) (DeliverableModel, error) {
	var m DeliverableModel
	err := scanner.Scan(
		&m.TenantID, &m.DeliverableID, &m.RootTaskID, &m.SpecJSON,
		&m.Status, &m.CreatedAt, &m.ShippedAt,
	)
	return m, err
}

func (r *deliverableRepository) Insert(ctx context.Context, d domain.Deliverable) error {
	m, err := toDeliverableModel(d)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO deliverables (
			tenant_id, deliverable_id, root_task_id, spec_json, status, created_at, shipped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.TenantID, m.DeliverableID, m.RootTaskID, m.SpecJSON, m.Status, m.CreatedAt, m.ShippedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deliverable: %w", err)
	}
	return nil
}

func (r *deliverableRepository) FindByID(ctx context.Context, tenantID string, deliverableID uuid.UUID) (domain.Deliverable, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deliverableColumns+` FROM deliverables WHERE tenant_id = ? AND deliverable_id = ?`,
		tenantID, deliverableID.String(),
	)
	m, err := scanDeliverable(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Deliverable{}, domain.E(domain.KindNotFound, "deliverable %s not found", deliverableID)
	}
	if err != nil {
		return domain.Deliverable{}, fmt.Errorf("failed to find deliverable by id: %w", err)
	}
	return m.toDomain()
}

func (r *deliverableRepository) ListByTask(ctx context.Context, tenantID, rootTaskID string, status *domain.DeliverableStatus) ([]domain.Deliverable, error) {
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE tenant_id = ? AND root_task_id = ?`
	args := []any{tenantID, rootTaskID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC, deliverable_id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliverables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deliverables []domain.Deliverable
	for rows.Next() {
		m, err := scanDeliverable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deliverable row: %w", err)
		}
		d, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		deliverables = append(deliverables, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deliverable rows: %w", err)
	}
	return deliverables, nil
}

// TransitionStatus performs the status CAS. Returns false when the row
// was not in the expected `from` status; the caller distinguishes race
// from terminal re-entry by re-reading the row.
func (r *deliverableRepository) TransitionStatus(ctx context.Context, tenantID string, deliverableID uuid.UUID, from, to domain.DeliverableStatus, at time.Time) (bool, error) {
	var shippedAt *int64
	if to == domain.StatusShipped {
		v := at.UnixNano()
		shippedAt = &v
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE deliverables SET status = ?, shipped_at = COALESCE(?, shipped_at)
		 WHERE tenant_id = ? AND deliverable_id = ? AND status = ?`,
		string(to), shippedAt, tenantID, deliverableID.String(), string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition deliverable status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}
