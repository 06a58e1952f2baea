package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
)

// requirementMarkRepository implements domain.RequirementMarkRepository
// using SQLite.
type requirementMarkRepository struct {
	db *sql.DB
}

func newRequirementMarkRepository(db *sql.DB) *requirementMarkRepository {
	return &requirementMarkRepository{db: db}
}

var _ domain.RequirementMarkRepository = (*requirementMarkRepository)(nil)

// Mark records a requirement as satisfied. Re-marking keeps the
// original timestamp.
func (r *requirementMarkRepository) Mark(ctx context.Context, tenantID string, deliverableID uuid.UUID, name string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO requirement_marks (tenant_id, deliverable_id, name, marked_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (tenant_id, deliverable_id, name) DO NOTHING`,
		tenantID, deliverableID.String(), name, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark requirement: %w", err)
	}
	return nil
}

func (r *requirementMarkRepository) Marked(ctx context.Context, tenantID string, deliverableID uuid.UUID) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM requirement_marks WHERE tenant_id = ? AND deliverable_id = ?`,
		tenantID, deliverableID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list requirement marks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	marked := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan requirement mark row: %w", err)
		}
		marked[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requirement mark rows: %w", err)
	}
	return marked, nil
}
