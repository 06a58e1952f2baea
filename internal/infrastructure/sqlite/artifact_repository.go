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

// artifactColumns is the list of columns to select for pointer queries.
const artifactColumns = `tenant_id, artifact_id, root_task_id, location, size_bytes,
	mime_type, content_hash, artifact_role, produced_by_receipt_id, created_at, purged_at, purge_after`

// artifactRepository implements domain.ArtifactRepository using SQLite.
type artifactRepository struct {
	db *sql.DB
}

func newArtifactRepository(db *sql.DB) *artifactRepository {
	return &artifactRepository{db: db}
}

// Ensure artifactRepository implements domain.ArtifactRepository.
var _ domain.ArtifactRepository = (*artifactRepository)(nil)

// scanArtifact scans a row into an ArtifactModel.
func scanArtifact(scanner interface{ Scan(...any) error }) (ArtifactModel, error) {
	var m ArtifactModel
	err := scanner.Scan(
		&m.TenantID, &m.ArtifactID, &m.RootTaskID, &m.Location, &m.SizeBytes,
		&m.MimeType, &m.ContentHash, &m.Role, &m.ProducedByReceiptID,
		&m.CreatedAt, &m.PurgedAt, &m.PurgeAfter,
	)
	return m, err
}

func (r *artifactRepository) Insert(ctx context.Context, p domain.ArtifactPointer) error {
	m := toArtifactModel(p)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO artifacts (
			tenant_id, artifact_id, root_task_id, location, size_bytes,
			mime_type, content_hash, artifact_role, produced_by_receipt_id,
			created_at, purged_at, purge_after
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TenantID, m.ArtifactID, m.RootTaskID, m.Location, m.SizeBytes,
		m.MimeType, m.ContentHash, m.Role, m.ProducedByReceiptID,
		m.CreatedAt, m.PurgedAt, m.PurgeAfter,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact pointer: %w", err)
	}
	return nil
}

func (r *artifactRepository) FindByID(ctx context.Context, tenantID string, artifactID uuid.UUID) (domain.ArtifactPointer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE tenant_id = ? AND artifact_id = ?`,
		tenantID, artifactID.String(),
	)
	m, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ArtifactPointer{}, domain.E(domain.KindNotFound, "artifact %s not found", artifactID)
	}
	if err != nil {
		return domain.ArtifactPointer{}, fmt.Errorf("failed to find artifact by id: %w", err)
	}
	return m.toDomain()
}

func (r *artifactRepository) ListLive(ctx context.Context, tenantID, rootTaskID string, filter domain.ArtifactFilter) ([]domain.ArtifactPointer, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts
		WHERE tenant_id = ? AND root_task_id = ? AND purged_at IS NULL`
	args := []any{tenantID, rootTaskID}

	if filter.Role != nil {
		query += ` AND artifact_role = ?`
		args = append(args, string(*filter.Role))
	}
	if len(filter.IDs) > 0 {
		query += ` AND artifact_id IN (?` + repeatPlaceholder(len(filter.IDs)-1) + `)`
		for _, id := range filter.IDs {
			args = append(args, id.String())
		}
	}

	// Newest first
	query += ` ORDER BY created_at DESC, artifact_id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var pointers []domain.ArtifactPointer
	for rows.Next() {
		m, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact row: %w", err)
		}
		p, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		pointers = append(pointers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifact rows: %w", err)
	}
	return pointers, nil
}

func (r *artifactRepository) MarkPurged(ctx context.Context, tenantID, rootTaskID string, ids []uuid.UUID, purgedAt time.Time, purgeAfter *time.Time) ([]uuid.UUID, error) {
	// Read the live set first so the caller learns exactly which
	// pointers this purge retired.
	filter := domain.ArtifactFilter{IDs: ids}
	live, err := r.ListLive(ctx, tenantID, rootTaskID, filter)
	if err != nil {
		return nil, err
	}
	if len(live) == 0 {
		return nil, nil
	}

	query := `UPDATE artifacts SET purged_at = ?, purge_after = ?
		WHERE tenant_id = ? AND root_task_id = ? AND purged_at IS NULL
		AND artifact_id IN (?` + repeatPlaceholder(len(live)-1) + `)`
	var after *int64
	if purgeAfter != nil {
		v := purgeAfter.UnixNano()
		after = &v
	}
	args := []any{purgedAt.UnixNano(), after, tenantID, rootTaskID}
	purged := make([]uuid.UUID, 0, len(live))
	for _, p := range live {
		args = append(args, p.ArtifactID.String())
		purged = append(purged, p.ArtifactID)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to mark artifacts purged: %w", err)
	}
	return purged, nil
}

// repeatPlaceholder returns n occurrences of ", ?" for IN clauses.
func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
