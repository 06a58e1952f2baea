package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
)

const receiptColumns = `tenant_id, receipt_id, root_task_id, kind, payload_json, caused_by, emitted_at`

// receiptRepository implements domain.ReceiptRepository using SQLite.
// The table is insert-only: no UPDATE or DELETE statement exists here.
type receiptRepository struct {
	db *sql.DB
}

func newReceiptRepository(db *sql.DB) *receiptRepository {
	return &receiptRepository{db: db}
}

var _ domain.ReceiptRepository = (*receiptRepository)(nil)

func scanReceipt(scanner interface{ Scan(...any) error }) (ReceiptModel, error) {
	var m ReceiptModel
	err := scanner.Scan(
		&m.TenantID, &m.ReceiptID, &m.RootTaskID, &m.Kind,
		&m.PayloadJSON, &m.CausedBy, &m.EmittedAt,
	)
	return m, err
}

func (r *receiptRepository) Append(ctx context.Context, receipt domain.Receipt) error {
	m, err := toReceiptModel(receipt)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO receipts (tenant_id, receipt_id, root_task_id, kind, payload_json, caused_by, emitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.TenantID, m.ReceiptID, m.RootTaskID, m.Kind, m.PayloadJSON, m.CausedBy, m.EmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append receipt: %w", err)
	}
	return nil
}

func (r *receiptRepository) FindByID(ctx context.Context, tenantID string, receiptID uuid.UUID) (domain.Receipt, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE tenant_id = ? AND receipt_id = ?`,
		tenantID, receiptID.String(),
	)
	m, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Receipt{}, domain.E(domain.KindNotFound, "receipt %s not found", receiptID)
	}
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("failed to find receipt by id: %w", err)
	}
	return m.toDomain()
}

func (r *receiptRepository) ListByTask(ctx context.Context, tenantID, rootTaskID string, filter domain.ReceiptFilter) ([]domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE tenant_id = ? AND root_task_id = ?`
	args := []any{tenantID, rootTaskID}

	if filter.Kind != nil {
		query += ` AND kind = ?`
		args = append(args, string(*filter.Kind))
	}
	if filter.Since != nil {
		query += ` AND emitted_at >= ?`
		args = append(args, filter.Since.UnixNano())
	}

	// Receipts read back in emission order.
	query += ` ORDER BY emitted_at ASC, receipt_id ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var receipts []domain.Receipt
	for rows.Next() {
		m, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipt, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipt rows: %w", err)
	}
	return receipts, nil
}
