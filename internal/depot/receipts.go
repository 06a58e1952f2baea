// Package depot implements the staging, deliverable, and shipping
// services over the pointer, contract, and receipt stores.
package depot

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/log"
	"github.com/zjrosen/depotgate/internal/pubsub"
	"github.com/zjrosen/depotgate/internal/sanitize"
)

// ReceiptLog appends receipts to the durable log and fans them out to
// live subscribers. Appends are durable; publishes are best-effort.
type ReceiptLog struct {
	repo   domain.ReceiptRepository
	broker *pubsub.Broker[domain.Receipt]
	now    func() time.Time
}

// NewReceiptLog creates a receipt log over the given store.
func NewReceiptLog(repo domain.ReceiptRepository) *ReceiptLog {
	return &ReceiptLog{
		repo:   repo,
		broker: pubsub.NewBroker[domain.Receipt](),
		now:    time.Now,
	}
}

// Broker exposes the live receipt stream for subscribers.
func (l *ReceiptLog) Broker() *pubsub.Broker[domain.Receipt] {
	return l.broker
}

// Close shuts down the live stream. Already-appended receipts are
// unaffected.
func (l *ReceiptLog) Close() {
	l.broker.Close()
}

// Emit appends a receipt and publishes it to subscribers. A failed
// append surfaces as ReceiptWriteFailed and nothing is published.
func (l *ReceiptLog) Emit(ctx context.Context, tenantID, rootTaskID string, kind domain.ReceiptKind, payload map[string]any, causedBy *uuid.UUID) (domain.Receipt, error) {
	receipt := domain.Receipt{
		ReceiptID:  uuid.New(),
		TenantID:   tenantID,
		RootTaskID: rootTaskID,
		Kind:       kind,
		Payload:    payload,
		CausedBy:   causedBy,
		EmittedAt:  l.now().UTC(),
	}
	if err := l.repo.Append(ctx, receipt); err != nil {
		log.ErrorErr(log.CatShip, "failed to append receipt", err, "kind", string(kind), "task", rootTaskID)
		return domain.Receipt{}, domain.WrapE(domain.KindReceiptWriteFailed, err, "appending %s receipt", kind)
	}
	l.broker.Publish(pubsub.CreatedEvent, receipt)
	return receipt, nil
}

// Get returns a single receipt by id.
func (l *ReceiptLog) Get(ctx context.Context, tenantID string, receiptID uuid.UUID) (domain.Receipt, error) {
	return l.repo.FindByID(ctx, tenantID, receiptID)
}

// List returns a task's receipts in emission order.
func (l *ReceiptLog) List(ctx context.Context, tenantID, rootTaskID string, filter domain.ReceiptFilter) ([]domain.Receipt, error) {
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return nil, err
	}
	return l.repo.ListByTask(ctx, tenantID, rootTaskID, filter)
}
