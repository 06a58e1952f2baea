package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ArtifactFilter narrows pointer listings. Zero value means no filter.
type ArtifactFilter struct {
	Role *ArtifactRole
	IDs  []uuid.UUID
}

// ArtifactRepository persists artifact pointers.
type ArtifactRepository interface {
	// Insert stores a new pointer. A second insert of the same
	// (tenant_id, artifact_id) returns an error.
	Insert(ctx context.Context, p ArtifactPointer) error

	// FindByID loads one pointer, purged or live. NotFound if absent.
	FindByID(ctx context.Context, tenantID string, artifactID uuid.UUID) (ArtifactPointer, error)

	// ListLive returns live pointers for a task, newest first.
	ListLive(ctx context.Context, tenantID, rootTaskID string, filter ArtifactFilter) ([]ArtifactPointer, error)

	// MarkPurged soft-deletes the given pointers (all live pointers of the
	// task when ids is empty). purgeAfter records delayed-deletion intent
	// and may be nil. Returns the ids whose rows were actually updated;
	// already-purged pointers are skipped, not errors.
	MarkPurged(ctx context.Context, tenantID, rootTaskID string, ids []uuid.UUID, purgedAt time.Time, purgeAfter *time.Time) ([]uuid.UUID, error)
}

// DeliverableRepository persists deliverable contracts.
type DeliverableRepository interface {
	Insert(ctx context.Context, d Deliverable) error

	// FindByID loads one deliverable. NotFound if absent.
	FindByID(ctx context.Context, tenantID string, deliverableID uuid.UUID) (Deliverable, error)

	// ListByTask returns deliverables for a task, newest first,
	// optionally filtered by status.
	ListByTask(ctx context.Context, tenantID, rootTaskID string, status *DeliverableStatus) ([]Deliverable, error)

	// TransitionStatus performs a compare-and-set from one status to
	// another. Returns false without error when the row was not in the
	// expected `from` status.
	TransitionStatus(ctx context.Context, tenantID string, deliverableID uuid.UUID, from, to DeliverableStatus, at time.Time) (bool, error)
}

// ManifestRepository reads shipment manifests. Manifest inserts happen
// only inside ShipmentCommitter.
type ManifestRepository interface {
	FindByID(ctx context.Context, tenantID string, manifestID uuid.UUID) (ShipmentManifest, error)
	ListByTask(ctx context.Context, tenantID, rootTaskID string) ([]ShipmentManifest, error)
}

// RequirementMarkRepository records explicit out-of-band requirement
// completion for deliverables.
type RequirementMarkRepository interface {
	// Mark records a requirement name as satisfied. Re-marking is a no-op.
	Mark(ctx context.Context, tenantID string, deliverableID uuid.UUID, name string, at time.Time) error

	// Marked returns the set of requirement names marked for a deliverable.
	Marked(ctx context.Context, tenantID string, deliverableID uuid.UUID) (map[string]bool, error)
}

// ReceiptFilter narrows receipt listings. Zero value means no filter.
type ReceiptFilter struct {
	Kind  *ReceiptKind
	Since *time.Time
	Limit int
}

// ReceiptRepository is the append-only receipt log. There is no update
// or delete path.
type ReceiptRepository interface {
	Append(ctx context.Context, r Receipt) error

	// FindByID returns a single receipt.
	FindByID(ctx context.Context, tenantID string, receiptID uuid.UUID) (Receipt, error)

	// ListByTask returns receipts for a task ordered by emitted_at
	// ascending.
	ListByTask(ctx context.Context, tenantID, rootTaskID string, filter ReceiptFilter) ([]Receipt, error)
}

// ShipmentCommitter groups the terminal shipping writes in one
// transaction: the deliverable CAS declared→shipped and the manifest
// insert. A lost CAS surfaces as RaceLost and nothing is persisted.
type ShipmentCommitter interface {
	CommitShipment(ctx context.Context, m ShipmentManifest) error
}
