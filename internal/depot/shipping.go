package depot

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/log"
	"github.com/zjrosen/depotgate/internal/sanitize"
	"github.com/zjrosen/depotgate/internal/sink"
	"github.com/zjrosen/depotgate/internal/storage"
)

// ShippingService verifies closure and transfers a deliverable's
// artifacts through its sink, committing the status flip and manifest
// atomically.
type ShippingService struct {
	deliverables domain.DeliverableRepository
	artifacts    domain.ArtifactRepository
	manifests    domain.ManifestRepository
	marks        domain.RequirementMarkRepository
	committer    domain.ShipmentCommitter
	storage      *storage.Registry
	sinks        *sink.Selector
	receipts     *ReceiptLog
	now          func() time.Time
}

// NewShippingService wires the shipping service.
func NewShippingService(
	deliverables domain.DeliverableRepository,
	artifacts domain.ArtifactRepository,
	manifests domain.ManifestRepository,
	marks domain.RequirementMarkRepository,
	committer domain.ShipmentCommitter,
	registry *storage.Registry,
	sinks *sink.Selector,
	receipts *ReceiptLog,
) *ShippingService {
	return &ShippingService{
		deliverables: deliverables,
		artifacts:    artifacts,
		manifests:    manifests,
		marks:        marks,
		committer:    committer,
		storage:      registry,
		sinks:        sinks,
		receipts:     receipts,
		now:          time.Now,
	}
}

// Ship attempts to ship a deliverable. The sequence is: closure check,
// sink transfer, then the atomic commit of status flip plus manifest.
//
// Failure semantics by stage:
//   - closure not satisfied: the deliverable flips to rejected, a
//     shipment_rejected receipt is emitted, and ClosureNotSatisfied is
//     returned
//   - sink failure: no state changes and no receipt; the deliverable
//     stays declared and ship may be retried
//   - commit failure after sink success: ManifestPersistFailed; the
//     destination may already hold the artifacts, so delivery is
//     at-least-once under retries
//   - receipt failure after commit: the shipment stands; the manifest
//     is returned alongside a ReceiptWriteFailed error
func (s *ShippingService) Ship(ctx context.Context, tenantID, rootTaskID string, deliverableID uuid.UUID) (domain.ShipmentManifest, error) {
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return domain.ShipmentManifest{}, err
	}
	d, err := s.deliverables.FindByID(ctx, tenantID, deliverableID)
	if err != nil {
		return domain.ShipmentManifest{}, err
	}
	if d.RootTaskID != rootTaskID {
		// A deliverable id is only valid under the task that declared it.
		return domain.ShipmentManifest{}, domain.E(domain.KindNotFound, "deliverable %s is not declared under task %s", deliverableID, rootTaskID)
	}
	switch d.Status {
	case domain.StatusShipped:
		return domain.ShipmentManifest{}, domain.E(domain.KindAlreadyShipped, "deliverable %s already shipped", deliverableID)
	case domain.StatusRejected:
		return domain.ShipmentManifest{}, domain.E(domain.KindAlreadyRejected, "deliverable %s already rejected", deliverableID)
	}

	live, err := s.artifacts.ListLive(ctx, tenantID, d.RootTaskID, domain.ArtifactFilter{})
	if err != nil {
		return domain.ShipmentManifest{}, err
	}
	marked, err := s.marks.Marked(ctx, tenantID, deliverableID)
	if err != nil {
		return domain.ShipmentManifest{}, err
	}
	report := evaluateClosure(d.Spec, live, marked)
	if !report.Satisfied {
		return domain.ShipmentManifest{}, s.reject(ctx, d, report)
	}

	sk, err := s.sinks.ForDestination(d.Spec.ShippingDestination)
	if err != nil {
		return domain.ShipmentManifest{}, err
	}

	manifest := domain.ShipmentManifest{
		ManifestID:    uuid.New(),
		DeliverableID: d.DeliverableID,
		TenantID:      tenantID,
		RootTaskID:    d.RootTaskID,
		Pointers:      report.Matched,
		Destination:   d.Spec.ShippingDestination,
		ShippedAt:     s.now().UTC(),
	}

	pointersByID := make(map[uuid.UUID]domain.ArtifactPointer, len(report.Matched))
	for _, p := range report.Matched {
		pointersByID[p.ArtifactID] = p
	}
	getContent := func(ctx context.Context, artifactID uuid.UUID) (io.ReadCloser, error) {
		p, ok := pointersByID[artifactID]
		if !ok {
			return nil, domain.E(domain.KindArtifactMissing, "artifact %s is not part of the shipment", artifactID)
		}
		backend, err := s.storage.ForLocation(p.Location)
		if err != nil {
			return nil, err
		}
		return backend.Retrieve(ctx, p.Location)
	}

	refs, err := sk.Ship(ctx, manifest, getContent)
	if err != nil {
		// Nothing committed and no receipt; the deliverable stays
		// declared and the caller may retry.
		log.ErrorErr(log.CatShip, "sink transfer failed", err,
			"tenant", tenantID, "deliverable", deliverableID.String(),
			"destination", d.Spec.ShippingDestination)
		return domain.ShipmentManifest{}, err
	}
	manifest.DestinationRefs = refs

	if err := s.committer.CommitShipment(ctx, manifest); err != nil {
		if domain.IsKind(err, domain.KindRaceLost) {
			return domain.ShipmentManifest{}, err
		}
		return domain.ShipmentManifest{}, domain.WrapE(domain.KindManifestPersist, err, "committing shipment for deliverable %s", deliverableID)
	}

	log.Info(log.CatShip, "shipment committed",
		"tenant", tenantID, "deliverable", deliverableID.String(),
		"manifest", manifest.ManifestID.String(),
		"artifacts", len(manifest.Pointers),
		"destination", manifest.Destination)

	artifactIDs := make([]string, 0, len(manifest.Pointers))
	for _, p := range manifest.Pointers {
		artifactIDs = append(artifactIDs, p.ArtifactID.String())
	}
	if _, err := s.receipts.Emit(ctx, tenantID, d.RootTaskID, domain.ReceiptShipmentComplete, map[string]any{
		"deliverable_id":   d.DeliverableID.String(),
		"manifest_id":      manifest.ManifestID.String(),
		"destination":      manifest.Destination,
		"artifact_ids":     artifactIDs,
		"artifact_count":   len(manifest.Pointers),
		"destination_refs": refs,
	}, nil); err != nil {
		return manifest, err
	}
	return manifest, nil
}

// reject flips the deliverable to rejected and reports what was missing.
func (s *ShippingService) reject(ctx context.Context, d domain.Deliverable, report domain.ClosureReport) error {
	ok, err := s.deliverables.TransitionStatus(ctx, d.TenantID, d.DeliverableID,
		domain.StatusDeclared, domain.StatusRejected, s.now().UTC())
	if err != nil {
		return domain.WrapE(domain.KindStorageFailure, err, "rejecting deliverable %s", d.DeliverableID)
	}
	if !ok {
		// A concurrent ship or reject beat us to the terminal state.
		return domain.E(domain.KindRaceLost, "deliverable %s was not in declared status", d.DeliverableID)
	}

	missingIDs := make([]string, 0, len(report.MissingIDs))
	for _, id := range report.MissingIDs {
		missingIDs = append(missingIDs, id.String())
	}
	missingRoles := make([]string, 0, len(report.MissingRoles))
	for _, role := range report.MissingRoles {
		missingRoles = append(missingRoles, string(role))
	}
	if _, err := s.receipts.Emit(ctx, d.TenantID, d.RootTaskID, domain.ReceiptShipmentRejected, map[string]any{
		"deliverable_id":       d.DeliverableID.String(),
		"missing_ids":          missingIDs,
		"missing_roles":        missingRoles,
		"missing_requirements": report.MissingRequirements,
	}, nil); err != nil {
		log.ErrorErr(log.CatShip, "failed to record rejection receipt", err,
			"deliverable", d.DeliverableID.String())
	}

	log.Warn(log.CatShip, "shipment rejected: closure not satisfied",
		"tenant", d.TenantID, "deliverable", d.DeliverableID.String(),
		"missing_ids", len(report.MissingIDs),
		"missing_roles", len(report.MissingRoles),
		"missing_requirements", len(report.MissingRequirements))
	return domain.E(domain.KindClosureNotSatisfied, "deliverable %s: %s", d.DeliverableID, describeMissing(report))
}

func describeMissing(report domain.ClosureReport) string {
	var parts []string
	if n := len(report.MissingIDs); n > 0 {
		parts = append(parts, fmt.Sprintf("%d artifact id(s) missing", n))
	}
	if len(report.MissingRoles) > 0 {
		roles := make([]string, 0, len(report.MissingRoles))
		for _, r := range report.MissingRoles {
			roles = append(roles, string(r))
		}
		parts = append(parts, "missing roles "+strings.Join(roles, ", "))
	}
	if len(report.MissingRequirements) > 0 {
		parts = append(parts, "unsatisfied requirements "+strings.Join(report.MissingRequirements, ", "))
	}
	return strings.Join(parts, "; ")
}

// GetShipment returns a manifest by id.
func (s *ShippingService) GetShipment(ctx context.Context, tenantID string, manifestID uuid.UUID) (domain.ShipmentManifest, error) {
	return s.manifests.FindByID(ctx, tenantID, manifestID)
}

// ListShipments returns a task's manifests, newest first.
func (s *ShippingService) ListShipments(ctx context.Context, tenantID, rootTaskID string) ([]domain.ShipmentManifest, error) {
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return nil, err
	}
	return s.manifests.ListByTask(ctx, tenantID, rootTaskID)
}
