package depot

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/log"
	"github.com/zjrosen/depotgate/internal/sanitize"
	"github.com/zjrosen/depotgate/internal/sink"
)

// DeliverableService declares deliverable contracts and evaluates
// closure against the live artifact set.
type DeliverableService struct {
	deliverables domain.DeliverableRepository
	artifacts    domain.ArtifactRepository
	marks        domain.RequirementMarkRepository
	sinks        *sink.Selector
	now          func() time.Time
}

// NewDeliverableService wires the deliverable service. The sink
// selector validates destinations at declaration time.
func NewDeliverableService(deliverables domain.DeliverableRepository, artifacts domain.ArtifactRepository, marks domain.RequirementMarkRepository, sinks *sink.Selector) *DeliverableService {
	return &DeliverableService{
		deliverables: deliverables,
		artifacts:    artifacts,
		marks:        marks,
		sinks:        sinks,
		now:          time.Now,
	}
}

// Declare registers a new deliverable in declared status. A trivial
// spec (no ids, roles, or requirements) is accepted but logged, since
// it ships on the first attempt regardless of what was staged.
func (s *DeliverableService) Declare(ctx context.Context, tenantID, rootTaskID string, spec domain.DeliverableSpec) (domain.Deliverable, error) {
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return domain.Deliverable{}, err
	}
	if err := s.validateSpec(spec); err != nil {
		return domain.Deliverable{}, err
	}

	d := domain.Deliverable{
		DeliverableID: uuid.New(),
		TenantID:      tenantID,
		RootTaskID:    rootTaskID,
		Spec:          spec,
		Status:        domain.StatusDeclared,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.deliverables.Insert(ctx, d); err != nil {
		return domain.Deliverable{}, domain.WrapE(domain.KindStorageFailure, err, "registering deliverable")
	}

	if spec.Trivial() {
		log.Warn(log.CatShip, "deliverable declared with trivial spec; closure is vacuously satisfied",
			"tenant", tenantID, "task", rootTaskID, "deliverable", d.DeliverableID.String())
	} else {
		log.Info(log.CatShip, "deliverable declared",
			"tenant", tenantID, "task", rootTaskID, "deliverable", d.DeliverableID.String(),
			"destination", spec.ShippingDestination)
	}
	return d, nil
}

func (s *DeliverableService) validateSpec(spec domain.DeliverableSpec) error {
	if spec.ShippingDestination == "" {
		return domain.E(domain.KindInvalidSpec, "shipping_destination is empty")
	}
	// Destinations with no registered sink are caught at declaration,
	// not discovered at ship time.
	if _, err := s.sinks.ForDestination(spec.ShippingDestination); err != nil {
		return err
	}
	for _, role := range spec.ArtifactRoles {
		if !role.Valid() {
			return domain.E(domain.KindInvalidSpec, "unknown artifact role %q in spec", role)
		}
	}
	for _, name := range spec.Requirements {
		if name == "" {
			return domain.E(domain.KindInvalidSpec, "requirement name is empty")
		}
	}
	for _, id := range spec.ArtifactIDs {
		if id == uuid.Nil {
			return domain.E(domain.KindInvalidSpec, "artifact id is nil")
		}
	}
	return nil
}

// Get returns a deliverable by id.
func (s *DeliverableService) Get(ctx context.Context, tenantID string, deliverableID uuid.UUID) (domain.Deliverable, error) {
	return s.deliverables.FindByID(ctx, tenantID, deliverableID)
}

// List returns a task's deliverables, optionally filtered by status.
func (s *DeliverableService) List(ctx context.Context, tenantID, rootTaskID string, status *domain.DeliverableStatus) ([]domain.Deliverable, error) {
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return nil, err
	}
	return s.deliverables.ListByTask(ctx, tenantID, rootTaskID, status)
}

// MarkRequirement records a declared named requirement as satisfied.
// Marking is idempotent; marking a name the spec never declared fails.
func (s *DeliverableService) MarkRequirement(ctx context.Context, tenantID string, deliverableID uuid.UUID, name string) error {
	d, err := s.deliverables.FindByID(ctx, tenantID, deliverableID)
	if err != nil {
		return err
	}
	declared := false
	for _, req := range d.Spec.Requirements {
		if req == name {
			declared = true
			break
		}
	}
	if !declared {
		return domain.E(domain.KindNotFound, "requirement %q is not declared by deliverable %s", name, deliverableID)
	}
	return s.marks.Mark(ctx, tenantID, deliverableID, name, s.now().UTC())
}

// CheckClosure evaluates the deliverable's spec against the current
// live artifact set. It is read-only: checking never changes state, and
// a satisfied report is advisory since a purge can invalidate it before
// a later ship.
func (s *DeliverableService) CheckClosure(ctx context.Context, tenantID string, deliverableID uuid.UUID) (domain.ClosureReport, error) {
	d, err := s.deliverables.FindByID(ctx, tenantID, deliverableID)
	if err != nil {
		return domain.ClosureReport{}, err
	}
	return s.evaluate(ctx, d)
}

func (s *DeliverableService) evaluate(ctx context.Context, d domain.Deliverable) (domain.ClosureReport, error) {
	live, err := s.artifacts.ListLive(ctx, d.TenantID, d.RootTaskID, domain.ArtifactFilter{})
	if err != nil {
		return domain.ClosureReport{}, err
	}
	marked, err := s.marks.Marked(ctx, d.TenantID, d.DeliverableID)
	if err != nil {
		return domain.ClosureReport{}, err
	}
	return evaluateClosure(d.Spec, live, marked), nil
}

// evaluateClosure matches a spec against live pointers and requirement
// marks. Matched pointers are the union of the id matches and, per
// required role, the newest live pointer carrying that role.
func evaluateClosure(spec domain.DeliverableSpec, live []domain.ArtifactPointer, marked map[string]bool) domain.ClosureReport {
	report := domain.ClosureReport{}
	byID := make(map[uuid.UUID]domain.ArtifactPointer, len(live))
	for _, p := range live {
		byID[p.ArtifactID] = p
	}

	matched := make(map[uuid.UUID]domain.ArtifactPointer)
	for _, id := range spec.ArtifactIDs {
		p, ok := byID[id]
		if !ok {
			report.MissingIDs = append(report.MissingIDs, id)
			continue
		}
		matched[id] = p
	}

	seenRoles := make(map[domain.ArtifactRole]bool)
	for _, role := range spec.ArtifactRoles {
		if seenRoles[role] {
			continue
		}
		seenRoles[role] = true
		found := false
		// live is newest-first; the first hit is the newest.
		for _, p := range live {
			if p.Role == role {
				matched[p.ArtifactID] = p
				found = true
				break
			}
		}
		if !found {
			report.MissingRoles = append(report.MissingRoles, role)
		}
	}

	for _, name := range spec.Requirements {
		if !marked[name] {
			report.MissingRequirements = append(report.MissingRequirements, name)
		}
	}

	if len(spec.ArtifactIDs) == 0 && len(spec.ArtifactRoles) == 0 {
		// No selection conditions: the whole live set ships.
		report.Matched = append(report.Matched, live...)
	} else {
		// Preserve newest-first order in the matched slice.
		for _, p := range live {
			if _, ok := matched[p.ArtifactID]; ok {
				report.Matched = append(report.Matched, p)
			}
		}
	}
	report.Satisfied = len(report.MissingIDs) == 0 && len(report.MissingRoles) == 0 && len(report.MissingRequirements) == 0
	return report
}
