package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
)

// HashOf returns the hex sha256 of content, matching how staging
// records content hashes.
func HashOf(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// PointerOption configures an artifact pointer during fixture setup.
type PointerOption func(*domain.ArtifactPointer)

// NewPointer returns an artifact pointer with sensible defaults for
// the given tenant and task.
func NewPointer(tenantID, rootTaskID string, opts ...PointerOption) domain.ArtifactPointer {
	id := uuid.New()
	content := []byte("hello")
	p := domain.ArtifactPointer{
		ArtifactID:  id,
		TenantID:    tenantID,
		RootTaskID:  rootTaskID,
		Location:    "fs://" + tenantID + "/" + rootTaskID + "/" + id.String(),
		SizeBytes:   int64(len(content)),
		MimeType:    "text/plain",
		ContentHash: HashOf(content),
		Role:        domain.RoleSupporting,
		CreatedAt:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// ArtifactID sets the pointer's artifact id.
func ArtifactID(id uuid.UUID) PointerOption {
	return func(p *domain.ArtifactPointer) { p.ArtifactID = id }
}

// Role sets the pointer's artifact role.
func Role(role domain.ArtifactRole) PointerOption {
	return func(p *domain.ArtifactPointer) { p.Role = role }
}

// Location sets the pointer's storage location.
func Location(location string) PointerOption {
	return func(p *domain.ArtifactPointer) { p.Location = location }
}

// MimeType sets the pointer's mime type.
func MimeType(mime string) PointerOption {
	return func(p *domain.ArtifactPointer) { p.MimeType = mime }
}

// Content sets size and hash from literal content bytes.
func Content(content []byte) PointerOption {
	return func(p *domain.ArtifactPointer) {
		p.SizeBytes = int64(len(content))
		p.ContentHash = HashOf(content)
	}
}

// CreatedAt sets the pointer's creation timestamp.
func CreatedAt(t time.Time) PointerOption {
	return func(p *domain.ArtifactPointer) { p.CreatedAt = t }
}

// Purged marks the pointer as purged at the given time.
func Purged(t time.Time) PointerOption {
	return func(p *domain.ArtifactPointer) { p.PurgedAt = &t }
}

// DeliverableOption configures a deliverable during fixture setup.
type DeliverableOption func(*domain.Deliverable)

// NewDeliverable returns a declared deliverable with an empty spec
// except for a filesystem shipping destination.
func NewDeliverable(tenantID, rootTaskID string, opts ...DeliverableOption) domain.Deliverable {
	d := domain.Deliverable{
		DeliverableID: uuid.New(),
		TenantID:      tenantID,
		RootTaskID:    rootTaskID,
		Spec: domain.DeliverableSpec{
			ShippingDestination: "fs://out/run-1",
		},
		Status:    domain.StatusDeclared,
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// DeliverableID sets the deliverable's id.
func DeliverableID(id uuid.UUID) DeliverableOption {
	return func(d *domain.Deliverable) { d.DeliverableID = id }
}

// RequireIDs adds required artifact ids to the spec.
func RequireIDs(ids ...uuid.UUID) DeliverableOption {
	return func(d *domain.Deliverable) { d.Spec.ArtifactIDs = append(d.Spec.ArtifactIDs, ids...) }
}

// RequireRoles adds required artifact roles to the spec.
func RequireRoles(roles ...domain.ArtifactRole) DeliverableOption {
	return func(d *domain.Deliverable) { d.Spec.ArtifactRoles = append(d.Spec.ArtifactRoles, roles...) }
}

// RequireNamed adds named requirements to the spec.
func RequireNamed(names ...string) DeliverableOption {
	return func(d *domain.Deliverable) { d.Spec.Requirements = append(d.Spec.Requirements, names...) }
}

// Destination sets the spec's shipping destination.
func Destination(dest string) DeliverableOption {
	return func(d *domain.Deliverable) { d.Spec.ShippingDestination = dest }
}

// Status sets the deliverable's status.
func Status(status domain.DeliverableStatus) DeliverableOption {
	return func(d *domain.Deliverable) { d.Status = status }
}
