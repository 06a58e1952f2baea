package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
)

// ArtifactModel represents a row of the artifacts table.
// Time values are stored as UnixNano so ordering survives the round trip.
type ArtifactModel struct {
	TenantID            string
	ArtifactID          string
	RootTaskID          string
	Location            string
	SizeBytes           int64
	MimeType            string
	ContentHash         string
	Role                string
	ProducedByReceiptID *string // nullable
	CreatedAt           int64   // UnixNano
	PurgedAt            *int64  // UnixNano, nullable
	PurgeAfter          *int64  // UnixNano, nullable
}

func toArtifactModel(p domain.ArtifactPointer) ArtifactModel {
	m := ArtifactModel{
		TenantID:    p.TenantID,
		ArtifactID:  p.ArtifactID.String(),
		RootTaskID:  p.RootTaskID,
		Location:    p.Location,
		SizeBytes:   p.SizeBytes,
		MimeType:    p.MimeType,
		ContentHash: p.ContentHash,
		Role:        string(p.Role),
		CreatedAt:   p.CreatedAt.UnixNano(),
	}
	if p.ProducedByReceiptID != nil {
		id := p.ProducedByReceiptID.String()
		m.ProducedByReceiptID = &id
	}
	if p.PurgedAt != nil {
		at := p.PurgedAt.UnixNano()
		m.PurgedAt = &at
	}
	if p.PurgeAfter != nil {
		at := p.PurgeAfter.UnixNano()
		m.PurgeAfter = &at
	}
	return m
}

func (m ArtifactModel) toDomain() (domain.ArtifactPointer, error) {
	artifactID, err := uuid.Parse(m.ArtifactID)
	if err != nil {
		return domain.ArtifactPointer{}, fmt.Errorf("failed to parse artifact id %q: %w", m.ArtifactID, err)
	}
	p := domain.ArtifactPointer{
		ArtifactID:  artifactID,
		TenantID:    m.TenantID,
		RootTaskID:  m.RootTaskID,
		Location:    m.Location,
		SizeBytes:   m.SizeBytes,
		MimeType:    m.MimeType,
		ContentHash: m.ContentHash,
		Role:        domain.ArtifactRole(m.Role),
		CreatedAt:   time.Unix(0, m.CreatedAt).UTC(),
	}
	if m.ProducedByReceiptID != nil {
		id, err := uuid.Parse(*m.ProducedByReceiptID)
		if err != nil {
			return domain.ArtifactPointer{}, fmt.Errorf("failed to parse produced_by receipt id: %w", err)
		}
		p.ProducedByReceiptID = &id
	}
	if m.PurgedAt != nil {
		at := time.Unix(0, *m.PurgedAt).UTC()
		p.PurgedAt = &at
	}
	if m.PurgeAfter != nil {
		at := time.Unix(0, *m.PurgeAfter).UTC()
		p.PurgeAfter = &at
	}
	return p, nil
}

// DeliverableModel represents a row of the deliverables table.
type DeliverableModel struct {
	TenantID      string
	DeliverableID string
	RootTaskID    string
	SpecJSON      string
	Status        string
	CreatedAt     int64  // UnixNano
	ShippedAt     *int64 // UnixNano, nullable
}

func toDeliverableModel(d domain.Deliverable) (DeliverableModel, error) {
	specJSON, err := json.Marshal(d.Spec)
	if err != nil {
		return DeliverableModel{}, fmt.Errorf("failed to encode deliverable spec: %w", err)
	}
	m := DeliverableModel{
		TenantID:      d.TenantID,
		DeliverableID: d.DeliverableID.String(),
		RootTaskID:    d.RootTaskID,
		SpecJSON:      string(specJSON),
		Status:        string(d.Status),
		CreatedAt:     d.CreatedAt.UnixNano(),
	}
	if d.ShippedAt != nil {
		at := d.ShippedAt.UnixNano()
		m.ShippedAt = &at
	}
	return m, nil
}

func (m DeliverableModel) toDomain() (domain.Deliverable, error) {
	deliverableID, err := uuid.Parse(m.DeliverableID)
	if err != nil {
		return domain.Deliverable{}, fmt.Errorf("failed to parse deliverable id %q: %w", m.DeliverableID, err)
	}
	var spec domain.DeliverableSpec
	if err := json.Unmarshal([]byte(m.SpecJSON), &spec); err != nil {
		return domain.Deliverable{}, fmt.Errorf("failed to decode deliverable spec: %w", err)
	}
	d := domain.Deliverable{
		DeliverableID: deliverableID,
		TenantID:      m.TenantID,
		RootTaskID:    m.RootTaskID,
		Spec:          spec,
		Status:        domain.DeliverableStatus(m.Status),
		CreatedAt:     time.Unix(0, m.CreatedAt).UTC(),
	}
	if m.ShippedAt != nil {
		at := time.Unix(0, *m.ShippedAt).UTC()
		d.ShippedAt = &at
	}
	return d, nil
}

// ManifestModel represents a row of the manifests table. Shipped
// pointers are frozen as JSON; they never track later pointer changes.
type ManifestModel struct {
	TenantID            string
	ManifestID          string
	DeliverableID       string
	RootTaskID          string
	PointersJSON        string
	Destination         string
	DestinationRefsJSON *string // nullable
	ShippedAt           int64   // UnixNano
}

func toManifestModel(m domain.ShipmentManifest) (ManifestModel, error) {
	pointersJSON, err := json.Marshal(m.Pointers)
	if err != nil {
		return ManifestModel{}, fmt.Errorf("failed to encode manifest pointers: %w", err)
	}
	model := ManifestModel{
		TenantID:      m.TenantID,
		ManifestID:    m.ManifestID.String(),
		DeliverableID: m.DeliverableID.String(),
		RootTaskID:    m.RootTaskID,
		PointersJSON:  string(pointersJSON),
		Destination:   m.Destination,
		ShippedAt:     m.ShippedAt.UnixNano(),
	}
	if len(m.DestinationRefs) > 0 {
		refsJSON, err := json.Marshal(m.DestinationRefs)
		if err != nil {
			return ManifestModel{}, fmt.Errorf("failed to encode destination refs: %w", err)
		}
		refs := string(refsJSON)
		model.DestinationRefsJSON = &refs
	}
	return model, nil
}

func (m ManifestModel) toDomain() (domain.ShipmentManifest, error) {
	manifestID, err := uuid.Parse(m.ManifestID)
	if err != nil {
		return domain.ShipmentManifest{}, fmt.Errorf("failed to parse manifest id %q: %w", m.ManifestID, err)
	}
	deliverableID, err := uuid.Parse(m.DeliverableID)
	if err != nil {
		return domain.ShipmentManifest{}, fmt.Errorf("failed to parse deliverable id %q: %w", m.DeliverableID, err)
	}
	var pointers []domain.ArtifactPointer
	if err := json.Unmarshal([]byte(m.PointersJSON), &pointers); err != nil {
		return domain.ShipmentManifest{}, fmt.Errorf("failed to decode manifest pointers: %w", err)
	}
	manifest := domain.ShipmentManifest{
		ManifestID:    manifestID,
		DeliverableID: deliverableID,
		TenantID:      m.TenantID,
		RootTaskID:    m.RootTaskID,
		Pointers:      pointers,
		Destination:   m.Destination,
		ShippedAt:     time.Unix(0, m.ShippedAt).UTC(),
	}
	if m.DestinationRefsJSON != nil {
		var refs map[string]string
		if err := json.Unmarshal([]byte(*m.DestinationRefsJSON), &refs); err != nil {
			return domain.ShipmentManifest{}, fmt.Errorf("failed to decode destination refs: %w", err)
		}
		manifest.DestinationRefs = refs
	}
	return manifest, nil
}

// ReceiptModel represents a row of the receipts table.
type ReceiptModel struct {
	TenantID    string
	ReceiptID   string
	RootTaskID  string
	Kind        string
	PayloadJSON string
	CausedBy    *string // nullable
	EmittedAt   int64   // UnixNano
}

func toReceiptModel(r domain.Receipt) (ReceiptModel, error) {
	payload := r.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return ReceiptModel{}, fmt.Errorf("failed to encode receipt payload: %w", err)
	}
	m := ReceiptModel{
		TenantID:    r.TenantID,
		ReceiptID:   r.ReceiptID.String(),
		RootTaskID:  r.RootTaskID,
		Kind:        string(r.Kind),
		PayloadJSON: string(payloadJSON),
		EmittedAt:   r.EmittedAt.UnixNano(),
	}
	if r.CausedBy != nil {
		id := r.CausedBy.String()
		m.CausedBy = &id
	}
	return m, nil
}

func (m ReceiptModel) toDomain() (domain.Receipt, error) {
	receiptID, err := uuid.Parse(m.ReceiptID)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("failed to parse receipt id %q: %w", m.ReceiptID, err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(m.PayloadJSON), &payload); err != nil {
		return domain.Receipt{}, fmt.Errorf("failed to decode receipt payload: %w", err)
	}
	r := domain.Receipt{
		ReceiptID:  receiptID,
		TenantID:   m.TenantID,
		RootTaskID: m.RootTaskID,
		Kind:       domain.ReceiptKind(m.Kind),
		Payload:    payload,
		EmittedAt:  time.Unix(0, m.EmittedAt).UTC(),
	}
	if m.CausedBy != nil {
		id, err := uuid.Parse(*m.CausedBy)
		if err != nil {
			return domain.Receipt{}, fmt.Errorf("failed to parse caused_by receipt id: %w", err)
		}
		r.CausedBy = &id
	}
	return r, nil
}
