// Package domain defines the core types of the depot: artifact pointers,
// deliverable contracts, shipment manifests, and receipts, plus the
// repository contracts their stores implement.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactRole tags an artifact within its task namespace.
// The vocabulary is closed; unknown roles are rejected at staging.
type ArtifactRole string

const (
	RoleFinalOutput ArtifactRole = "final_output"
	RoleSupporting  ArtifactRole = "supporting"
	RolePlan        ArtifactRole = "plan"
	RoleLog         ArtifactRole = "log"
	RoleOther       ArtifactRole = "other"
)

// Valid reports whether the role belongs to the closed vocabulary.
func (r ArtifactRole) Valid() bool {
	switch r {
	case RoleFinalOutput, RoleSupporting, RolePlan, RoleLog, RoleOther:
		return true
	}
	return false
}

// DeliverableStatus is the shipping state of a deliverable.
// Transitions are monotonic: declared → shipped or declared → rejected,
// both terminal.
type DeliverableStatus string

const (
	StatusDeclared DeliverableStatus = "declared"
	StatusShipped  DeliverableStatus = "shipped"
	StatusRejected DeliverableStatus = "rejected"
)

// ReceiptKind identifies the event a receipt records.
type ReceiptKind string

const (
	ReceiptArtifactStaged   ReceiptKind = "artifact_staged"
	ReceiptShipmentComplete ReceiptKind = "shipment_complete"
	ReceiptShipmentRejected ReceiptKind = "shipment_rejected"
	ReceiptPurged           ReceiptKind = "purged"
)

// PurgePolicy selects how pointer liveness and stored bytes are retired.
type PurgePolicy string

const (
	PurgeImmediate PurgePolicy = "immediate"
	PurgeRetain24h PurgePolicy = "retain_24h"
	PurgeRetain7d  PurgePolicy = "retain_7d"
	PurgeManual    PurgePolicy = "manual"
)

// Valid reports whether the policy is one of the recognized values.
func (p PurgePolicy) Valid() bool {
	switch p {
	case PurgeImmediate, PurgeRetain24h, PurgeRetain7d, PurgeManual:
		return true
	}
	return false
}

// RetainFor returns the retention window for delayed-deletion policies.
// The second return is false for policies that carry no window.
func (p PurgePolicy) RetainFor() (time.Duration, bool) {
	switch p {
	case PurgeRetain24h:
		return 24 * time.Hour, true
	case PurgeRetain7d:
		return 7 * 24 * time.Hour, true
	}
	return 0, false
}

// ArtifactPointer is the public identity of a stored payload. The bytes
// themselves live in the storage backend; the pointer records where and
// what they are. ContentHash and SizeBytes are immutable once set.
type ArtifactPointer struct {
	ArtifactID          uuid.UUID    `json:"artifact_id"`
	TenantID            string       `json:"tenant_id"`
	RootTaskID          string       `json:"root_task_id"`
	Location            string       `json:"location"`
	SizeBytes           int64        `json:"size_bytes"`
	MimeType            string       `json:"mime_type"`
	ContentHash         string       `json:"content_hash"`
	Role                ArtifactRole `json:"artifact_role"`
	ProducedByReceiptID *uuid.UUID   `json:"produced_by_receipt_id,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	PurgedAt            *time.Time   `json:"purged_at,omitempty"`
	PurgeAfter          *time.Time   `json:"purge_after,omitempty"`
}

// Live reports whether the pointer still participates in closure.
func (p ArtifactPointer) Live() bool {
	return p.PurgedAt == nil
}

// DeliverableSpec declares what must be present before a deliverable may
// ship, and where it ships to. spec_json is the persisted form.
type DeliverableSpec struct {
	ArtifactIDs         []uuid.UUID    `json:"artifact_ids,omitempty"`
	ArtifactRoles       []ArtifactRole `json:"artifact_roles,omitempty"`
	Requirements        []string       `json:"requirements,omitempty"`
	ShippingDestination string         `json:"shipping_destination"`
}

// Trivial reports whether the spec declares no closure conditions at all.
// A trivial spec is allowed; closure is then vacuously satisfied.
func (s DeliverableSpec) Trivial() bool {
	return len(s.ArtifactIDs) == 0 && len(s.ArtifactRoles) == 0 && len(s.Requirements) == 0
}

// Deliverable is a declared outbound unit: a spec plus its shipping state.
type Deliverable struct {
	DeliverableID uuid.UUID         `json:"deliverable_id"`
	TenantID      string            `json:"tenant_id"`
	RootTaskID    string            `json:"root_task_id"`
	Spec          DeliverableSpec   `json:"spec"`
	Status        DeliverableStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	ShippedAt     *time.Time        `json:"shipped_at,omitempty"`
}

// ShipmentManifest is the frozen record of one successful shipment.
// Pointers are captured by value; DestinationRefs maps artifact id to the
// reference the sink externalized it under.
type ShipmentManifest struct {
	ManifestID      uuid.UUID         `json:"manifest_id"`
	DeliverableID   uuid.UUID         `json:"deliverable_id"`
	TenantID        string            `json:"tenant_id"`
	RootTaskID      string            `json:"root_task_id"`
	Pointers        []ArtifactPointer `json:"artifact_pointers"`
	Destination     string            `json:"destination"`
	DestinationRefs map[string]string `json:"destination_refs,omitempty"`
	ShippedAt       time.Time         `json:"shipped_at"`
}

// Receipt is an immutable causal event record. Payload is a structured
// object whose shape depends on Kind.
type Receipt struct {
	ReceiptID  uuid.UUID      `json:"receipt_id"`
	TenantID   string         `json:"tenant_id"`
	RootTaskID string         `json:"root_task_id"`
	Kind       ReceiptKind    `json:"kind"`
	Payload    map[string]any `json:"payload"`
	CausedBy   *uuid.UUID     `json:"caused_by_receipt_id,omitempty"`
	EmittedAt  time.Time      `json:"emitted_at"`
}

// ClosureReport is the result of evaluating a deliverable's spec against
// the live artifact set of its task.
type ClosureReport struct {
	Satisfied           bool              `json:"satisfied"`
	MissingIDs          []uuid.UUID       `json:"missing_ids"`
	MissingRoles        []ArtifactRole    `json:"missing_roles"`
	MissingRequirements []string          `json:"missing_requirements"`
	Matched             []ArtifactPointer `json:"matched_pointers"`
}
