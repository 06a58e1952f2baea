package mcp

// DepotTools returns the MCP tool definitions for the depot.
func DepotTools() []Tool {
	return []Tool{
		ToolStage,
		ToolListArtifacts,
		ToolGetArtifact,
		ToolDeclareDeliverable,
		ToolCheckClosure,
		ToolMarkRequirement,
		ToolShip,
		ToolListShipments,
		ToolPurge,
		ToolListReceipts,
	}
}

var pointerSchema = &PropertySchema{
	Type: "object",
	Properties: map[string]*PropertySchema{
		"artifact_id":   {Type: "string", Description: "Artifact ID"},
		"root_task_id":  {Type: "string", Description: "Task the artifact belongs to"},
		"location":      {Type: "string", Description: "Storage location URI"},
		"size_bytes":    {Type: "number", Description: "Payload size in bytes"},
		"content_hash":  {Type: "string", Description: "SHA-256 of the payload"},
		"mime_type":     {Type: "string", Description: "MIME type"},
		"artifact_role": {Type: "string", Description: "Artifact role"},
		"created_at":    {Type: "string", Description: "Timestamp"},
	},
}

// ToolStage deposits content as a new artifact under a task.
var ToolStage = Tool{
	Name:        "depot_stage",
	Description: "Stage content as a new artifact under a task. Returns the artifact pointer (id, location, size, hash). Use role 'final_output' for the task's final result.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"root_task_id": {
				Type:        "string",
				Description: "Task ID to stage under",
			},
			"content": {
				Type:        "string",
				Description: "Artifact content (text)",
			},
			"mime_type": {
				Type:        "string",
				Description: "MIME type of the content. Defaults to 'text/plain'.",
			},
			"role": {
				Type:        "string",
				Description: "Artifact role: 'final_output', 'supporting' (default), 'plan', 'log', or 'other'",
				Enum:        []string{"final_output", "supporting", "plan", "log", "other"},
			},
			"produced_by_receipt_id": {
				Type:        "string",
				Description: "Receipt ID that caused this artifact, for causal chaining (optional)",
			},
		},
		Required: []string{"root_task_id", "content"},
	},
	OutputSchema: &OutputSchema{
		Type:       "object",
		Properties: pointerSchema.Properties,
		Required:   []string{"artifact_id", "location", "size_bytes", "content_hash"},
	},
}

// ToolListArtifacts lists a task's live artifacts.
var ToolListArtifacts = Tool{
	Name:        "depot_list_artifacts",
	Description: "List a task's live (non-purged) artifacts, newest first. Optionally filter by role.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"root_task_id": {
				Type:        "string",
				Description: "Task ID to list",
			},
			"role": {
				Type:        "string",
				Description: "Only return artifacts with this role (optional)",
				Enum:        []string{"final_output", "supporting", "plan", "log", "other"},
			},
		},
		Required: []string{"root_task_id"},
	},
	OutputSchema: &OutputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"artifacts": {Type: "array", Description: "Live artifact pointers", Items: pointerSchema},
			"total":     {Type: "number", Description: "Number of live artifacts"},
		},
		Required: []string{"artifacts", "total"},
	},
}

// ToolGetArtifact fetches one artifact pointer and optionally its content.
var ToolGetArtifact = Tool{
	Name:        "depot_get_artifact",
	Description: "Get an artifact pointer by ID. Set include_content to also return the payload as text.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"artifact_id": {
				Type:        "string",
				Description: "Artifact ID",
			},
			"include_content": {
				Type:        "string",
				Description: "Set to 'true' to include the payload text in the result",
			},
		},
		Required: []string{"artifact_id"},
	},
	OutputSchema: &OutputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"artifact": pointerSchema,
			"content":  {Type: "string", Description: "Payload text when include_content is set"},
		},
		Required: []string{"artifact"},
	},
}

// ToolDeclareDeliverable declares a deliverable contract.
var ToolDeclareDeliverable = Tool{
	Name:        "depot_declare_deliverable",
	Description: "Declare a deliverable: what must be staged before shipping (artifact ids, roles, named requirements) and where it ships to. An empty closure spec ships the full live set on the first attempt.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"root_task_id": {
				Type:        "string",
				Description: "Task ID the deliverable belongs to",
			},
			"shipping_destination": {
				Type:        "string",
				Description: "Destination URI, e.g. 'fs://reports/run-1' or 'https://example.com/intake'",
			},
			"artifact_ids": {
				Type:        "array",
				Description: "Specific artifact IDs that must be live at ship time (optional)",
				Items:       &PropertySchema{Type: "string"},
			},
			"artifact_roles": {
				Type:        "array",
				Description: "Roles that must each have at least one live artifact (optional)",
				Items:       &PropertySchema{Type: "string"},
			},
			"requirements": {
				Type:        "array",
				Description: "Named requirements that must be marked before shipping (optional)",
				Items:       &PropertySchema{Type: "string"},
			},
		},
		Required: []string{"root_task_id", "shipping_destination"},
	},
	OutputSchema: &OutputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"deliverable_id": {Type: "string", Description: "Created deliverable ID"},
			"status":         {Type: "string", Description: "Always 'declared' on creation"},
		},
		Required: []string{"deliverable_id", "status"},
	},
}

// ToolCheckClosure evaluates a deliverable's closure.
var ToolCheckClosure = Tool{
	Name:        "depot_check_closure",
	Description: "Check whether a deliverable's closure requirements are satisfied by the current live artifact set. Read-only: never changes state. A satisfied report is advisory until ship.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"deliverable_id": {
				Type:        "string",
				Description: "Deliverable ID",
			},
		},
		Required: []string{"deliverable_id"},
	},
	OutputSchema: &OutputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"satisfied":            {Type: "boolean", Description: "Whether every condition holds"},
			"missing_ids":          {Type: "array", Description: "Required artifact IDs with no live pointer"},
			"missing_roles":        {Type: "array", Description: "Required roles with no live artifact"},
			"missing_requirements": {Type: "array", Description: "Named requirements not yet marked"},
			"matched_pointers":     {Type: "array", Description: "Live pointers that satisfy the spec", Items: pointerSchema},
		},
		Required: []string{"satisfied"},
	},
}

// ToolMarkRequirement marks a declared named requirement as satisfied.
var ToolMarkRequirement = Tool{
	Name:        "depot_mark_requirement",
	Description: "Mark a deliverable's named requirement as satisfied. The name must appear in the deliverable's spec. Marking is idempotent.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"deliverable_id": {
				Type:        "string",
				Description: "Deliverable ID",
			},
			"name": {
				Type:        "string",
				Description: "Requirement name to mark",
			},
		},
		Required: []string{"deliverable_id", "name"},
	},
	OutputSchema: &OutputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"marked": {Type: "boolean", Description: "Whether the requirement is now marked"},
		},
		Required: []string{"marked"},
	},
}

// ToolShip ships a deliverable.
var ToolShip = Tool{
	Name:        "depot_ship",
	Description: "Ship a deliverable: verify closure, transfer the matched artifacts to the destination, and commit the shipment manifest. Unsatisfied closure rejects the deliverable permanently; a sink transport failure leaves it declared and retryable.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"root_task_id": {
				Type:        "string",
				Description: "Task ID the deliverable was declared under",
			},
			"deliverable_id": {
				Type:        "string",
				Description: "Deliverable ID to ship",
			},
		},
		Required: []string{"root_task_id", "deliverable_id"},
	},
	OutputSchema: &OutputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"manifest_id":      {Type: "string", Description: "Durable manifest ID"},
			"destination":      {Type: "string", Description: "Destination shipped to"},
			"artifact_count":   {Type: "number", Description: "Number of artifacts shipped"},
			"destination_refs": {Type: "object", Description: "Artifact ID to externalized reference"},
		},
		Required: []string{"manifest_id", "destination", "artifact_count"},
	},
}

// ToolListShipments lists a task's shipment manifests.
var ToolListShipments = Tool{
	Name:        "depot_list_shipments",
	Description: "List a task's shipment manifests, newest first.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"root_task_id": {
				Type:        "string",
				Description: "Task ID to list",
			},
		},
		Required: []string{"root_task_id"},
	},
	OutputSchema: &OutputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"shipments": {Type: "array", Description: "Shipment manifests"},
			"total":     {Type: "number", Description: "Number of shipments"},
		},
		Required: []string{"shipments", "total"},
	},
}

// ToolPurge retires a task's artifacts.
var ToolPurge = Tool{
	Name:        "depot_purge",
	Description: "Purge a task's artifacts. Policy 'immediate' removes artifacts from the live set and deletes the stored bytes; the retain policies remove them from the live set but keep bytes for the window; 'manual' only records purge intent in the receipt log and leaves the artifacts live.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"root_task_id": {
				Type:        "string",
				Description: "Task ID to purge",
			},
			"policy": {
				Type:        "string",
				Description: "Purge policy",
				Enum:        []string{"immediate", "retain_24h", "retain_7d", "manual"},
			},
			"artifact_ids": {
				Type:        "array",
				Description: "Specific artifact IDs to purge; omit to purge every live artifact of the task",
				Items:       &PropertySchema{Type: "string"},
			},
		},
		Required: []string{"root_task_id", "policy"},
	},
	OutputSchema: &OutputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"purged_ids": {Type: "array", Description: "Artifact IDs actually retired"},
			"count":      {Type: "number", Description: "Number of artifacts retired"},
		},
		Required: []string{"purged_ids", "count"},
	},
}

// ToolListReceipts lists a task's receipts.
var ToolListReceipts = Tool{
	Name:        "depot_list_receipts",
	Description: "List a task's receipts in emission order: artifact_staged, shipment_complete, shipment_rejected, and purged events. The receipt trail is the audit log of the task.",
	InputSchema: &InputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"root_task_id": {
				Type:        "string",
				Description: "Task ID to list",
			},
			"kind": {
				Type:        "string",
				Description: "Only return receipts of this kind (optional)",
				Enum:        []string{"artifact_staged", "shipment_complete", "shipment_rejected", "purged"},
			},
			"limit": {
				Type:        "number",
				Description: "Maximum number of receipts to return (optional)",
			},
		},
		Required: []string{"root_task_id"},
	},
	OutputSchema: &OutputSchema{
		Type: "object",
		Properties: map[string]*PropertySchema{
			"receipts": {Type: "array", Description: "Receipts, oldest first"},
			"total":    {Type: "number", Description: "Number of receipts returned"},
		},
		Required: []string{"receipts", "total"},
	},
}
