package tracing

// Span attribute keys for depot tracing.
// These constants define the semantic conventions for span attributes
// across the staging, shipping, and receipt subsystems.
const (
	// Tenant and task attributes
	AttrTenantID = "tenant.id"
	AttrTaskID   = "task.id"

	// Artifact attributes
	AttrArtifactID   = "artifact.id"
	AttrArtifactRole = "artifact.role"
	AttrSizeBytes    = "artifact.size_bytes"
	AttrMimeType     = "artifact.mime_type"

	// Deliverable and shipment attributes
	AttrDeliverableID = "deliverable.id"
	AttrManifestID    = "manifest.id"
	AttrDestination   = "shipment.destination"
	AttrArtifactCount = "shipment.artifact_count"
	AttrSinkScheme    = "sink.scheme"

	// Receipt attributes
	AttrReceiptID   = "receipt.id"
	AttrReceiptKind = "receipt.kind"

	// HTTP attributes
	AttrHTTPMethod = "http.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.status_code"

	// MCP attributes
	AttrMCPToolName = "mcp.tool.name"

	// Error attributes
	AttrErrorKind    = "error.kind"
	AttrErrorMessage = "error.message"
)

// Span name prefixes for consistent naming.
const (
	SpanPrefixHTTP  = "http."
	SpanPrefixStage = "depot.stage."
	SpanPrefixShip  = "depot.ship."
	SpanPrefixMCP   = "mcp.tool."
)

// Event names for span events.
const (
	EventArtifactStored   = "artifact.stored"
	EventClosureEvaluated = "closure.evaluated"
	EventSinkTransfer     = "sink.transfer"
	EventManifestCommit   = "manifest.commit"
	EventReceiptEmitted   = "receipt.emitted"
	EventErrorOccurred    = "error.occurred"
)
