package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/depot"
	"github.com/zjrosen/depotgate/internal/domain"
)

// Handlers provides MCP tool handlers over the depot services.
type Handlers struct {
	tenantID     string
	staging      *depot.StagingService
	deliverables *depot.DeliverableService
	shipping     *depot.ShippingService
	receipts     *depot.ReceiptLog
}

// HandlersConfig wires the depot services into the tool façade.
type HandlersConfig struct {
	TenantID     string
	Staging      *depot.StagingService
	Deliverables *depot.DeliverableService
	Shipping     *depot.ShippingService
	Receipts     *depot.ReceiptLog
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{
		tenantID:     cfg.TenantID,
		staging:      cfg.Staging,
		deliverables: cfg.Deliverables,
		shipping:     cfg.Shipping,
		receipts:     cfg.Receipts,
	}
}

// RegisterAll registers all depot tools with the MCP server.
func (h *Handlers) RegisterAll(server ToolRegistrar) {
	server.RegisterTool(ToolStage, h.HandleStage)
	server.RegisterTool(ToolListArtifacts, h.HandleListArtifacts)
	server.RegisterTool(ToolGetArtifact, h.HandleGetArtifact)
	server.RegisterTool(ToolDeclareDeliverable, h.HandleDeclareDeliverable)
	server.RegisterTool(ToolCheckClosure, h.HandleCheckClosure)
	server.RegisterTool(ToolMarkRequirement, h.HandleMarkRequirement)
	server.RegisterTool(ToolShip, h.HandleShip)
	server.RegisterTool(ToolListShipments, h.HandleListShipments)
	server.RegisterTool(ToolPurge, h.HandlePurge)
	server.RegisterTool(ToolListReceipts, h.HandleListReceipts)
}

// depotError renders a depot failure as a tool error result. The stable
// kind leads the text so agents can branch on it.
func depotError(err error) *ToolCallResult {
	kind := domain.KindOf(err)
	detail := "internal error"
	var de *domain.Error
	if errors.As(err, &de) {
		detail = de.Detail
	}
	return ErrorResult(fmt.Sprintf("%s: %s", kind, detail))
}

// stageArgs are arguments for depot_stage.
type stageArgs struct {
	RootTaskID          string `json:"root_task_id"`
	Content             string `json:"content"`
	MimeType            string `json:"mime_type,omitempty"`
	Role                string `json:"role,omitempty"`
	ProducedByReceiptID string `json:"produced_by_receipt_id,omitempty"`
}

// HandleStage handles the depot_stage tool call.
func (h *Handlers) HandleStage(ctx context.Context, rawArgs json.RawMessage) (*ToolCallResult, error) {
	var args stageArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if args.RootTaskID == "" {
		return nil, fmt.Errorf("root_task_id is required")
	}
	if args.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	role := domain.ArtifactRole(args.Role)
	if role == "" {
		role = domain.RoleSupporting
	}
	mimeType := args.MimeType
	if mimeType == "" {
		mimeType = "text/plain"
	}

	var causedBy *uuid.UUID
	if args.ProducedByReceiptID != "" {
		id, err := uuid.Parse(args.ProducedByReceiptID)
		if err != nil {
			return nil, fmt.Errorf("invalid produced_by_receipt_id: %w", err)
		}
		causedBy = &id
	}

	pointer, err := h.staging.Stage(ctx, depot.StageParams{
		TenantID:            h.tenantID,
		RootTaskID:          args.RootTaskID,
		Role:                role,
		MimeType:            mimeType,
		ProducedByReceiptID: causedBy,
		Content:             strings.NewReader(args.Content),
	})
	if err != nil {
		return depotError(err), nil
	}

	return StructuredResult(
		fmt.Sprintf("Staged %s artifact %s (%d bytes)", pointer.Role, pointer.ArtifactID, pointer.SizeBytes),
		pointer,
	), nil
}

// listArtifactsArgs are arguments for depot_list_artifacts.
type listArtifactsArgs struct {
	RootTaskID string `json:"root_task_id"`
	Role       string `json:"role,omitempty"`
}

// HandleListArtifacts handles the depot_list_artifacts tool call.
func (h *Handlers) HandleListArtifacts(ctx context.Context, rawArgs json.RawMessage) (*ToolCallResult, error) {
	var args listArtifactsArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.RootTaskID == "" {
		return nil, fmt.Errorf("root_task_id is required")
	}

	filter := domain.ArtifactFilter{}
	if args.Role != "" {
		role := domain.ArtifactRole(args.Role)
		filter.Role = &role
	}

	artifacts, err := h.staging.List(ctx, h.tenantID, args.RootTaskID, filter)
	if err != nil {
		return depotError(err), nil
	}

	return StructuredResult(
		fmt.Sprintf("Found %d live artifacts for task %s", len(artifacts), args.RootTaskID),
		map[string]any{"artifacts": artifacts, "total": len(artifacts)},
	), nil
}

// getArtifactArgs are arguments for depot_get_artifact.
type getArtifactArgs struct {
	ArtifactID     string `json:"artifact_id"`
	IncludeContent string `json:"include_content,omitempty"`
}

// HandleGetArtifact handles the depot_get_artifact tool call.
func (h *Handlers) HandleGetArtifact(ctx context.Context, rawArgs json.RawMessage) (*ToolCallResult, error) {
	var args getArtifactArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.ArtifactID == "" {
		return nil, fmt.Errorf("artifact_id is required")
	}
	id, err := uuid.Parse(args.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact_id: %w", err)
	}

	response := map[string]any{}

	if args.IncludeContent == "true" {
		content, pointer, err := h.staging.RetrieveContent(ctx, h.tenantID, id)
		if err != nil {
			return depotError(err), nil
		}
		defer func() { _ = content.Close() }()
		data, err := io.ReadAll(content)
		if err != nil {
			return depotError(domain.WrapE(domain.KindStorageFailure, err, "reading artifact %s", id)), nil
		}
		response["artifact"] = pointer
		response["content"] = string(data)
		return StructuredResult(
			fmt.Sprintf("Artifact %s (%d bytes)", id, pointer.SizeBytes),
			response,
		), nil
	}

	pointer, err := h.staging.GetArtifact(ctx, h.tenantID, id)
	if err != nil {
		return depotError(err), nil
	}
	response["artifact"] = pointer

	return StructuredResult(fmt.Sprintf("Artifact %s (%d bytes)", id, pointer.SizeBytes), response), nil
}

// declareArgs are arguments for depot_declare_deliverable.
type declareArgs struct {
	RootTaskID          string   `json:"root_task_id"`
	ShippingDestination string   `json:"shipping_destination"`
	ArtifactIDs         []string `json:"artifact_ids,omitempty"`
	ArtifactRoles       []string `json:"artifact_roles,omitempty"`
	Requirements        []string `json:"requirements,omitempty"`
}

// HandleDeclareDeliverable handles the depot_declare_deliverable tool call.
func (h *Handlers) HandleDeclareDeliverable(ctx context.Context, rawArgs json.RawMessage) (*ToolCallResult, error) {
	var args declareArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.RootTaskID == "" {
		return nil, fmt.Errorf("root_task_id is required")
	}
	if args.ShippingDestination == "" {
		return nil, fmt.Errorf("shipping_destination is required")
	}

	spec := domain.DeliverableSpec{
		ShippingDestination: args.ShippingDestination,
		Requirements:        args.Requirements,
	}
	for _, raw := range args.ArtifactIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid artifact id %q: %w", raw, err)
		}
		spec.ArtifactIDs = append(spec.ArtifactIDs, id)
	}
	for _, role := range args.ArtifactRoles {
		spec.ArtifactRoles = append(spec.ArtifactRoles, domain.ArtifactRole(role))
	}

	d, err := h.deliverables.Declare(ctx, h.tenantID, args.RootTaskID, spec)
	if err != nil {
		return depotError(err), nil
	}

	return StructuredResult(
		fmt.Sprintf("Declared deliverable %s shipping to %s", d.DeliverableID, spec.ShippingDestination),
		map[string]any{"deliverable_id": d.DeliverableID.String(), "status": string(d.Status)},
	), nil
}

// closureArgs are arguments for depot_check_closure.
type closureArgs struct {
	DeliverableID string `json:"deliverable_id"`
}

// HandleCheckClosure handles the depot_check_closure tool call.
func (h *Handlers) HandleCheckClosure(ctx context.Context, rawArgs json.RawMessage) (*ToolCallResult, error) {
	var args closureArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.DeliverableID == "" {
		return nil, fmt.Errorf("deliverable_id is required")
	}
	id, err := uuid.Parse(args.DeliverableID)
	if err != nil {
		return nil, fmt.Errorf("invalid deliverable_id: %w", err)
	}

	report, err := h.deliverables.CheckClosure(ctx, h.tenantID, id)
	if err != nil {
		return depotError(err), nil
	}

	text := "Closure satisfied"
	if !report.Satisfied {
		text = fmt.Sprintf("Closure not satisfied: %d missing ids, %d missing roles, %d unmet requirements",
			len(report.MissingIDs), len(report.MissingRoles), len(report.MissingRequirements))
	}
	return StructuredResult(text, report), nil
}

// markArgs are arguments for depot_mark_requirement.
type markArgs struct {
	DeliverableID string `json:"deliverable_id"`
	Name          string `json:"name"`
}

// HandleMarkRequirement handles the depot_mark_requirement tool call.
func (h *Handlers) HandleMarkRequirement(ctx context.Context, rawArgs json.RawMessage) (*ToolCallResult, error) {
	var args markArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.DeliverableID == "" {
		return nil, fmt.Errorf("deliverable_id is required")
	}
	if args.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	id, err := uuid.Parse(args.DeliverableID)
	if err != nil {
		return nil, fmt.Errorf("invalid deliverable_id: %w", err)
	}

	if err := h.deliverables.MarkRequirement(ctx, h.tenantID, id, args.Name); err != nil {
		return depotError(err), nil
	}

	return StructuredResult(
		fmt.Sprintf("Requirement %q marked for deliverable %s", args.Name, id),
		map[string]any{"marked": true},
	), nil
}

// shipArgs are arguments for depot_ship.
type shipArgs struct {
	RootTaskID    string `json:"root_task_id"`
	DeliverableID string `json:"deliverable_id"`
}

// HandleShip handles the depot_ship tool call.
func (h *Handlers) HandleShip(ctx context.Context, rawArgs json.RawMessage) (*ToolCallResult, error) {
	var args shipArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.RootTaskID == "" {
		return nil, fmt.Errorf("root_task_id is required")
	}
	if args.DeliverableID == "" {
		return nil, fmt.Errorf("deliverable_id is required")
	}
	id, err := uuid.Parse(args.DeliverableID)
	if err != nil {
		return nil, fmt.Errorf("invalid deliverable_id: %w", err)
	}

	manifest, err := h.shipping.Ship(ctx, h.tenantID, args.RootTaskID, id)
	if err != nil {
		return depotError(err), nil
	}

	return StructuredResult(
		fmt.Sprintf("Shipped %d artifacts to %s (manifest %s)",
			len(manifest.Pointers), manifest.Destination, manifest.ManifestID),
		map[string]any{
			"manifest_id":      manifest.ManifestID.String(),
			"destination":      manifest.Destination,
			"artifact_count":   len(manifest.Pointers),
			"destination_refs": manifest.DestinationRefs,
		},
	), nil
}

// listShipmentsArgs are arguments for depot_list_shipments.
type listShipmentsArgs struct {
	RootTaskID string `json:"root_task_id"`
}

// HandleListShipments handles the depot_list_shipments tool call.
func (h *Handlers) HandleListShipments(ctx context.Context, rawArgs json.RawMessage) (*ToolCallResult, error) {
	var args listShipmentsArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.RootTaskID == "" {
		return nil, fmt.Errorf("root_task_id is required")
	}

	shipments, err := h.shipping.ListShipments(ctx, h.tenantID, args.RootTaskID)
	if err != nil {
		return depotError(err), nil
	}

	return StructuredResult(
		fmt.Sprintf("Found %d shipments for task %s", len(shipments), args.RootTaskID),
		map[string]any{"shipments": shipments, "total": len(shipments)},
	), nil
}

// purgeArgs are arguments for depot_purge.
type purgeArgs struct {
	RootTaskID  string   `json:"root_task_id"`
	Policy      string   `json:"policy"`
	ArtifactIDs []string `json:"artifact_ids,omitempty"`
}

// HandlePurge handles the depot_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, rawArgs json.RawMessage) (*ToolCallResult, error) {
	var args purgeArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.RootTaskID == "" {
		return nil, fmt.Errorf("root_task_id is required")
	}
	if args.Policy == "" {
		return nil, fmt.Errorf("policy is required")
	}

	var ids []uuid.UUID
	for _, raw := range args.ArtifactIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid artifact id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}

	result, err := h.staging.Purge(ctx, h.tenantID, args.RootTaskID, ids, domain.PurgePolicy(args.Policy))
	if err != nil {
		return depotError(err), nil
	}

	purgedIDs := make([]string, 0, len(result.PurgedIDs))
	for _, id := range result.PurgedIDs {
		purgedIDs = append(purgedIDs, id.String())
	}
	return StructuredResult(
		fmt.Sprintf("Purged %d artifacts under policy %s", len(purgedIDs), result.Policy),
		map[string]any{"purged_ids": purgedIDs, "count": len(purgedIDs)},
	), nil
}

// listReceiptsArgs are arguments for depot_list_receipts.
type listReceiptsArgs struct {
	RootTaskID string `json:"root_task_id"`
	Kind       string `json:"kind,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// HandleListReceipts handles the depot_list_receipts tool call.
func (h *Handlers) HandleListReceipts(ctx context.Context, rawArgs json.RawMessage) (*ToolCallResult, error) {
	var args listReceiptsArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.RootTaskID == "" {
		return nil, fmt.Errorf("root_task_id is required")
	}
	if args.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative")
	}

	filter := domain.ReceiptFilter{Limit: args.Limit}
	if args.Kind != "" {
		kind := domain.ReceiptKind(args.Kind)
		filter.Kind = &kind
	}

	receipts, err := h.receipts.List(ctx, h.tenantID, args.RootTaskID, filter)
	if err != nil {
		return depotError(err), nil
	}

	return StructuredResult(
		fmt.Sprintf("Found %d receipts for task %s", len(receipts), args.RootTaskID),
		map[string]any{"receipts": receipts, "total": len(receipts)},
	), nil
}
