// Package api provides the HTTP binding of the depot.
// It exposes REST endpoints for staging, deliverables, shipping, and
// purge, plus SSE for the live receipt stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/depotgate/internal/depot"
	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/log"
	"github.com/zjrosen/depotgate/internal/pubsub"
	"github.com/zjrosen/depotgate/internal/tracing"
)

// Handler provides HTTP endpoints over the depot services.
type Handler struct {
	tenantID     string
	staging      *depot.StagingService
	deliverables *depot.DeliverableService
	shipping     *depot.ShippingService
	receipts     *depot.ReceiptLog
}

// HandlerConfig configures the API handler. The instance runs in
// single-tenant mode: every request is scoped to TenantID.
type HandlerConfig struct {
	TenantID     string
	Staging      *depot.StagingService
	Deliverables *depot.DeliverableService
	Shipping     *depot.ShippingService
	Receipts     *depot.ReceiptLog
}

// NewHandler creates a new API handler over the depot services.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		tenantID:     cfg.TenantID,
		staging:      cfg.Staging,
		deliverables: cfg.Deliverables,
		shipping:     cfg.Shipping,
		receipts:     cfg.Receipts,
	}
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Staging
	mux.HandleFunc("POST /tasks/{task}/artifacts", h.Stage)
	mux.HandleFunc("GET /tasks/{task}/artifacts", h.ListArtifacts)
	mux.HandleFunc("GET /artifacts/{id}", h.GetArtifact)
	mux.HandleFunc("GET /artifacts/{id}/content", h.GetContent)

	// Deliverables
	mux.HandleFunc("POST /tasks/{task}/deliverables", h.Declare)
	mux.HandleFunc("GET /tasks/{task}/deliverables", h.ListDeliverables)
	mux.HandleFunc("GET /deliverables/{id}", h.GetDeliverable)
	mux.HandleFunc("GET /deliverables/{id}/closure", h.CheckClosure)
	mux.HandleFunc("POST /deliverables/{id}/requirements/{name}", h.MarkRequirement)

	// Shipping
	mux.HandleFunc("POST /deliverables/{id}/ship", h.Ship)
	mux.HandleFunc("GET /shipments/{id}", h.GetShipment)
	mux.HandleFunc("GET /tasks/{task}/shipments", h.ListShipments)

	// Purge
	mux.HandleFunc("POST /tasks/{task}/purge", h.Purge)

	// Receipts
	mux.HandleFunc("GET /tasks/{task}/receipts", h.ListReceipts)
	mux.HandleFunc("GET /receipts/stream", h.StreamReceipts)
	mux.HandleFunc("GET /receipts/{id}", h.GetReceipt)

	// Health check
	mux.HandleFunc("GET /health", h.Health)

	return mux
}

// === Request/Response Types ===

// DeclareRequest is the request body for declaring a deliverable.
type DeclareRequest struct {
	ArtifactIDs         []uuid.UUID           `json:"artifact_ids,omitempty"`
	ArtifactRoles       []domain.ArtifactRole `json:"artifact_roles,omitempty"`
	Requirements        []string              `json:"requirements,omitempty"`
	ShippingDestination string                `json:"shipping_destination"`
}

// ShipRequest is the request body for shipping a deliverable. The task
// must match the one the deliverable was declared under.
type ShipRequest struct {
	RootTaskID string `json:"root_task_id"`
}

// PurgeRequest is the request body for purging artifacts.
type PurgeRequest struct {
	Policy      domain.PurgePolicy `json:"policy"`
	ArtifactIDs []uuid.UUID        `json:"artifact_ids,omitempty"`
}

// ListArtifactsResponse is the response body for listing artifacts.
type ListArtifactsResponse struct {
	Artifacts []domain.ArtifactPointer `json:"artifacts"`
	Total     int                      `json:"total"`
}

// ListDeliverablesResponse is the response body for listing deliverables.
type ListDeliverablesResponse struct {
	Deliverables []domain.Deliverable `json:"deliverables"`
	Total        int                  `json:"total"`
}

// ListShipmentsResponse is the response body for listing shipments.
type ListShipmentsResponse struct {
	Shipments []domain.ShipmentManifest `json:"shipments"`
	Total     int                       `json:"total"`
}

// ListReceiptsResponse is the response body for listing receipts.
type ListReceiptsResponse struct {
	Receipts []domain.Receipt `json:"receipts"`
	Total    int              `json:"total"`
}

// HealthResponse is the response body for the health endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	TenantID string `json:"tenant_id"`
}

// ErrorResponse is the response body for errors. Code is the stable
// error kind; callers branch on it, not on the message.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// === Handlers ===

// Stage deposits the request body as a new artifact.
// POST /tasks/{task}/artifacts?role=final_output
func (h *Handler) Stage(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")

	role := domain.ArtifactRole(r.URL.Query().Get("role"))
	if role == "" {
		role = domain.RoleSupporting
	}

	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var causedBy *uuid.UUID
	if raw := r.URL.Query().Get("produced_by_receipt_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, string(domain.KindInvalidIdentifier),
				fmt.Sprintf("invalid produced_by_receipt_id %q", raw))
			return
		}
		causedBy = &id
	}

	pointer, err := h.staging.Stage(r.Context(), depot.StageParams{
		TenantID:            h.tenantID,
		RootTaskID:          task,
		Role:                role,
		MimeType:            mimeType,
		ProducedByReceiptID: causedBy,
		Content:             r.Body,
	})
	if err != nil {
		// A receipt failure leaves the pointer live; return it with the
		// error kind so the caller sees both facts.
		if domain.IsKind(err, domain.KindReceiptWriteFailed) && pointer.ArtifactID != uuid.Nil {
			h.writeJSON(w, http.StatusInternalServerError, map[string]any{
				"artifact": pointer,
				"error":    kindDetail(err),
				"code":     string(domain.KindReceiptWriteFailed),
			})
			return
		}
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, pointer)
}

// ListArtifacts returns a task's live pointers, newest first.
// GET /tasks/{task}/artifacts?role=plan
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")

	filter := domain.ArtifactFilter{}
	if raw := r.URL.Query().Get("role"); raw != "" {
		role := domain.ArtifactRole(raw)
		filter.Role = &role
	}

	artifacts, err := h.staging.List(r.Context(), h.tenantID, task, filter)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ListArtifactsResponse{
		Artifacts: artifacts,
		Total:     len(artifacts),
	})
}

// GetArtifact returns a single pointer, live or purged.
// GET /artifacts/{id}
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	pointer, err := h.staging.GetArtifact(r.Context(), h.tenantID, id)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, pointer)
}

// GetContent streams the bytes behind a live pointer.
// GET /artifacts/{id}/content
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	content, pointer, err := h.staging.RetrieveContent(r.Context(), h.tenantID, id)
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	defer func() { _ = content.Close() }()

	w.Header().Set("Content-Type", pointer.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(pointer.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		log.Error(log.CatAPI, "failed to stream artifact content", "artifact", id.String(), "error", err)
	}
}

// Declare registers a new deliverable contract.
// POST /tasks/{task}/deliverables
func (h *Handler) Declare(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")

	var req DeclareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}

	d, err := h.deliverables.Declare(r.Context(), h.tenantID, task, domain.DeliverableSpec{
		ArtifactIDs:         req.ArtifactIDs,
		ArtifactRoles:       req.ArtifactRoles,
		Requirements:        req.Requirements,
		ShippingDestination: req.ShippingDestination,
	})
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, d)
}

// ListDeliverables returns a task's deliverables, newest first.
// GET /tasks/{task}/deliverables?status=declared
func (h *Handler) ListDeliverables(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")

	var status *domain.DeliverableStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.DeliverableStatus(raw)
		status = &s
	}

	deliverables, err := h.deliverables.List(r.Context(), h.tenantID, task, status)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ListDeliverablesResponse{
		Deliverables: deliverables,
		Total:        len(deliverables),
	})
}

// GetDeliverable returns a single deliverable.
// GET /deliverables/{id}
func (h *Handler) GetDeliverable(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	d, err := h.deliverables.Get(r.Context(), h.tenantID, id)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, d)
}

// CheckClosure evaluates the deliverable's spec against the live set.
// Read-only; a satisfied report is advisory.
// GET /deliverables/{id}/closure
func (h *Handler) CheckClosure(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	report, err := h.deliverables.CheckClosure(r.Context(), h.tenantID, id)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// MarkRequirement records a declared named requirement as satisfied.
// POST /deliverables/{id}/requirements/{name}
func (h *Handler) MarkRequirement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")

	if err := h.deliverables.MarkRequirement(r.Context(), h.tenantID, id, name); err != nil {
		h.writeKindError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Ship attempts to ship a deliverable.
// POST /deliverables/{id}/ship
func (h *Handler) Ship(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req ShipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	if req.RootTaskID == "" {
		h.writeError(w, http.StatusBadRequest, string(domain.KindInvalidIdentifier), "root_task_id is required")
		return
	}

	manifest, err := h.shipping.Ship(r.Context(), h.tenantID, req.RootTaskID, id)
	if err != nil {
		// A receipt failure after the commit still shipped; return the
		// manifest with the error kind so the caller sees both facts.
		if domain.IsKind(err, domain.KindReceiptWriteFailed) && manifest.ManifestID != uuid.Nil {
			h.writeJSON(w, http.StatusInternalServerError, map[string]any{
				"manifest": manifest,
				"error":    kindDetail(err),
				"code":     string(domain.KindReceiptWriteFailed),
			})
			return
		}
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, manifest)
}

// GetShipment returns a manifest by id.
// GET /shipments/{id}
func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	manifest, err := h.shipping.GetShipment(r.Context(), h.tenantID, id)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, manifest)
}

// ListShipments returns a task's manifests, newest first.
// GET /tasks/{task}/shipments
func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")

	shipments, err := h.shipping.ListShipments(r.Context(), h.tenantID, task)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ListShipmentsResponse{
		Shipments: shipments,
		Total:     len(shipments),
	})
}

// Purge retires a task's pointers under the requested policy.
// POST /tasks/{task}/purge
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")

	var req PurgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}

	result, err := h.staging.Purge(r.Context(), h.tenantID, task, req.ArtifactIDs, req.Policy)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// ListReceipts returns a task's receipts in emission order.
// GET /tasks/{task}/receipts?kind=purged&since=2026-01-02T15:04:05Z&limit=50
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")

	filter := domain.ReceiptFilter{}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind := domain.ReceiptKind(raw)
		filter.Kind = &kind
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_since", "since must be RFC 3339")
			return
		}
		filter.Since = &since
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	receipts, err := h.receipts.List(r.Context(), h.tenantID, task, filter)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ListReceiptsResponse{
		Receipts: receipts,
		Total:    len(receipts),
	})
}

// GetReceipt returns a single receipt by id.
// GET /receipts/{id}
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	receipt, err := h.receipts.Get(r.Context(), h.tenantID, id)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, receipt)
}

// StreamReceipts streams receipts as they are appended via SSE. An
// optional task query narrows the stream to one task.
// GET /receipts/stream?task=run-1
func (h *Handler) StreamReceipts(w http.ResponseWriter, r *http.Request) {
	task := r.URL.Query().Get("task")

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported")
		return
	}

	listener := pubsub.NewContinuousListener(r.Context(), h.receipts.Broker())

	// Send initial connection event
	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	// Heartbeat ticker to keep connection alive
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Comment line, not a real event; keeps the connection alive
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-listener.Events():
			if !ok {
				return
			}
			receipt := event.Payload
			if task != "" && receipt.RootTaskID != task {
				continue
			}

			data, err := json.Marshal(receipt)
			if err != nil {
				log.Error(log.CatAPI, "failed to marshal receipt", "error", err)
				continue
			}

			_, _ = fmt.Fprintf(w, "event: receipt\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// Health reports liveness.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", TenantID: h.tenantID})
}

// === Helpers ===

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, string(domain.KindInvalidIdentifier),
			fmt.Sprintf("invalid id %q", raw))
		return uuid.Nil, false
	}
	return id, true
}

// statusForKind maps the stable error kinds onto HTTP status codes.
func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidIdentifier, domain.KindInvalidLocation, domain.KindInvalidSpec,
		domain.KindPathViolation, domain.KindUnknownSink:
		return http.StatusBadRequest
	case domain.KindNotFound, domain.KindArtifactMissing:
		return http.StatusNotFound
	case domain.KindClosureNotSatisfied, domain.KindAlreadyShipped,
		domain.KindAlreadyRejected, domain.KindRaceLost:
		return http.StatusConflict
	case domain.KindArtifactTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.KindSinkTransportFailure:
		return http.StatusBadGateway
	case domain.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// kindDetail returns the caller-safe detail of an error. Wrapped causes
// stay inside the process boundary.
func kindDetail(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Detail
	}
	return "internal error"
}

func (h *Handler) writeKindError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		log.Error(log.CatAPI, "request failed", "kind", string(kind), "error", err)
	}
	h.writeError(w, status, string(kind), kindDetail(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatAPI, "failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	addr     string
	port     int // Actual port after binding (useful when using :0)
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., "127.0.0.1:7420").
	Addr string
	// Handler holds the wired depot services.
	Handler HandlerConfig
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration
	// Tracer, when set, wraps every route in a server span.
	Tracer trace.Tracer
	// Auth holds API key authentication settings.
	Auth AuthConfig
}

// NewServer creates a new API server.
// If Addr uses port 0 (e.g., "localhost:0" or ":0"), the OS will assign an available port.
// Use Port() after Start() to get the actual port.
func NewServer(cfg ServerConfig) (*Server, error) {
	handler := NewHandler(cfg.Handler)

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 0 // No timeout for SSE
	}

	// Create listener first to get the actual port (important for :0)
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	// Extract actual port from listener address
	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	// Tracing wraps auth so rejected requests still leave a span.
	routes := NewAuthMiddleware(cfg.Auth)(handler.Routes())
	routes = tracing.NewHTTPMiddleware(tracing.HTTPMiddlewareConfig{Tracer: cfg.Tracer})(routes)

	return &Server{
		handler:  handler,
		addr:     cfg.Addr,
		port:     port,
		listener: listener,
		server: &http.Server{
			Handler:           routes,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
		},
	}, nil
}

// Start starts the HTTP server. It blocks until the server is stopped or fails.
func (s *Server) Start() error {
	log.Info(log.CatAPI, "starting API server", "addr", s.listener.Addr().String(), "port", s.port)
	return s.server.Serve(s.listener)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatAPI, "stopping API server")
	return s.server.Shutdown(ctx)
}

// Port returns the actual port the server is listening on.
// This is useful when the server was configured with port 0 for auto-assignment.
func (s *Server) Port() int {
	return s.port
}
