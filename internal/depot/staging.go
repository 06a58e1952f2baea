package depot

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/cachemanager"
	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/log"
	"github.com/zjrosen/depotgate/internal/sanitize"
	"github.com/zjrosen/depotgate/internal/storage"
)

const pointerCacheTTL = 30 * time.Second

// purgePolicyVersion stamps purged receipts so the retention semantics
// in force at emission time stay auditable if the policies ever change.
const purgePolicyVersion = 1

// StagingService deposits artifact payloads, registers their pointers,
// and retires them again via purge.
type StagingService struct {
	storage   *storage.Registry
	scheme    string
	artifacts domain.ArtifactRepository
	receipts  *ReceiptLog
	cache     *cachemanager.ReadThroughCache[string, domain.ArtifactPointer, pointerQuery]
	manager   cachemanager.CacheManager[string, domain.ArtifactPointer]
	now       func() time.Time
}

type pointerQuery struct {
	tenantID   string
	artifactID uuid.UUID
}

// NewStagingService wires the staging service. New artifacts are stored
// through the backend registered for scheme.
func NewStagingService(registry *storage.Registry, scheme string, artifacts domain.ArtifactRepository, receipts *ReceiptLog) *StagingService {
	s := &StagingService{
		storage:   registry,
		scheme:    scheme,
		artifacts: artifacts,
		receipts:  receipts,
		manager: cachemanager.NewInMemoryCacheManager[string, domain.ArtifactPointer](
			"artifact-pointers", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval),
		now: time.Now,
	}
	s.cache = cachemanager.NewReadThroughCache(
		s.manager,
		func(ctx context.Context, q pointerQuery) (domain.ArtifactPointer, error) {
			return s.artifacts.FindByID(ctx, q.tenantID, q.artifactID)
		},
		false,
	)
	return s
}

func pointerCacheKey(tenantID string, artifactID uuid.UUID) string {
	return tenantID + "/" + artifactID.String()
}

// StageParams describes one deposit.
type StageParams struct {
	TenantID            string
	RootTaskID          string
	Role                domain.ArtifactRole
	MimeType            string
	ProducedByReceiptID *uuid.UUID
	Content             io.Reader
}

// Stage writes the payload, registers the pointer, and emits an
// artifact_staged receipt. When the receipt append fails the pointer is
// already live; the pointer is returned alongside a ReceiptWriteFailed
// error so the caller can see both facts.
func (s *StagingService) Stage(ctx context.Context, p StageParams) (domain.ArtifactPointer, error) {
	if err := sanitize.ValidateTaskID(p.RootTaskID); err != nil {
		return domain.ArtifactPointer{}, err
	}
	if !p.Role.Valid() {
		return domain.ArtifactPointer{}, domain.E(domain.KindInvalidIdentifier, "unknown artifact role %q", p.Role)
	}

	backend, err := s.storage.ForScheme(s.scheme)
	if err != nil {
		return domain.ArtifactPointer{}, err
	}

	artifactID := uuid.New()
	location, size, hash, err := backend.Store(ctx, p.TenantID, p.RootTaskID, artifactID, p.Content)
	if err != nil {
		return domain.ArtifactPointer{}, err
	}

	pointer := domain.ArtifactPointer{
		ArtifactID:          artifactID,
		TenantID:            p.TenantID,
		RootTaskID:          p.RootTaskID,
		Location:            location,
		SizeBytes:           size,
		MimeType:            p.MimeType,
		ContentHash:         hash,
		Role:                p.Role,
		ProducedByReceiptID: p.ProducedByReceiptID,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.artifacts.Insert(ctx, pointer); err != nil {
		// The bytes are orphaned without their pointer; best-effort
		// cleanup before failing.
		if delErr := backend.Delete(ctx, location); delErr != nil {
			log.ErrorErr(log.CatStaging, "failed to remove orphaned payload", delErr, "location", location)
		}
		return domain.ArtifactPointer{}, domain.WrapE(domain.KindStorageFailure, err, "registering artifact pointer")
	}

	log.Info(log.CatStaging, "artifact staged",
		"tenant", p.TenantID, "task", p.RootTaskID,
		"artifact", artifactID.String(), "role", string(p.Role), "size", size)

	if _, err := s.receipts.Emit(ctx, p.TenantID, p.RootTaskID, domain.ReceiptArtifactStaged, map[string]any{
		"artifact_id":   artifactID.String(),
		"artifact_role": string(p.Role),
		"location":      location,
		"size_bytes":    size,
		"content_hash":  hash,
		"mime_type":     p.MimeType,
	}, p.ProducedByReceiptID); err != nil {
		return pointer, err
	}

	return pointer, nil
}

// GetArtifact returns a pointer by id, live or purged.
func (s *StagingService) GetArtifact(ctx context.Context, tenantID string, artifactID uuid.UUID) (domain.ArtifactPointer, error) {
	return s.cache.Get(ctx, pointerCacheKey(tenantID, artifactID), pointerQuery{tenantID, artifactID}, pointerCacheTTL)
}

// List returns the task's live pointers, newest first.
func (s *StagingService) List(ctx context.Context, tenantID, rootTaskID string, filter domain.ArtifactFilter) ([]domain.ArtifactPointer, error) {
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return nil, err
	}
	return s.artifacts.ListLive(ctx, tenantID, rootTaskID, filter)
}

// RetrieveContent opens the bytes behind a live pointer. Purged
// pointers fail with ArtifactMissing.
func (s *StagingService) RetrieveContent(ctx context.Context, tenantID string, artifactID uuid.UUID) (io.ReadCloser, domain.ArtifactPointer, error) {
	pointer, err := s.artifacts.FindByID(ctx, tenantID, artifactID)
	if err != nil {
		return nil, domain.ArtifactPointer{}, err
	}
	if !pointer.Live() {
		return nil, pointer, domain.E(domain.KindArtifactMissing, "artifact %s is purged", artifactID)
	}
	backend, err := s.storage.ForLocation(pointer.Location)
	if err != nil {
		return nil, pointer, err
	}
	content, err := backend.Retrieve(ctx, pointer.Location)
	if err != nil {
		return nil, pointer, err
	}
	return content, pointer, nil
}

// PurgeResult reports what one purge call retired.
type PurgeResult struct {
	PurgedIDs  []uuid.UUID        `json:"purged_ids"`
	Policy     domain.PurgePolicy `json:"policy"`
	PurgeAfter *time.Time         `json:"purge_after,omitempty"`
	Receipt    domain.Receipt     `json:"receipt"`
}

// Purge retires pointers under the given policy. An empty id list means
// every live pointer of the task. The manual policy records intent in
// the receipt without touching pointer state. Purging already-purged
// pointers is a no-op that still emits a purged receipt, so repeated
// purges stay observable in the log.
func (s *StagingService) Purge(ctx context.Context, tenantID, rootTaskID string, ids []uuid.UUID, policy domain.PurgePolicy) (PurgeResult, error) {
	if err := sanitize.ValidateTaskID(rootTaskID); err != nil {
		return PurgeResult{}, err
	}
	if !policy.Valid() {
		return PurgeResult{}, domain.E(domain.KindInvalidSpec, "unknown purge policy %q", policy)
	}

	// Capture locations before the pointers leave the live set.
	live, err := s.artifacts.ListLive(ctx, tenantID, rootTaskID, domain.ArtifactFilter{IDs: ids})
	if err != nil {
		return PurgeResult{}, err
	}

	purgedAt := s.now().UTC()
	var purgeAfter *time.Time
	if window, ok := policy.RetainFor(); ok {
		at := purgedAt.Add(window)
		purgeAfter = &at
	}

	targets := ids
	if len(targets) == 0 {
		for _, p := range live {
			targets = append(targets, p.ArtifactID)
		}
	}

	var purged []uuid.UUID
	if policy == domain.PurgeManual {
		// Manual records intent in the receipt only; the pointers stay
		// live and the bytes stay put.
		for _, p := range live {
			purged = append(purged, p.ArtifactID)
		}
	} else {
		purged, err = s.artifacts.MarkPurged(ctx, tenantID, rootTaskID, targets, purgedAt, purgeAfter)
		if err != nil {
			return PurgeResult{}, err
		}
		for _, id := range purged {
			_ = s.manager.Delete(ctx, pointerCacheKey(tenantID, id))
		}
	}

	if policy == domain.PurgeImmediate {
		for _, p := range live {
			backend, err := s.storage.ForLocation(p.Location)
			if err != nil {
				log.ErrorErr(log.CatStaging, "no backend for purged location", err, "location", p.Location)
				continue
			}
			if err := backend.Delete(ctx, p.Location); err != nil {
				log.ErrorErr(log.CatStaging, "failed to delete purged payload", err, "location", p.Location)
			}
		}
	}

	purgedIDs := make([]string, 0, len(purged))
	for _, id := range purged {
		purgedIDs = append(purgedIDs, id.String())
	}
	payload := map[string]any{
		"artifact_ids":   purgedIDs,
		"policy":         string(policy),
		"policy_version": purgePolicyVersion,
	}
	if purgeAfter != nil {
		payload["purge_after"] = purgeAfter.Format(time.RFC3339Nano)
	}

	result := PurgeResult{PurgedIDs: purged, Policy: policy, PurgeAfter: purgeAfter}
	receipt, err := s.receipts.Emit(ctx, tenantID, rootTaskID, domain.ReceiptPurged, payload, nil)
	if err != nil {
		return result, err
	}
	result.Receipt = receipt

	log.Info(log.CatStaging, "artifacts purged",
		"tenant", tenantID, "task", rootTaskID,
		"count", len(purged), "policy", string(policy))
	return result, nil
}

// FlushPointerCache drops every cached pointer. Called when the metadata
// database changes outside this process, e.g. a second instance or a
// manual sqlite session.
func (s *StagingService) FlushPointerCache(ctx context.Context) {
	if err := s.manager.Flush(ctx); err != nil {
		log.ErrorErr(log.CatCache, "failed to flush pointer cache", err)
	}
}
