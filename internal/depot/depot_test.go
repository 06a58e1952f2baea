package depot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/infrastructure/sqlite"
	"github.com/zjrosen/depotgate/internal/sink"
	"github.com/zjrosen/depotgate/internal/storage"
	"github.com/zjrosen/depotgate/internal/testutil"
)

// flakySink fails every transfer until err is cleared.
type flakySink struct {
	err   error
	inner sink.Sink
}

func (s *flakySink) Ship(ctx context.Context, m domain.ShipmentManifest, getContent sink.ContentGetter) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.inner.Ship(ctx, m, getContent)
}

// failingReceiptRepo rejects every append.
type failingReceiptRepo struct{}

func (failingReceiptRepo) Append(ctx context.Context, r domain.Receipt) error {
	return errors.New("receipts database is gone")
}

func (failingReceiptRepo) FindByID(ctx context.Context, tenantID string, receiptID uuid.UUID) (domain.Receipt, error) {
	return domain.Receipt{}, errors.New("receipts database is gone")
}

func (failingReceiptRepo) ListByTask(ctx context.Context, tenantID, rootTaskID string, filter domain.ReceiptFilter) ([]domain.Receipt, error) {
	return nil, nil
}

type testDepot struct {
	meta     *sqlite.DB
	backend  *storage.FilesystemBackend
	registry *storage.Registry
	selector *sink.Selector
	flaky    *flakySink
	sinkBase string

	receipts     *ReceiptLog
	staging      *StagingService
	deliverables *DeliverableService
	shipping     *ShippingService
}

func newTestDepot(t *testing.T) *testDepot {
	t.Helper()
	return newTestDepotWithLimit(t, 1<<20)
}

func newTestDepotWithLimit(t *testing.T, maxBytes int64) *testDepot {
	t.Helper()

	meta := testutil.NewMetadataDB(t)
	receiptsDB := testutil.NewReceiptsDB(t)

	backend, err := storage.NewFilesystemBackend(t.TempDir(), maxBytes)
	require.NoError(t, err)
	registry := storage.NewRegistry(backend)

	sinkBase := t.TempDir()
	fsSink, err := sink.NewFilesystemSink(sinkBase)
	require.NoError(t, err)
	flaky := &flakySink{inner: fsSink}
	selector := sink.NewSelector(map[string]sink.Sink{
		"fs":    fsSink,
		"flaky": flaky,
	})

	receipts := NewReceiptLog(receiptsDB.ReceiptRepository())
	t.Cleanup(receipts.Close)

	return &testDepot{
		meta:     meta,
		backend:  backend,
		registry: registry,
		selector: selector,
		flaky:    flaky,
		sinkBase: sinkBase,
		receipts: receipts,
		staging:  NewStagingService(registry, "fs", meta.ArtifactRepository(), receipts),
		deliverables: NewDeliverableService(
			meta.DeliverableRepository(), meta.ArtifactRepository(),
			meta.RequirementMarkRepository(), selector),
		shipping: NewShippingService(
			meta.DeliverableRepository(), meta.ArtifactRepository(),
			meta.ManifestRepository(), meta.RequirementMarkRepository(),
			meta.ShipmentCommitter(), registry, selector, receipts),
	}
}

// shippingWithFailingReceipts returns a shipping service over the same
// metadata stores whose receipt appends always fail.
func (d *testDepot) shippingWithFailingReceipts(t *testing.T) *ShippingService {
	t.Helper()
	broken := NewReceiptLog(failingReceiptRepo{})
	t.Cleanup(broken.Close)
	return NewShippingService(
		d.meta.DeliverableRepository(), d.meta.ArtifactRepository(),
		d.meta.ManifestRepository(), d.meta.RequirementMarkRepository(),
		d.meta.ShipmentCommitter(), d.registry, d.selector, broken)
}

func (d *testDepot) receiptKinds(t *testing.T, tenantID, rootTaskID string) []domain.ReceiptKind {
	t.Helper()
	listed, err := d.receipts.List(context.Background(), tenantID, rootTaskID, domain.ReceiptFilter{})
	require.NoError(t, err)
	kinds := make([]domain.ReceiptKind, 0, len(listed))
	for _, r := range listed {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}

func mustStage(t *testing.T, d *testDepot, tenantID, rootTaskID string, role domain.ArtifactRole, content string) domain.ArtifactPointer {
	t.Helper()
	p, err := d.staging.Stage(context.Background(), StageParams{
		TenantID:   tenantID,
		RootTaskID: rootTaskID,
		Role:       role,
		MimeType:   "text/plain",
		Content:    strings.NewReader(content),
	})
	require.NoError(t, err)
	return p
}

func mustDeclare(t *testing.T, d *testDepot, tenantID, rootTaskID string, spec domain.DeliverableSpec) domain.Deliverable {
	t.Helper()
	declared, err := d.deliverables.Declare(context.Background(), tenantID, rootTaskID, spec)
	require.NoError(t, err)
	return declared
}

func requireStatus(t *testing.T, d *testDepot, tenantID string, id uuid.UUID, want domain.DeliverableStatus) {
	t.Helper()
	found, err := d.meta.DeliverableRepository().FindByID(context.Background(), tenantID, id)
	require.NoError(t, err)
	require.Equal(t, want, found.Status)
}
