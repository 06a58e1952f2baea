package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/depotgate/internal/domain"
)

func testReceipt(tenantID, rootTaskID string, kind domain.ReceiptKind, emittedAt time.Time) domain.Receipt {
	return domain.Receipt{
		ReceiptID:  uuid.New(),
		TenantID:   tenantID,
		RootTaskID: rootTaskID,
		Kind:       kind,
		Payload:    map[string]any{"note": "test"},
		EmittedAt:  emittedAt,
	}
}

func TestReceiptRepository_AppendAndList(t *testing.T) {
	db := setupReceiptsDB(t)
	repo := db.ReceiptRepository()
	ctx := context.Background()

	causedBy := uuid.New()
	r := testReceipt("acme", "task-1", domain.ReceiptArtifactStaged, time.Now().UTC())
	r.CausedBy = &causedBy
	require.NoError(t, repo.Append(ctx, r))

	listed, err := repo.ListByTask(ctx, "acme", "task-1", domain.ReceiptFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, r.ReceiptID, listed[0].ReceiptID)
	require.Equal(t, domain.ReceiptArtifactStaged, listed[0].Kind)
	require.Equal(t, "test", listed[0].Payload["note"])
	require.NotNil(t, listed[0].CausedBy)
	require.Equal(t, causedBy, *listed[0].CausedBy)
}

func TestReceiptRepository_FindByID(t *testing.T) {
	db := setupReceiptsDB(t)
	repo := db.ReceiptRepository()
	ctx := context.Background()

	r := testReceipt("acme", "task-1", domain.ReceiptPurged, time.Now().UTC())
	require.NoError(t, repo.Append(ctx, r))

	found, err := repo.FindByID(ctx, "acme", r.ReceiptID)
	require.NoError(t, err)
	require.Equal(t, r.ReceiptID, found.ReceiptID)
	require.Equal(t, domain.ReceiptPurged, found.Kind)

	_, err = repo.FindByID(ctx, "acme", uuid.New())
	require.True(t, domain.IsKind(err, domain.KindNotFound))

	// Tenant scoping applies to point reads too.
	_, err = repo.FindByID(ctx, "other", r.ReceiptID)
	require.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestReceiptRepository_ListByTask_AscendingOrder(t *testing.T) {
	db := setupReceiptsDB(t)
	repo := db.ReceiptRepository()
	ctx := context.Background()

	base := time.Now().UTC()
	staged := testReceipt("acme", "task-1", domain.ReceiptArtifactStaged, base)
	shipped := testReceipt("acme", "task-1", domain.ReceiptShipmentComplete, base.Add(time.Second))
	purged := testReceipt("acme", "task-1", domain.ReceiptPurged, base.Add(2*time.Second))

	// Insertion order deliberately differs from emission order.
	for _, r := range []domain.Receipt{purged, staged, shipped} {
		require.NoError(t, repo.Append(ctx, r))
	}

	listed, err := repo.ListByTask(ctx, "acme", "task-1", domain.ReceiptFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 3)
	require.Equal(t, staged.ReceiptID, listed[0].ReceiptID)
	require.Equal(t, shipped.ReceiptID, listed[1].ReceiptID)
	require.Equal(t, purged.ReceiptID, listed[2].ReceiptID)
}

func TestReceiptRepository_ListByTask_KindFilter(t *testing.T) {
	db := setupReceiptsDB(t)
	repo := db.ReceiptRepository()
	ctx := context.Background()

	base := time.Now().UTC()
	require.NoError(t, repo.Append(ctx, testReceipt("acme", "task-1", domain.ReceiptArtifactStaged, base)))
	require.NoError(t, repo.Append(ctx, testReceipt("acme", "task-1", domain.ReceiptShipmentComplete, base.Add(time.Second))))

	kind := domain.ReceiptShipmentComplete
	listed, err := repo.ListByTask(ctx, "acme", "task-1", domain.ReceiptFilter{Kind: &kind})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, domain.ReceiptShipmentComplete, listed[0].Kind)
}

func TestReceiptRepository_ListByTask_SinceAndLimit(t *testing.T) {
	db := setupReceiptsDB(t)
	repo := db.ReceiptRepository()
	ctx := context.Background()

	base := time.Now().UTC()
	var receipts []domain.Receipt
	for i := 0; i < 5; i++ {
		r := testReceipt("acme", "task-1", domain.ReceiptArtifactStaged, base.Add(time.Duration(i)*time.Second))
		receipts = append(receipts, r)
		require.NoError(t, repo.Append(ctx, r))
	}

	since := base.Add(2 * time.Second)
	listed, err := repo.ListByTask(ctx, "acme", "task-1", domain.ReceiptFilter{Since: &since, Limit: 2})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, receipts[2].ReceiptID, listed[0].ReceiptID)
	require.Equal(t, receipts[3].ReceiptID, listed[1].ReceiptID)
}

func TestReceiptRepository_NilPayloadRoundTrip(t *testing.T) {
	db := setupReceiptsDB(t)
	repo := db.ReceiptRepository()
	ctx := context.Background()

	r := testReceipt("acme", "task-1", domain.ReceiptArtifactStaged, time.Now().UTC())
	r.Payload = nil
	require.NoError(t, repo.Append(ctx, r))

	listed, err := repo.ListByTask(ctx, "acme", "task-1", domain.ReceiptFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].Payload)
	require.Empty(t, listed[0].Payload)
}
