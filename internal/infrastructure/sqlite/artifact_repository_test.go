package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/depotgate/internal/domain"
)

// setupMetadataDB creates a metadata database in a temp directory.
func setupMetadataDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewMetadataDB(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// setupReceiptsDB creates a receipts database in a temp directory.
func setupReceiptsDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewReceiptsDB(filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testPointer(tenantID, rootTaskID string, role domain.ArtifactRole, createdAt time.Time) domain.ArtifactPointer {
	id := uuid.New()
	return domain.ArtifactPointer{
		ArtifactID:  id,
		TenantID:    tenantID,
		RootTaskID:  rootTaskID,
		Location:    "fs://" + tenantID + "/" + rootTaskID + "/" + id.String(),
		SizeBytes:   5,
		MimeType:    "text/plain",
		ContentHash: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Role:        role,
		CreatedAt:   createdAt,
	}
}

func TestArtifactRepository_InsertAndFindByID(t *testing.T) {
	db := setupMetadataDB(t)
	repo := db.ArtifactRepository()
	ctx := context.Background()

	receiptID := uuid.New()
	p := testPointer("acme", "task-1", domain.RoleFinalOutput, time.Now().UTC())
	p.ProducedByReceiptID = &receiptID

	require.NoError(t, repo.Insert(ctx, p))

	found, err := repo.FindByID(ctx, "acme", p.ArtifactID)
	require.NoError(t, err)
	require.Equal(t, p.ArtifactID, found.ArtifactID)
	require.Equal(t, p.Location, found.Location)
	require.Equal(t, p.SizeBytes, found.SizeBytes)
	require.Equal(t, p.ContentHash, found.ContentHash)
	require.Equal(t, domain.RoleFinalOutput, found.Role)
	require.NotNil(t, found.ProducedByReceiptID)
	require.Equal(t, receiptID, *found.ProducedByReceiptID)
	require.Nil(t, found.PurgedAt)
	require.True(t, found.Live())
}

func TestArtifactRepository_FindByID_NotFound(t *testing.T) {
	db := setupMetadataDB(t)
	repo := db.ArtifactRepository()

	_, err := repo.FindByID(context.Background(), "acme", uuid.New())
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestArtifactRepository_FindByID_TenantIsolation(t *testing.T) {
	db := setupMetadataDB(t)
	repo := db.ArtifactRepository()
	ctx := context.Background()

	p := testPointer("acme", "task-1", domain.RoleSupporting, time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, p))

	// Same artifact id under a different tenant does not resolve.
	_, err := repo.FindByID(ctx, "other-tenant", p.ArtifactID)
	require.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestArtifactRepository_ListLive_NewestFirst(t *testing.T) {
	db := setupMetadataDB(t)
	repo := db.ArtifactRepository()
	ctx := context.Background()

	base := time.Now().UTC()
	oldest := testPointer("acme", "task-1", domain.RoleSupporting, base)
	middle := testPointer("acme", "task-1", domain.RolePlan, base.Add(time.Second))
	newest := testPointer("acme", "task-1", domain.RoleFinalOutput, base.Add(2*time.Second))
	for _, p := range []domain.ArtifactPointer{oldest, middle, newest} {
		require.NoError(t, repo.Insert(ctx, p))
	}

	listed, err := repo.ListLive(ctx, "acme", "task-1", domain.ArtifactFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 3)
	require.Equal(t, newest.ArtifactID, listed[0].ArtifactID)
	require.Equal(t, middle.ArtifactID, listed[1].ArtifactID)
	require.Equal(t, oldest.ArtifactID, listed[2].ArtifactID)
}

func TestArtifactRepository_ListLive_RoleFilter(t *testing.T) {
	db := setupMetadataDB(t)
	repo := db.ArtifactRepository()
	ctx := context.Background()

	now := time.Now().UTC()
	final := testPointer("acme", "task-1", domain.RoleFinalOutput, now)
	supporting := testPointer("acme", "task-1", domain.RoleSupporting, now.Add(time.Second))
	require.NoError(t, repo.Insert(ctx, final))
	require.NoError(t, repo.Insert(ctx, supporting))

	role := domain.RoleFinalOutput
	listed, err := repo.ListLive(ctx, "acme", "task-1", domain.ArtifactFilter{Role: &role})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, final.ArtifactID, listed[0].ArtifactID)
}

func TestArtifactRepository_ListLive_IDFilter(t *testing.T) {
	db := setupMetadataDB(t)
	repo := db.ArtifactRepository()
	ctx := context.Background()

	now := time.Now().UTC()
	a := testPointer("acme", "task-1", domain.RoleSupporting, now)
	b := testPointer("acme", "task-1", domain.RoleSupporting, now.Add(time.Second))
	c := testPointer("acme", "task-1", domain.RoleSupporting, now.Add(2*time.Second))
	for _, p := range []domain.ArtifactPointer{a, b, c} {
		require.NoError(t, repo.Insert(ctx, p))
	}

	listed, err := repo.ListLive(ctx, "acme", "task-1", domain.ArtifactFilter{
		IDs: []uuid.UUID{a.ArtifactID, c.ArtifactID},
	})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, c.ArtifactID, listed[0].ArtifactID)
	require.Equal(t, a.ArtifactID, listed[1].ArtifactID)
}

func TestArtifactRepository_MarkPurged(t *testing.T) {
	db := setupMetadataDB(t)
	repo := db.ArtifactRepository()
	ctx := context.Background()

	now := time.Now().UTC()
	a := testPointer("acme", "task-1", domain.RoleSupporting, now)
	b := testPointer("acme", "task-1", domain.RoleSupporting, now.Add(time.Second))
	require.NoError(t, repo.Insert(ctx, a))
	require.NoError(t, repo.Insert(ctx, b))

	purgedAt := now.Add(time.Minute)
	purged, err := repo.MarkPurged(ctx, "acme", "task-1", []uuid.UUID{a.ArtifactID, b.ArtifactID}, purgedAt, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{a.ArtifactID, b.ArtifactID}, purged)

	// Purged pointers disappear from the live listing but stay findable.
	listed, err := repo.ListLive(ctx, "acme", "task-1", domain.ArtifactFilter{})
	require.NoError(t, err)
	require.Empty(t, listed)

	found, err := repo.FindByID(ctx, "acme", a.ArtifactID)
	require.NoError(t, err)
	require.NotNil(t, found.PurgedAt)
	require.False(t, found.Live())
}

func TestArtifactRepository_MarkPurged_AlreadyPurgedIsNoOp(t *testing.T) {
	db := setupMetadataDB(t)
	repo := db.ArtifactRepository()
	ctx := context.Background()

	now := time.Now().UTC()
	p := testPointer("acme", "task-1", domain.RoleSupporting, now)
	require.NoError(t, repo.Insert(ctx, p))

	first, err := repo.MarkPurged(ctx, "acme", "task-1", []uuid.UUID{p.ArtifactID}, now, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Second purge retires nothing.
	second, err := repo.MarkPurged(ctx, "acme", "task-1", []uuid.UUID{p.ArtifactID}, now.Add(time.Second), nil)
	require.NoError(t, err)
	require.Empty(t, second)

	// The original purge timestamp is preserved.
	found, err := repo.FindByID(ctx, "acme", p.ArtifactID)
	require.NoError(t, err)
	require.Equal(t, now.Truncate(0), *found.PurgedAt)
}

func TestArtifactRepository_MarkPurged_RecordsPurgeAfter(t *testing.T) {
	db := setupMetadataDB(t)
	repo := db.ArtifactRepository()
	ctx := context.Background()

	now := time.Now().UTC()
	p := testPointer("acme", "task-1", domain.RoleSupporting, now)
	require.NoError(t, repo.Insert(ctx, p))

	after := now.Add(24 * time.Hour)
	_, err := repo.MarkPurged(ctx, "acme", "task-1", []uuid.UUID{p.ArtifactID}, now, &after)
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, "acme", p.ArtifactID)
	require.NoError(t, err)
	require.NotNil(t, found.PurgeAfter)
	require.Equal(t, after.Truncate(0), *found.PurgeAfter)
}
