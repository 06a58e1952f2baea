package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/depotgate/internal/domain"
)

func newTestBackend(t *testing.T, maxBytes int64) *FilesystemBackend {
	t.Helper()
	b, err := NewFilesystemBackend(t.TempDir(), maxBytes)
	require.NoError(t, err)
	return b
}

func TestFilesystemBackend_StoreAndRetrieve(t *testing.T) {
	b := newTestBackend(t, 0)
	ctx := context.Background()
	id := uuid.New()

	location, size, hash, err := b.Store(ctx, "tenant-a", "task-1", id, strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(5), size)
	require.True(t, strings.HasPrefix(location, "fs://"), "location should carry the fs scheme")

	want := sha256.Sum256([]byte("hello"))
	require.Equal(t, hex.EncodeToString(want[:]), hash)

	rc, err := b.Retrieve(ctx, location)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestFilesystemBackend_EmptyArtifact(t *testing.T) {
	b := newTestBackend(t, 0)
	ctx := context.Background()

	location, size, hash, err := b.Store(ctx, "tenant-a", "task-1", uuid.New(), bytes.NewReader(nil))
	require.NoError(t, err)
	require.Equal(t, int64(0), size)

	empty := sha256.Sum256(nil)
	require.Equal(t, hex.EncodeToString(empty[:]), hash)

	rc, err := b.Retrieve(ctx, location)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestFilesystemBackend_SizeLimit(t *testing.T) {
	b := newTestBackend(t, 8)
	ctx := context.Background()

	// Exactly at the limit is accepted.
	_, size, _, err := b.Store(ctx, "tenant-a", "task-1", uuid.New(), strings.NewReader("12345678"))
	require.NoError(t, err)
	require.Equal(t, int64(8), size)

	// One byte over fails and leaves no partial file behind.
	id := uuid.New()
	_, _, _, err = b.Store(ctx, "tenant-a", "task-1", id, strings.NewReader("123456789"))
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindArtifactTooLarge))

	partial := filepath.Join(b.base, "tenant-a", "task-1", id.String())
	_, statErr := os.Stat(partial)
	require.True(t, os.IsNotExist(statErr), "partial file should be removed")
}

func TestFilesystemBackend_TenantPathAttack(t *testing.T) {
	b := newTestBackend(t, 0)
	ctx := context.Background()

	location, _, _, err := b.Store(ctx, "../../etc", "task-1", uuid.New(), strings.NewReader("x"))
	require.NoError(t, err)

	// The sanitized tenant directory stays strictly inside the base.
	rc, err := b.Retrieve(ctx, location)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	entries, err := os.ReadDir(b.base)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "_etc", entries[0].Name())
}

func TestFilesystemBackend_RetrieveRejectsEscapes(t *testing.T) {
	b := newTestBackend(t, 0)
	ctx := context.Background()

	_, err := b.Retrieve(ctx, "fs://../../etc/passwd")
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindPathViolation))

	_, err = b.Retrieve(ctx, "/etc/passwd")
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindInvalidLocation))

	_, err = b.Retrieve(ctx, "bare/path")
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindInvalidLocation))

	_, err = b.Retrieve(ctx, "mem://tenant/task/abc")
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindInvalidLocation))
}

func TestFilesystemBackend_RetrieveMissing(t *testing.T) {
	b := newTestBackend(t, 0)

	_, err := b.Retrieve(context.Background(), "fs://tenant/task/"+uuid.NewString())
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindArtifactMissing))
}

func TestFilesystemBackend_DeleteIsIdempotent(t *testing.T) {
	b := newTestBackend(t, 0)
	ctx := context.Background()

	location, _, _, err := b.Store(ctx, "tenant-a", "task-1", uuid.New(), strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx, location))

	exists, err := b.Exists(ctx, location)
	require.NoError(t, err)
	require.False(t, exists)

	// Second delete of the same location is a no-op.
	require.NoError(t, b.Delete(ctx, location))
}

// Property: for any payload, retrieval returns exactly the stored bytes
// and the reported hash and size match.
func TestFilesystemBackend_RoundTrip(t *testing.T) {
	b := newTestBackend(t, 0)
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 1<<12).Draw(t, "payload")

		location, size, hash, err := b.Store(ctx, "tenant-a", "task-1", uuid.New(), bytes.NewReader(payload))
		require.NoError(t, err)
		require.Equal(t, int64(len(payload)), size)

		want := sha256.Sum256(payload)
		require.Equal(t, hex.EncodeToString(want[:]), hash)

		// Repeated retrieval yields equal byte sequences.
		for i := 0; i < 2; i++ {
			rc, err := b.Retrieve(ctx, location)
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			require.True(t, bytes.Equal(payload, got), "retrieved bytes differ from stored bytes")
		}
	})
}

func TestRegistry(t *testing.T) {
	fs := newTestBackend(t, 0)
	mem := NewMemoryBackend(0)
	reg := NewRegistry(fs, mem)

	b, err := reg.ForScheme("fs")
	require.NoError(t, err)
	require.Same(t, Backend(fs), b)

	b, err = reg.ForLocation("mem://tenant/task/abc")
	require.NoError(t, err)
	require.Same(t, Backend(mem), b)

	_, err = reg.ForScheme("s3")
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindInvalidLocation))
}
