package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/sanitize"
)

const memScheme = "mem"

// MemoryBackend keeps artifact bytes in process memory. Used by tests
// and available as a pluggable backend for ephemeral deployments.
type MemoryBackend struct {
	mu       sync.RWMutex
	blobs    map[string][]byte
	maxBytes int64
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an in-memory backend. maxBytes caps payload
// size; 0 means unlimited.
func NewMemoryBackend(maxBytes int64) *MemoryBackend {
	return &MemoryBackend{
		blobs:    make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

func (b *MemoryBackend) Scheme() string { return memScheme }

func (b *MemoryBackend) Store(ctx context.Context, tenantID, rootTaskID string, artifactID uuid.UUID, content io.Reader) (string, int64, string, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, "", err
	}

	src := content
	if b.maxBytes > 0 {
		src = io.LimitReader(content, b.maxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", 0, "", domain.WrapE(domain.KindStorageFailure, err, "reading artifact bytes")
	}
	if b.maxBytes > 0 && int64(len(data)) > b.maxBytes {
		return "", 0, "", domain.E(domain.KindArtifactTooLarge, "artifact exceeds %d bytes", b.maxBytes)
	}

	body := sanitize.Component(tenantID) + "/" + sanitize.Component(rootTaskID) + "/" + artifactID.String()
	location := memScheme + "://" + body

	sum := sha256.Sum256(data)

	b.mu.Lock()
	b.blobs[location] = data
	b.mu.Unlock()

	return location, int64(len(data)), hex.EncodeToString(sum[:]), nil
}

func (b *MemoryBackend) Retrieve(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.checkScheme(location); err != nil {
		return nil, err
	}

	b.mu.RLock()
	data, ok := b.blobs[location]
	b.mu.RUnlock()
	if !ok {
		return nil, domain.E(domain.KindArtifactMissing, "no bytes at %s", location)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *MemoryBackend) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.checkScheme(location); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.blobs, location)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Exists(ctx context.Context, location string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := b.checkScheme(location); err != nil {
		return false, err
	}

	b.mu.RLock()
	_, ok := b.blobs[location]
	b.mu.RUnlock()
	return ok, nil
}

func (b *MemoryBackend) checkScheme(location string) error {
	scheme, _, err := sanitize.ParseLocation(location)
	if err != nil {
		return err
	}
	if scheme != memScheme {
		return domain.E(domain.KindInvalidLocation, "scheme %q not served by memory backend", scheme)
	}
	return nil
}
