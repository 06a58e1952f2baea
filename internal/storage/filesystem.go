package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/log"
	"github.com/zjrosen/depotgate/internal/sanitize"
)

const fsScheme = "fs"

// FilesystemBackend stores artifact bytes under a base directory as
// <base>/<sanitized-tenant>/<sanitized-task>/<artifact_id>. Locations
// are fs:// URIs relative to the base.
type FilesystemBackend struct {
	base     string
	maxBytes int64 // 0 = unlimited
}

var _ Backend = (*FilesystemBackend)(nil)

// NewFilesystemBackend creates the backend rooted at base. maxBytes
// caps stored payload size; 0 means unlimited.
func NewFilesystemBackend(base string, maxBytes int64) (*FilesystemBackend, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolving storage base %q: %w", base, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage base %q: %w", abs, err)
	}
	return &FilesystemBackend{base: abs, maxBytes: maxBytes}, nil
}

func (b *FilesystemBackend) Scheme() string { return fsScheme }

// Store streams content to disk, hashing and counting in the same pass.
// A payload over the limit is removed before the call fails.
func (b *FilesystemBackend) Store(ctx context.Context, tenantID, rootTaskID string, artifactID uuid.UUID, content io.Reader) (string, int64, string, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, "", err
	}

	dir := filepath.Join(b.base, sanitize.Component(tenantID), sanitize.Component(rootTaskID))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, "", domain.WrapE(domain.KindStorageFailure, err, "creating artifact directory")
	}

	path := filepath.Join(dir, artifactID.String())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", 0, "", domain.WrapE(domain.KindStorageFailure, err, "creating artifact file")
	}

	hasher := sha256.New()
	var written int64
	src := content
	if b.maxBytes > 0 {
		// One extra byte so an over-limit stream is detectable.
		src = io.LimitReader(content, b.maxBytes+1)
	}
	written, err = io.Copy(io.MultiWriter(f, hasher), src)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		b.discardPartial(path)
		return "", 0, "", domain.WrapE(domain.KindStorageFailure, err, "writing artifact bytes")
	}
	if b.maxBytes > 0 && written > b.maxBytes {
		b.discardPartial(path)
		return "", 0, "", domain.E(domain.KindArtifactTooLarge, "artifact exceeds %d bytes", b.maxBytes)
	}

	rel, err := filepath.Rel(b.base, path)
	if err != nil {
		b.discardPartial(path)
		return "", 0, "", domain.WrapE(domain.KindStorageFailure, err, "relativizing artifact path")
	}

	location := fsScheme + "://" + filepath.ToSlash(rel)
	return location, written, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (b *FilesystemBackend) discardPartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn(log.CatStorage, "failed to remove partial artifact", "path", path, "error", err)
	}
}

// Retrieve opens the bytes at an fs:// location after containment
// checks.
func (b *FilesystemBackend) Retrieve(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.resolve(location)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // G304: path is containment-checked by resolve
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.E(domain.KindArtifactMissing, "no bytes at %s", location)
		}
		return nil, domain.WrapE(domain.KindStorageFailure, err, "opening artifact at %s", location)
	}
	return f, nil
}

// Delete removes the bytes at a location. Already-absent bytes are not
// an error.
func (b *FilesystemBackend) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return domain.WrapE(domain.KindStorageFailure, err, "deleting artifact at %s", location)
	}
	return nil
}

// Exists reports whether bytes are present at a location.
func (b *FilesystemBackend) Exists(ctx context.Context, location string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := b.resolve(location)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, domain.WrapE(domain.KindStorageFailure, err, "stat artifact at %s", location)
	}
	return true, nil
}

// resolve parses an fs:// location and verifies the resolved path stays
// under the base.
func (b *FilesystemBackend) resolve(location string) (string, error) {
	scheme, body, err := sanitize.ParseLocation(location)
	if err != nil {
		return "", err
	}
	if scheme != fsScheme {
		return "", domain.E(domain.KindInvalidLocation, "scheme %q not served by filesystem backend", scheme)
	}
	return sanitize.ResolveUnderBase(b.base, filepath.FromSlash(body))
}
