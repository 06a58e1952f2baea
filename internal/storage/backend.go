// Package storage persists opaque artifact payloads. Backends are
// selected by location scheme from a closed table built at startup.
package storage

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/sanitize"
)

// Backend stores, retrieves, and deletes artifact bytes. Locations are
// opaque URIs whose scheme identifies the backend that minted them.
type Backend interface {
	// Scheme is the location scheme this backend serves, without "://".
	Scheme() string

	// Store writes the content stream and returns the minted location,
	// the byte count, and the hex SHA-256 of the bytes. Exceeding the
	// configured size limit removes the partial write and fails with
	// ArtifactTooLarge.
	Store(ctx context.Context, tenantID, rootTaskID string, artifactID uuid.UUID, content io.Reader) (location string, size int64, hash string, err error)

	// Retrieve opens the bytes at a location previously minted by Store.
	// A pointer whose bytes are gone fails with ArtifactMissing.
	Retrieve(ctx context.Context, location string) (io.ReadCloser, error)

	// Delete removes the bytes at a location. Deleting bytes that are
	// already gone is a no-op.
	Delete(ctx context.Context, location string) error

	// Exists reports whether bytes are present at a location.
	Exists(ctx context.Context, location string) (bool, error)
}

// Registry maps location schemes to backends. It is populated once at
// composition time; there is no runtime registration.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry builds a registry over the given backends.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Scheme()] = b
	}
	return r
}

// ForScheme returns the backend serving a scheme.
func (r *Registry) ForScheme(scheme string) (Backend, error) {
	b, ok := r.backends[scheme]
	if !ok {
		return nil, domain.E(domain.KindInvalidLocation, "no storage backend for scheme %q", scheme)
	}
	return b, nil
}

// ForLocation resolves the backend that minted a location.
func (r *Registry) ForLocation(location string) (Backend, error) {
	scheme, _, err := sanitize.ParseLocation(location)
	if err != nil {
		return nil, err
	}
	return r.ForScheme(scheme)
}
