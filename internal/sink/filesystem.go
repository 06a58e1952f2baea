package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/log"
	"github.com/zjrosen/depotgate/internal/sanitize"
)

// extForMime maps declared mime types to the filename extension the
// filesystem sink appends. Unknown types get no extension.
var extForMime = map[string]string{
	"application/json":         ".json",
	"application/pdf":          ".pdf",
	"application/zip":          ".zip",
	"application/octet-stream": "",
	"text/plain":               ".txt",
	"text/markdown":            ".md",
	"text/html":                ".html",
	"text/csv":                 ".csv",
	"text/x-diff":              ".diff",
	"image/png":                ".png",
	"image/jpeg":               ".jpg",
	"image/svg+xml":            ".svg",
}

// ExtensionForMime returns the filename extension for a declared mime
// type, empty when none applies.
func ExtensionForMime(mimeType string) string {
	if ext, ok := extForMime[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return ext
	}
	return ""
}

// FilesystemSink writes shipments under a base directory. Each shipment
// lands in its own <destination>/<manifest_id>/ directory with one file
// per artifact and a manifest.json sibling.
type FilesystemSink struct {
	base string
}

var _ Sink = (*FilesystemSink)(nil)

// NewFilesystemSink creates the sink rooted at base.
func NewFilesystemSink(base string) (*FilesystemSink, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolving sink base %q: %w", base, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating sink base %q: %w", abs, err)
	}
	return &FilesystemSink{base: abs}, nil
}

// Ship writes every artifact of the manifest plus manifest.json. The
// destination body must be a relative subpath; absolute destinations are
// rejected and traversal segments are neutralized before resolution.
func (s *FilesystemSink) Ship(ctx context.Context, m domain.ShipmentManifest, getContent ContentGetter) (map[string]string, error) {
	dir, err := s.resolveShipmentDir(m)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, domain.WrapE(domain.KindSinkTransportFailure, err, "creating shipment directory")
	}

	refs := make(map[string]string, len(m.Pointers))
	for _, p := range m.Pointers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := p.ArtifactID.String() + ExtensionForMime(p.MimeType)
		path := filepath.Join(dir, name)
		if err := s.writeArtifact(ctx, path, p.ArtifactID, getContent); err != nil {
			return nil, err
		}
		rel, relErr := filepath.Rel(s.base, path)
		if relErr != nil {
			return nil, domain.WrapE(domain.KindSinkTransportFailure, relErr, "relativizing shipped path")
		}
		refs[p.ArtifactID.String()] = "fs://" + filepath.ToSlash(rel)
	}

	frozen := m
	frozen.DestinationRefs = refs
	if err := s.writeManifest(dir, frozen); err != nil {
		return nil, err
	}

	log.Info(log.CatSink, "shipment written", "manifest_id", m.ManifestID, "dir", dir, "artifacts", len(m.Pointers))
	return refs, nil
}

func (s *FilesystemSink) resolveShipmentDir(m domain.ShipmentManifest) (string, error) {
	_, body, err := sanitize.ParseLocation(m.Destination)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(body, "/") || filepath.IsAbs(body) {
		return "", domain.E(domain.KindPathViolation, "destination %q is absolute", m.Destination)
	}
	rel := sanitize.NeutralizeRel(body)
	resolved, err := sanitize.ResolveUnderBase(s.base, rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, m.ManifestID.String()), nil
}

func (s *FilesystemSink) writeArtifact(ctx context.Context, path string, artifactID uuid.UUID, getContent ContentGetter) error {
	rc, err := getContent(ctx, artifactID)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return domain.WrapE(domain.KindSinkTransportFailure, err, "creating shipped file")
	}
	_, err = io.Copy(f, rc)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return domain.WrapE(domain.KindSinkTransportFailure, err, "writing shipped file")
	}
	return nil
}

func (s *FilesystemSink) writeManifest(dir string, m domain.ShipmentManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return domain.WrapE(domain.KindSinkTransportFailure, err, "encoding manifest")
	}
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return domain.WrapE(domain.KindSinkTransportFailure, err, "writing manifest.json")
	}
	return nil
}
