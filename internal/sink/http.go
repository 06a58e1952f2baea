package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/log"
)

const defaultHTTPTimeout = 60 * time.Second

// HTTPSink POSTs a shipment as one multipart request: a manifest part
// followed by one part per artifact. It never retries; any transport
// failure or non-2xx response surfaces as SinkTransportFailure.
type HTTPSink struct {
	client *http.Client
}

var _ Sink = (*HTTPSink)(nil)

// NewHTTPSink creates the sink. A nil client gets a default with a
// 60-second timeout.
func NewHTTPSink(client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPSink{client: client}
}

// Ship streams the multipart body through a pipe so artifact bytes are
// never held in memory whole.
func (s *HTTPSink) Ship(ctx context.Context, m domain.ShipmentManifest, getContent ContentGetter) (map[string]string, error) {
	dest, err := url.Parse(m.Destination)
	if err != nil || (dest.Scheme != "http" && dest.Scheme != "https") || dest.Host == "" {
		return nil, domain.E(domain.KindInvalidLocation, "destination %q is not a valid http(s) URL", m.Destination)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(s.writeBody(ctx, mw, m, getContent))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.String(), pr)
	if err != nil {
		return nil, domain.WrapE(domain.KindSinkTransportFailure, err, "building shipment request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		// A body-side failure reaches us through the pipe; keep its kind.
		if domain.KindOf(err) == domain.KindArtifactMissing {
			return nil, err
		}
		return nil, domain.WrapE(domain.KindSinkTransportFailure, err, "posting shipment to %s", m.Destination)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, domain.E(domain.KindSinkTransportFailure, "sink at %s returned %d: %s", m.Destination, resp.StatusCode, string(body))
	}

	refs := make(map[string]string, len(m.Pointers))
	for _, p := range m.Pointers {
		refs[p.ArtifactID.String()] = m.Destination + "#" + p.ArtifactID.String()
	}

	log.Info(log.CatSink, "shipment posted", "manifest_id", m.ManifestID, "destination", m.Destination, "status", resp.StatusCode)
	return refs, nil
}

func (s *HTTPSink) writeBody(ctx context.Context, mw *multipart.Writer, m domain.ShipmentManifest, getContent ContentGetter) error {
	manifestPart, err := mw.CreateFormField("manifest")
	if err != nil {
		return fmt.Errorf("creating manifest part: %w", err)
	}
	if err := json.NewEncoder(manifestPart).Encode(m); err != nil {
		return fmt.Errorf("encoding manifest part: %w", err)
	}

	for _, p := range m.Pointers {
		if err := ctx.Err(); err != nil {
			return err
		}
		rc, err := getContent(ctx, p.ArtifactID)
		if err != nil {
			return err
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="artifacts"; filename=%q`,
			p.ArtifactID.String()+ExtensionForMime(p.MimeType)))
		if p.MimeType != "" {
			h.Set("Content-Type", p.MimeType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			rc.Close()
			return fmt.Errorf("creating artifact part: %w", err)
		}
		_, err = io.Copy(part, rc)
		if cerr := rc.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("streaming artifact %s: %w", p.ArtifactID, err)
		}
	}

	return mw.Close()
}
