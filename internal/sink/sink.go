// Package sink transfers shipped artifacts and their manifest to an
// external destination. Sinks never retry; transport failures surface
// to the shipping service, which leaves the deliverable re-attemptable.
package sink

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/sanitize"
)

// ContentGetter lazily opens the bytes for one artifact of the
// shipment. Sinks call it per artifact so payloads can stream.
type ContentGetter func(ctx context.Context, artifactID uuid.UUID) (io.ReadCloser, error)

// Sink pushes a manifest's artifacts to its destination. On success it
// returns the externalized reference for each artifact id.
type Sink interface {
	Ship(ctx context.Context, m domain.ShipmentManifest, getContent ContentGetter) (map[string]string, error)
}

// Selector maps destination schemes to sinks. The table is closed at
// composition time.
type Selector struct {
	sinks map[string]Sink
}

// NewSelector builds a selector over the given scheme table.
func NewSelector(sinks map[string]Sink) *Selector {
	table := make(map[string]Sink, len(sinks))
	for scheme, s := range sinks {
		table[scheme] = s
	}
	return &Selector{sinks: table}
}

// ForDestination resolves the sink serving a destination URI's scheme.
func (s *Selector) ForDestination(destination string) (Sink, error) {
	scheme, _, err := sanitize.ParseLocation(destination)
	if err != nil {
		return nil, domain.E(domain.KindUnknownSink, "destination %q has no scheme", destination)
	}
	sk, ok := s.sinks[scheme]
	if !ok {
		return nil, domain.E(domain.KindUnknownSink, "no sink registered for scheme %q", scheme)
	}
	return sk, nil
}

// Schemes returns the registered destination schemes.
func (s *Selector) Schemes() []string {
	out := make([]string, 0, len(s.sinks))
	for scheme := range s.sinks {
		out = append(out, scheme)
	}
	return out
}
