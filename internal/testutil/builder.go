package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/depotgate/internal/domain"
	"github.com/zjrosen/depotgate/internal/infrastructure/sqlite"
)

// markData holds data for a requirement mark to be inserted.
type markData struct {
	tenantID      string
	deliverableID uuid.UUID
	name          string
}

// Builder accumulates metadata fixtures and inserts them through the
// repositories in the correct order.
type Builder struct {
	t            *testing.T
	db           *sqlite.DB
	pointers     []domain.ArtifactPointer
	deliverables []domain.Deliverable
	marks        []markData
}

// NewBuilder creates a builder for the given metadata database.
func NewBuilder(t *testing.T, db *sqlite.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db}
}

// WithPointer adds an artifact pointer row.
func (b *Builder) WithPointer(p domain.ArtifactPointer) *Builder {
	b.pointers = append(b.pointers, p)
	return b
}

// WithDeliverable adds a deliverable row.
func (b *Builder) WithDeliverable(d domain.Deliverable) *Builder {
	b.deliverables = append(b.deliverables, d)
	return b
}

// WithRequirementMark marks a named requirement as satisfied.
func (b *Builder) WithRequirementMark(tenantID string, deliverableID uuid.UUID, name string) *Builder {
	b.marks = append(b.marks, markData{tenantID, deliverableID, name})
	return b
}

// Build inserts all accumulated data into the database.
func (b *Builder) Build() {
	b.t.Helper()
	ctx := context.Background()
	for _, p := range b.pointers {
		require.NoError(b.t, b.db.ArtifactRepository().Insert(ctx, p))
	}
	for _, d := range b.deliverables {
		require.NoError(b.t, b.db.DeliverableRepository().Insert(ctx, d))
	}
	for _, m := range b.marks {
		require.NoError(b.t, b.db.RequirementMarkRepository().Mark(ctx, m.tenantID, m.deliverableID, m.name, time.Now().UTC()))
	}
}
