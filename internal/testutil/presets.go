package testutil

import (
	"time"

	"github.com/zjrosen/depotgate/internal/domain"
)

// ShippableTask returns a final-output pointer and a deliverable whose
// spec that pointer satisfies. Handy as the minimal happy-path fixture.
func ShippableTask(tenantID, rootTaskID string) (domain.ArtifactPointer, domain.Deliverable) {
	p := NewPointer(tenantID, rootTaskID, Role(domain.RoleFinalOutput))
	d := NewDeliverable(tenantID, rootTaskID, RequireRoles(domain.RoleFinalOutput))
	return p, d
}

// WithStandardTaskData adds a small mixed dataset for listing tests:
// three live pointers with distinct roles and timestamps plus one
// purged pointer that live listings must skip.
func (b *Builder) WithStandardTaskData(tenantID, rootTaskID string) *Builder {
	now := time.Now().UTC()
	return b.
		WithPointer(NewPointer(tenantID, rootTaskID,
			Role(domain.RoleFinalOutput), Content([]byte("final report")),
			CreatedAt(now.Add(2*time.Second)))).
		WithPointer(NewPointer(tenantID, rootTaskID,
			Role(domain.RolePlan), MimeType("text/markdown"),
			CreatedAt(now.Add(time.Second)))).
		WithPointer(NewPointer(tenantID, rootTaskID,
			Role(domain.RoleSupporting), CreatedAt(now))).
		WithPointer(NewPointer(tenantID, rootTaskID,
			Role(domain.RoleLog), CreatedAt(now.Add(-time.Second)),
			Purged(now)))
}
