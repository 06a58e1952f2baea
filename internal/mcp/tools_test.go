package mcp

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDepotTools_SchemasComplete(t *testing.T) {
	for _, tool := range DepotTools() {
		t.Run(tool.Name, func(t *testing.T) {
			require.NotEmpty(t, tool.Name)
			require.NotEmpty(t, tool.Description)
			require.NotNil(t, tool.InputSchema)
			require.Equal(t, "object", tool.InputSchema.Type)

			// Every required property must be defined
			for _, name := range tool.InputSchema.Required {
				require.Contains(t, tool.InputSchema.Properties, name,
					"required property %q should be defined", name)
			}
		})
	}
}

func TestToolStage_RoleEnum(t *testing.T) {
	roleProp := ToolStage.InputSchema.Properties["role"]
	require.NotNil(t, roleProp)
	for _, role := range []string{"final_output", "supporting", "plan", "log", "other"} {
		require.True(t, slices.Contains(roleProp.Enum, role),
			"role enum should include %q", role)
	}
}

func TestToolPurge_PolicyEnum(t *testing.T) {
	policyProp := ToolPurge.InputSchema.Properties["policy"]
	require.NotNil(t, policyProp)
	for _, policy := range []string{"immediate", "retain_24h", "retain_7d", "manual"} {
		require.True(t, slices.Contains(policyProp.Enum, policy),
			"policy enum should include %q", policy)
	}
}

func TestDepotTools_UniqueNames(t *testing.T) {
	seen := make(map[string]bool)
	for _, tool := range DepotTools() {
		require.False(t, seen[tool.Name], "duplicate tool name %q", tool.Name)
		seen[tool.Name] = true
	}
}
