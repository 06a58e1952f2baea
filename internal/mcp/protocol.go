// Package mcp provides the agent-tool façade of the depot: MCP tool
// definitions plus handlers dispatching onto the depot services.
package mcp

import (
	"context"
	"encoding/json"
)

// Tool defines an MCP tool that can be called.
// JSON field names match MCP protocol spec (camelCase).
type Tool struct {
	Name         string        `json:"name"`
	Title        string        `json:"title,omitempty"`
	Description  string        `json:"description"`
	InputSchema  *InputSchema  `json:"inputSchema"`            //nolint:tagliatelle // MCP protocol uses camelCase
	OutputSchema *OutputSchema `json:"outputSchema,omitempty"` //nolint:tagliatelle // MCP protocol uses camelCase
}

// OutputSchema defines the JSON Schema for tool output.
// When provided, servers MUST return structured results conforming to this schema.
type OutputSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]*PropertySchema `json:"properties,omitempty"`
	Required   []string                   `json:"required,omitempty"`
	Items      *PropertySchema            `json:"items,omitempty"` // For array types
}

// InputSchema defines the JSON Schema for tool input.
type InputSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]*PropertySchema `json:"properties,omitempty"`
	Required   []string                   `json:"required,omitempty"`
}

// PropertySchema defines a single property in a schema.
type PropertySchema struct {
	Type        string                     `json:"type"`
	Description string                     `json:"description,omitempty"`
	Properties  map[string]*PropertySchema `json:"properties,omitempty"` // For nested objects
	Items       *PropertySchema            `json:"items,omitempty"`      // For array items
	Required    []string                   `json:"required,omitempty"`   // For object types
	Enum        []string                   `json:"enum,omitempty"`
}

// ToolCallResult is the response for tools/call.
type ToolCallResult struct {
	Content           []ContentItem `json:"content"`
	IsError           bool          `json:"isError,omitempty"`           //nolint:tagliatelle // MCP protocol uses camelCase
	StructuredContent any           `json:"structuredContent,omitempty"` //nolint:tagliatelle // MCP protocol uses camelCase
}

// ContentItem represents a single content item in a tool result.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextContent creates a text content item.
func TextContent(text string) ContentItem {
	return ContentItem{Type: "text", Text: text}
}

// SuccessResult creates a successful tool result with text content.
func SuccessResult(text string) *ToolCallResult {
	return &ToolCallResult{
		Content: []ContentItem{TextContent(text)},
		IsError: false,
	}
}

// ErrorResult creates an error tool result with text content.
func ErrorResult(text string) *ToolCallResult {
	return &ToolCallResult{
		Content: []ContentItem{TextContent(text)},
		IsError: true,
	}
}

// StructuredResult creates a successful tool result with both text content and structured content.
// This is required when a tool defines an outputSchema - the structuredContent field must be populated.
func StructuredResult(textContent string, structured any) *ToolCallResult {
	return &ToolCallResult{
		Content:           []ContentItem{TextContent(textContent)},
		IsError:           false,
		StructuredContent: structured,
	}
}

// ToolHandler is a function that handles an MCP tool call.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error)

// ToolRegistrar is the interface an MCP server implements to accept
// depot tools.
type ToolRegistrar interface {
	RegisterTool(tool Tool, handler ToolHandler)
}
