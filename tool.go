package medic

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolName is the closed set of tools the reasoning model may call.
type ToolName string

const (
	ToolWebSearch          ToolName = "tavily_web_search"
	ToolLabExplanation     ToolName = "generate_lab_explanation"
	ToolImagingExplanation ToolName = "generate_imaging_explanation"
	ToolMedicalSummary     ToolName = "generate_medical_summary"
)

// ToolNames lists every known tool in declaration order.
var ToolNames = []ToolName{
	ToolWebSearch,
	ToolLabExplanation,
	ToolImagingExplanation,
	ToolMedicalSummary,
}

// ParseToolName maps a model-supplied name to a known ToolName.
func ParseToolName(s string) (ToolName, error) {
	for _, n := range ToolNames {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%q: %w", s, ErrToolNotFound)
}

// Cacheable reports whether identical calls within one request may be
// served from cache. Web search results are time-sensitive.
func (n ToolName) Cacheable() bool {
	return n != ToolWebSearch
}

// Tool is the declaration advertised to the model.
type Tool struct {
	Name        ToolName
	Description string
	Parameters  json.RawMessage
}

// ToolExecutor runs tools. Execute returns error for infrastructure failures
// only; unknown tools, invalid arguments and handler failures are reported as
// a ToolResult with IsError set so the model can recover.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (*ToolResult, error)
}

// ToolResult represents the outcome of a tool execution.
type ToolResult struct {
	Payload json.RawMessage
	IsError bool
	Cached  bool
}
