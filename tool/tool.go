// Package tool implements the function-calling subsystem that lets agents
// invoke structured capabilities (retrieval, APIs, computations) with schema
// validated arguments and consistent error handling. Tools are the only
// place side effects happen in a flow.
package tool

import (
	"context"
	"fmt"

	"github.com/kbflow/kbflow/internal/util"
)

// Result is the return shape every tool produces: text content for the
// model plus an optional opaque payload (e.g. citation links) surfaced to
// the caller through the flow message it lands on.
type Result struct {
	Content string `json:"content"`
	Custom  any    `json:"custom,omitempty"`
}

// Tool defines a named, schema-typed callable the model may request.
//
// Implementations should:
//   - Provide clear, descriptive names and descriptions (the description is
//     the tool's usage contract as seen by the model)
//   - Define proper JSON schema for parameters
//   - Be safe for concurrent use when shared across flows
type Tool interface {
	// Name returns the unique identifier for this tool. Names must be
	// unique across all agents registered into one flow, since dispatch is
	// by name.
	Name() string

	// Description returns a human-readable description of what this tool
	// does, provided to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Execute runs the tool with arguments parsed from the model's call.
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// ValidationError represents parameter validation errors with detailed
// information.
type ValidationError = util.ValidationError

// Error codes attached to ToolError for uniform downstream handling.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
