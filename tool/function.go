package tool

import (
	"context"
	"fmt"

	"github.com/kbflow/kbflow/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// Tool. It validates supplied arguments against its schema before execution
// and normalizes failures so callers always receive *ToolError with
// consistent codes: VALIDATION_ERROR for schema mismatches, EXECUTION_ERROR
// for underlying failures, custom codes preserved when the function returns
// *ToolError directly.
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (*Result, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and
// function.
//
// Example:
//
//	lookup := tool.NewFunctionTool(
//	  "lookup",
//	  "Look up a fact in the knowledge base",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "query": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"query"},
//	  },
//	  func(ctx context.Context, args map[string]any) (*tool.Result, error) {
//	    return &tool.Result{Content: "X is Y"}, nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (*Result, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct via
// reflection, equivalent to util.CreateSchema(structType).
//
// Example:
//
//	type LookupArgs struct {
//	  Query string `json:"query" description:"Free-text search query"`
//	}
//	lookup := tool.NewFunctionToolFromStruct("lookup", "Look up a fact", LookupArgs{}, fn)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (*Result, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name used in declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural-language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Execute validates args against the declared schema then invokes the
// underlying function.
func (t *FunctionTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return nil, toolErr
		}
		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	return result, nil
}
