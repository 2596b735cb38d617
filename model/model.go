package model

import (
	"context"

	"github.com/kbflow/kbflow/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// OutputSchema requests structured output: the model is constrained to emit
// JSON matching Schema.
type OutputSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// Request captures the normalized completion input produced by agents.
type Request struct {
	Model        string           `json:"model"`
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	OutputSchema *OutputSchema    `json:"output_schema,omitempty"`
	MaxTokens    int64            `json:"max_tokens,omitempty"`
	User         string           `json:"user,omitempty"`
}

// ToolCallDelta is a fragment of a streamed tool call. Fragments for one
// call share an Index; the first fragment establishes ID and Name, later
// ones append to Arguments.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Chunk is one normalized event from a completion stream. Absent fields are
// zero values: an empty Role means "unchanged", an empty Content means "no
// text delta in this event".
type Chunk struct {
	Role      core.Role       `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
	Usage     *core.Usage     `json:"usage,omitempty"`
}

// Stream is an incremental sequence of Chunks. The usage pattern follows the
// provider SDKs: loop on Next, read Current, then check Err once the loop
// ends.
type Stream interface {
	// Next advances to the next chunk, returning false at end of stream or
	// on error.
	Next() bool

	// Current returns the chunk at the current position.
	Current() Chunk

	// Err returns the terminal error, if any, after Next returned false.
	Err() error

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Provider is the minimal interface agents use to issue one streaming
// completion call.
type Provider interface {
	Stream(ctx context.Context, req Request) (Stream, error)

	// Info returns information about the provider implementation.
	Info() Info
}
