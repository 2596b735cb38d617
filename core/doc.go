// Package core defines the shared conversation data model used across the
// flow orchestrator, the model layer and the retrieval tools: messages,
// tool calls, token usage and the flow-level message wrapper.
package core
