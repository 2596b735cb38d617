// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing callers to plug
// in any structured logger. It also offers a contextual FlowLogger with
// helpers for the recurring domain events: tool executions, model calls and
// retrieval queries.
package logging
