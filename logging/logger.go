package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger defines the minimal structured logging interface used throughout
// the module. Args are slog-style alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultLogger creates a JSON slog Logger writing to the given output
// (os.Stdout when nil) at the given level.
func NewDefaultLogger(out io.Writer, level slog.Level) Logger {
	if out == nil {
		out = os.Stdout
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return NewSlogAdapter(slog.New(handler))
}

// NoOpLogger discards all log messages. Useful for testing or when logging
// is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// OrNoOp returns l, or a NoOpLogger when l is nil, so call sites never need
// a nil check.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// FlowLogger decorates a Logger with stable contextual attributes (component
// and flow id) plus domain helpers. It is cheap to copy via the With*
// methods.
type FlowLogger struct {
	logger    Logger
	component string
	flowID    string
}

// NewFlowLogger wraps base (NoOpLogger when nil) for the given component.
func NewFlowLogger(base Logger, component string) *FlowLogger {
	return &FlowLogger{logger: OrNoOp(base), component: component}
}

// WithFlow returns a copy bound to the given flow id.
func (l *FlowLogger) WithFlow(flowID string) *FlowLogger {
	nl := *l
	nl.flowID = flowID
	return &nl
}

func (l *FlowLogger) attrs(args []any) []any {
	out := make([]any, 0, len(args)+4)
	if l.component != "" {
		out = append(out, "component", l.component)
	}
	if l.flowID != "" {
		out = append(out, "flow_id", l.flowID)
	}
	return append(out, args...)
}

// Debug logs at debug level with the bound context attached.
func (l *FlowLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, l.attrs(args)...) }

// Info logs at info level with the bound context attached.
func (l *FlowLogger) Info(msg string, args ...any) { l.logger.Info(msg, l.attrs(args)...) }

// Warn logs at warn level with the bound context attached.
func (l *FlowLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, l.attrs(args)...) }

// Error logs at error level with the bound context attached.
func (l *FlowLogger) Error(msg string, args ...any) { l.logger.Error(msg, l.attrs(args)...) }

// LogToolCall records execution details for one tool invocation.
func (l *FlowLogger) LogToolCall(tool, callID string, dur time.Duration, err error) {
	args := []any{"tool", tool, "tool_call_id", callID, "duration_ms", dur.Milliseconds()}
	if err != nil {
		l.Error("tool.call.failed", append(args, "error", err.Error())...)
		return
	}
	l.Info("tool.call.completed", args...)
}

// LogModelCall records latency and token usage for one completion call.
func (l *FlowLogger) LogModelCall(model string, totalTokens int, dur time.Duration, err error) {
	args := []any{"model", model, "total_tokens", totalTokens, "duration_ms", dur.Milliseconds()}
	if err != nil {
		l.Error("model.call.failed", append(args, "error", err.Error())...)
		return
	}
	l.Info("model.call.completed", args...)
}

// LogRetrieval records one vector search round trip.
func (l *FlowLogger) LogRetrieval(backend, scopeID string, matches int, dur time.Duration, err error) {
	args := []any{"backend", backend, "scope_id", scopeID, "matches", matches, "duration_ms", dur.Milliseconds()}
	if err != nil {
		l.Error("retrieval.failed", append(args, "error", err.Error())...)
		return
	}
	l.Debug("retrieval.completed", args...)
}
