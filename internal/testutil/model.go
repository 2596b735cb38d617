package testutil

import (
	"context"

	"github.com/kbflow/kbflow/core"
	"github.com/kbflow/kbflow/model"
)

// ScriptedStream replays a fixed chunk sequence and then reports a
// configurable terminal error. It implements model.Stream.
type ScriptedStream struct {
	Chunks   []model.Chunk
	FinalErr error

	pos    int
	Closed bool
}

// NewScriptedStream builds a stream that yields the given chunks in order.
func NewScriptedStream(chunks ...model.Chunk) *ScriptedStream {
	return &ScriptedStream{Chunks: chunks}
}

func (s *ScriptedStream) Next() bool {
	if s.pos >= len(s.Chunks) {
		return false
	}
	s.pos++
	return true
}

func (s *ScriptedStream) Current() model.Chunk { return s.Chunks[s.pos-1] }

func (s *ScriptedStream) Err() error {
	if s.pos >= len(s.Chunks) {
		return s.FinalErr
	}
	return nil
}

func (s *ScriptedStream) Close() error {
	s.Closed = true
	return nil
}

// ScriptedProvider returns pre-built streams in order and records every
// request it receives. Calls beyond the scripted streams get an empty
// stream, which flows treat as a terminal turn.
type ScriptedProvider struct {
	Streams   []model.Stream
	StreamErr error

	Requests []model.Request
}

func (p *ScriptedProvider) Stream(_ context.Context, req model.Request) (model.Stream, error) {
	p.Requests = append(p.Requests, req)
	if p.StreamErr != nil {
		return nil, p.StreamErr
	}
	if len(p.Requests) > len(p.Streams) {
		return NewScriptedStream(), nil
	}
	return p.Streams[len(p.Requests)-1], nil
}

func (p *ScriptedProvider) Info() model.Info {
	return model.Info{Name: "scripted", Provider: "testutil", SupportsTools: true}
}

// TextChunk is a content-only chunk.
func TextChunk(content string) model.Chunk {
	return model.Chunk{Content: content}
}

// RoleChunk announces the assistant role, optionally with content.
func RoleChunk(role core.Role, content string) model.Chunk {
	return model.Chunk{Role: role, Content: content}
}

// ToolChunk is a single tool-call fragment.
func ToolChunk(index int, id, name, arguments string) model.Chunk {
	return model.Chunk{ToolCalls: []model.ToolCallDelta{{
		Index:     index,
		ID:        id,
		Name:      name,
		Arguments: arguments,
	}}}
}

// UsageChunk reports token usage.
func UsageChunk(prompt, completion int) model.Chunk {
	return model.Chunk{Usage: &core.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}}
}
