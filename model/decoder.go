package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kbflow/kbflow/core"
)

// DeltaFunc receives each content delta together with the content
// accumulated so far. It is never called again once a tool-call fragment has
// been observed: tool-call turns are not meant for end-user display.
type DeltaFunc func(delta, content string)

// DecodeResult is the outcome of draining one completion stream: exactly one
// finished assistant message, the accumulated content and the last usage
// report seen, if any.
type DecodeResult struct {
	Message core.Message
	Content string
	Usage   *core.Usage
}

// callAccumulator reassembles one streamed tool call. The argument JSON
// arrives as a byte stream split across chunks, so Arguments only ever
// appends.
type callAccumulator struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// Decode drains the stream and assembles the finished assistant message.
//
// Role is sticky: once a chunk sets it, it stays until a later chunk
// explicitly changes it. Tool-call fragments are routed to per-index
// accumulators, so one chunk may carry fragments for several calls. If any
// tool call was seen the finished message is a tool-call assistant message;
// otherwise a plain assistant message with the accumulated content.
func Decode(stream Stream, onDelta DeltaFunc) (*DecodeResult, error) {
	defer func() { _ = stream.Close() }()

	role := core.RoleAssistant
	var content strings.Builder
	var usage *core.Usage
	calls := map[int]*callAccumulator{}

	for stream.Next() {
		ck := stream.Current()

		if ck.Role != "" {
			role = ck.Role
		}

		for _, tc := range ck.ToolCalls {
			acc, ok := calls[tc.Index]
			if !ok {
				acc = &callAccumulator{index: tc.Index}
				calls[tc.Index] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Name != "" {
				acc.name = tc.Name
			}
			acc.args.WriteString(tc.Arguments)
		}

		if ck.Content != "" {
			content.WriteString(ck.Content)
			if len(calls) == 0 && onDelta != nil {
				onDelta(ck.Content, content.String())
			}
		}

		if ck.Usage != nil {
			u := *ck.Usage // last report wins
			usage = &u
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("completion stream failed: %w", err)
	}

	msg := core.Message{Role: role, Content: content.String()}
	if len(calls) > 0 {
		ordered := make([]*callAccumulator, 0, len(calls))
		for _, acc := range calls {
			ordered = append(ordered, acc)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })
		for _, acc := range ordered {
			msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
				ID:        acc.id,
				Name:      acc.name,
				Arguments: acc.args.String(),
			})
		}
	}

	return &DecodeResult{Message: msg, Content: content.String(), Usage: usage}, nil
}
