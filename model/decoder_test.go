package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbflow/kbflow/core"
	"github.com/kbflow/kbflow/internal/testutil"
	"github.com/kbflow/kbflow/model"
)

func TestDecode_AccumulatesContent(t *testing.T) {
	stream := testutil.NewScriptedStream(
		testutil.RoleChunk(core.RoleAssistant, ""),
		testutil.TextChunk("Hello"),
		testutil.TextChunk(", "),
		testutil.TextChunk("world"),
	)

	var deltas []string
	var lastTotal string
	res, err := model.Decode(stream, func(delta, content string) {
		deltas = append(deltas, delta)
		lastTotal = content
	})
	require.NoError(t, err)

	assert.Equal(t, core.RoleAssistant, res.Message.Role)
	assert.Equal(t, "Hello, world", res.Message.Content)
	assert.Equal(t, "Hello, world", res.Content)
	assert.Equal(t, []string{"Hello", ", ", "world"}, deltas)
	assert.Equal(t, "Hello, world", lastTotal)
	assert.True(t, stream.Closed)
}

func TestDecode_DefaultsRoleToAssistant(t *testing.T) {
	stream := testutil.NewScriptedStream(testutil.TextChunk("hi"))

	res, err := model.Decode(stream, nil)
	require.NoError(t, err)
	assert.Equal(t, core.RoleAssistant, res.Message.Role)
}

func TestDecode_ReassemblesToolCallArguments(t *testing.T) {
	stream := testutil.NewScriptedStream(
		testutil.ToolChunk(0, "call_1", "search_knowledge_base", ""),
		testutil.ToolChunk(0, "", "", `{"que`),
		testutil.ToolChunk(0, "", "", `ry":"goroutines"`),
		testutil.ToolChunk(0, "", "", `}`),
	)

	res, err := model.Decode(stream, nil)
	require.NoError(t, err)

	require.Len(t, res.Message.ToolCalls, 1)
	tc := res.Message.ToolCalls[0]
	assert.Equal(t, "call_1", tc.ID)
	assert.Equal(t, "search_knowledge_base", tc.Name)
	assert.JSONEq(t, `{"query":"goroutines"}`, tc.Arguments)
}

func TestDecode_MultipleToolCallsOrderedByIndex(t *testing.T) {
	stream := testutil.NewScriptedStream(
		testutil.ToolChunk(1, "call_b", "lookup", `{"id":2}`),
		testutil.ToolChunk(0, "call_a", "search", `{"q":"x"}`),
	)

	res, err := model.Decode(stream, nil)
	require.NoError(t, err)

	require.Len(t, res.Message.ToolCalls, 2)
	assert.Equal(t, "call_a", res.Message.ToolCalls[0].ID)
	assert.Equal(t, "call_b", res.Message.ToolCalls[1].ID)
}

func TestDecode_SuppressesDeltasOnceToolCallSeen(t *testing.T) {
	// Some providers emit trailing commentary in the same turn as a tool
	// call; it must not reach onDelta.
	stream := testutil.NewScriptedStream(
		testutil.TextChunk("Let me check."),
		testutil.ToolChunk(0, "call_1", "search", `{}`),
		testutil.TextChunk(" stray text"),
	)

	var deltas []string
	res, err := model.Decode(stream, func(delta, _ string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Let me check."}, deltas)
	// Content still accumulates for the record even when not surfaced.
	assert.Equal(t, "Let me check. stray text", res.Content)
	require.Len(t, res.Message.ToolCalls, 1)
}

func TestDecode_LastUsageWins(t *testing.T) {
	stream := testutil.NewScriptedStream(
		testutil.TextChunk("ok"),
		testutil.UsageChunk(10, 1),
		testutil.UsageChunk(10, 5),
	)

	res, err := model.Decode(stream, nil)
	require.NoError(t, err)

	require.NotNil(t, res.Usage)
	assert.Equal(t, 10, res.Usage.PromptTokens)
	assert.Equal(t, 5, res.Usage.CompletionTokens)
	assert.Equal(t, 15, res.Usage.TotalTokens)
}

func TestDecode_NoUsageLeavesNil(t *testing.T) {
	stream := testutil.NewScriptedStream(testutil.TextChunk("ok"))

	res, err := model.Decode(stream, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Usage)
}

func TestDecode_StreamError(t *testing.T) {
	stream := testutil.NewScriptedStream(testutil.TextChunk("partial"))
	stream.FinalErr = errors.New("connection reset")

	res, err := model.Decode(stream, nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "completion stream failed")
	assert.True(t, stream.Closed)
}

func TestDecode_SameChunkToolFragmentSuppressesContent(t *testing.T) {
	stream := testutil.NewScriptedStream(model.Chunk{
		Content: "thinking...",
		ToolCalls: []model.ToolCallDelta{
			{Index: 0, ID: "call_1", Name: "search", Arguments: `{}`},
		},
	})

	called := false
	_, err := model.Decode(stream, func(_, _ string) { called = true })
	require.NoError(t, err)
	assert.False(t, called)
}
