package tool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbflow/kbflow/index"
	"github.com/kbflow/kbflow/internal/testutil"
	"github.com/kbflow/kbflow/tool"
)

func TestRetrieveTool_SurfacesRankedPassages(t *testing.T) {
	backend := &testutil.StaticIndexer{
		Matches: []index.Match{
			testutil.MatchWithContent("doc-low", 0.42, "low relevance", ""),
			testutil.MatchWithContent("doc-high", 0.91, "goroutines communicate via channels", "https://go.dev/doc"),
		},
		TopN: 2,
	}
	rt := tool.NewRetrieveTool(backend, "go-docs")

	res, err := rt.Execute(context.Background(), map[string]any{"query": "how do goroutines talk"})
	require.NoError(t, err)

	assert.Contains(t, res.Content, "[1] goroutines communicate via channels")
	assert.Contains(t, res.Content, "Source: https://go.dev/doc")
	assert.Contains(t, res.Content, "[2] low relevance")

	citations, ok := res.Custom.([]tool.Citation)
	require.True(t, ok)
	require.Len(t, citations, 2)
	assert.Equal(t, "doc-high", citations[0].ID)
	assert.Equal(t, 0.91, citations[0].Score)
	assert.NotEmpty(t, citations[0].CorrelationID)
	// One correlation id per retrieval call.
	assert.Equal(t, citations[0].CorrelationID, citations[1].CorrelationID)
}

func TestRetrieveTool_ExcludesPreviouslySurfaced(t *testing.T) {
	backend := &testutil.StaticIndexer{
		Matches: []index.Match{
			testutil.MatchWithContent("doc-1", 0.9, "first", ""),
			testutil.MatchWithContent("doc-2", 0.8, "second", ""),
		},
	}
	rt := tool.NewRetrieveTool(backend, "go-docs")

	_, err := rt.Execute(context.Background(), map[string]any{"query": "q1"})
	require.NoError(t, err)

	res, err := rt.Execute(context.Background(), map[string]any{"query": "q2"})
	require.NoError(t, err)

	require.Len(t, backend.SearchConfigs, 2)
	assert.Empty(t, backend.SearchConfigs[0].ExcludeIDs)
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, backend.SearchConfigs[1].ExcludeIDs)
	assert.Contains(t, res.Content, "No relevant passages")
}

func TestRetrieveTool_MissingQuery(t *testing.T) {
	rt := tool.NewRetrieveTool(&testutil.StaticIndexer{}, "go-docs")

	for _, args := range []map[string]any{
		{},
		{"query": ""},
		{"query": "   "},
		{"query": 7},
	} {
		_, err := rt.Execute(context.Background(), args)
		var toolErr *tool.ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, tool.CodeValidation, toolErr.Code)
	}
}

func TestRetrieveTool_SearchFailure(t *testing.T) {
	backend := &testutil.StaticIndexer{SearchErr: errors.New("connection refused")}
	rt := tool.NewRetrieveTool(backend, "go-docs")

	_, err := rt.Execute(context.Background(), map[string]any{"query": "q"})
	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeExecution, toolErr.Code)
	assert.Contains(t, toolErr.Message, "connection refused")
}

func TestRetrieveTool_TopKForwarded(t *testing.T) {
	backend := &testutil.StaticIndexer{}
	rt := tool.NewRetrieveTool(backend, "go-docs", func(o *tool.RetrieveOptions) {
		o.TopK = 3
	})

	_, err := rt.Execute(context.Background(), map[string]any{"query": "q"})
	require.NoError(t, err)
	require.Len(t, backend.SearchConfigs, 1)
	assert.Equal(t, 3, backend.SearchConfigs[0].TopK)
}

func TestRetrieveTool_NoResults(t *testing.T) {
	rt := tool.NewRetrieveTool(&testutil.StaticIndexer{}, "go-docs")

	res, err := rt.Execute(context.Background(), map[string]any{"query": "nothing"})
	require.NoError(t, err)
	assert.Equal(t, "No relevant passages found in the knowledge base.", res.Content)
	assert.Nil(t, res.Custom)
}
