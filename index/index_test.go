package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessMatches_SortsTruncatesAndStamps(t *testing.T) {
	matches := []Match{
		{ID: "mid", Score: 0.5, Metadata: map[string]string{MetaContent: "mid text"}},
		{ID: "high", Score: 0.9, Metadata: map[string]string{MetaContent: "high text", MetaURL: "https://a"}},
		{ID: "low", Score: 0.1},
	}

	passages := ProcessMatches(matches, 2)
	require.Len(t, passages, 2)

	assert.Equal(t, "high", passages[0].ID)
	assert.Equal(t, "high text", passages[0].Content)
	assert.Equal(t, "https://a", passages[0].URL)
	assert.Equal(t, "mid", passages[1].ID)

	// One correlation id per call, shared across passages.
	assert.NotEmpty(t, passages[0].CorrelationID)
	assert.Equal(t, passages[0].CorrelationID, passages[1].CorrelationID)

	// Input order is untouched.
	assert.Equal(t, "mid", matches[0].ID)
}

func TestProcessMatches_FreshCorrelationIDPerCall(t *testing.T) {
	matches := []Match{{ID: "a", Score: 1}}
	first := ProcessMatches(matches, 5)
	second := ProcessMatches(matches, 5)
	assert.NotEqual(t, first[0].CorrelationID, second[0].CorrelationID)
}

func TestProcessMatches_StableForEqualScores(t *testing.T) {
	matches := []Match{
		{ID: "first", Score: 0.5},
		{ID: "second", Score: 0.5},
	}
	passages := ProcessMatches(matches, 0)
	require.Len(t, passages, 2)
	assert.Equal(t, "first", passages[0].ID)
	assert.Equal(t, "second", passages[1].ID)
}

func TestProcessMatches_Empty(t *testing.T) {
	assert.Empty(t, ProcessMatches(nil, 5))
}

func TestApplySearchOptions(t *testing.T) {
	cfg := ApplySearchOptions(nil)
	assert.Equal(t, DefaultTopK, cfg.TopK)
	assert.Empty(t, cfg.ExcludeIDs)

	cfg = ApplySearchOptions([]SearchOption{
		WithTopK(25),
		WithExcludeIDs("a", "b"),
		WithExcludeIDs("c"),
	})
	assert.Equal(t, 25, cfg.TopK)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.ExcludeIDs)

	// Non-positive topK keeps the default.
	cfg = ApplySearchOptions([]SearchOption{WithTopK(0)})
	assert.Equal(t, DefaultTopK, cfg.TopK)
}

func TestDocument_DisplayContent(t *testing.T) {
	assert.Equal(t, "pretty", Document{Text: "raw", Content: "pretty"}.DisplayContent())
	assert.Equal(t, "raw", Document{Text: "raw"}.DisplayContent())
}
