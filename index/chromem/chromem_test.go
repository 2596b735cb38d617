package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbflow/kbflow/index"
	"github.com/kbflow/kbflow/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&testutil.StaticEmbedder{Dim: 8})
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, s *Store, scope string, docs ...index.Document) {
	t.Helper()
	require.NoError(t, s.Upsert(context.Background(), scope, "", docs))
}

func TestStore_UpsertAndSearch(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "docs",
		testutil.Doc("goroutines", "goroutines are lightweight threads", "https://go.dev/1"),
		testutil.Doc("channels", "channels pass values between goroutines", "https://go.dev/2"),
		testutil.Doc("context", "context carries deadlines and cancellation", "https://go.dev/3"),
	)

	matches, err := s.Search(context.Background(), "docs", "goroutines are lightweight threads")
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	// The exact query embedding matches its own document best.
	assert.Equal(t, "goroutines", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
	assert.Equal(t, "goroutines are lightweight threads", matches[0].Metadata[index.MetaContent])
	assert.Equal(t, "https://go.dev/1", matches[0].Metadata[index.MetaURL])
}

func TestStore_SearchScopesAreIsolated(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "docs-a", testutil.Doc("a1", "alpha text", ""))
	seed(t, s, "docs-b", testutil.Doc("b1", "beta text", ""))

	matches, err := s.Search(context.Background(), "docs-a", "alpha text")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a1", matches[0].ID)
}

func TestStore_SearchEmptyScope(t *testing.T) {
	s := newTestStore(t)

	matches, err := s.Search(context.Background(), "empty", "anything")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_SearchUnknownScopeCreatesNoCollection(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "docs", testutil.Doc("d1", "some text", ""))

	_, err := s.Search(context.Background(), "ghost", "anything")
	require.NoError(t, err)

	names := make([]string, 0, 1)
	for name := range s.db.ListCollections() {
		names = append(names, name)
	}
	assert.Equal(t, []string{"kb-docs"}, names)
}

func TestStore_SearchExcludesIDs(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "docs",
		testutil.Doc("d1", "first document", ""),
		testutil.Doc("d2", "second document", ""),
	)

	matches, err := s.Search(context.Background(), "docs", "first document",
		index.WithExcludeIDs("d1"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d2", matches[0].ID)
}

func TestStore_SearchRespectsTopK(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "docs",
		testutil.Doc("d1", "one", ""),
		testutil.Doc("d2", "two", ""),
		testutil.Doc("d3", "three", ""),
	)

	matches, err := s.Search(context.Background(), "docs", "one", index.WithTopK(2))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestStore_UpsertOverwritesByID(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "docs", testutil.Doc("d1", "original text", ""))
	seed(t, s, "docs", testutil.Doc("d1", "replacement text", ""))

	matches, err := s.Search(context.Background(), "docs", "replacement text")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "replacement text", matches[0].Metadata[index.MetaContent])
}

func TestStore_DeleteByScope(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "docs", testutil.Doc("d1", "text", ""))

	require.NoError(t, s.DeleteByScope(context.Background(), "docs"))

	matches, err := s.Search(context.Background(), "docs", "text")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_DeleteByIDs(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "docs",
		testutil.Doc("d1", "first", ""),
		testutil.Doc("d2", "second", ""),
	)

	require.NoError(t, s.DeleteByIDs(context.Background(), []string{"d1", "missing"}))

	matches, err := s.Search(context.Background(), "docs", "second")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d2", matches[0].ID)
}

func TestStore_ProcessUsesConfiguredTopN(t *testing.T) {
	s, err := New(&testutil.StaticEmbedder{Dim: 8}, func(o *Options) {
		o.TopN = 1
	})
	require.NoError(t, err)

	passages := s.Process("q", []index.Match{
		{ID: "low", Score: 0.2},
		{ID: "high", Score: 0.9},
	})
	require.Len(t, passages, 1)
	assert.Equal(t, "high", passages[0].ID)
}
