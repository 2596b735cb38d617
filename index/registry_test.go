package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbflow/kbflow/index"
	"github.com/kbflow/kbflow/internal/testutil"
)

func TestRegistry_GetRegistered(t *testing.T) {
	r := index.NewRegistry()
	backend := &testutil.StaticIndexer{}
	r.Register("chromem", backend)

	got, err := r.Get("chromem")
	require.NoError(t, err)
	assert.Same(t, index.Indexer(backend), got)
}

func TestRegistry_UnknownKeyIsHardError(t *testing.T) {
	r := index.NewRegistry()
	r.Register("pgvector", &testutil.StaticIndexer{})

	_, err := r.Get("vectorize")
	require.ErrorIs(t, err, index.ErrUnknownBackend)
	// The error names both the missing key and what is configured.
	assert.Contains(t, err.Error(), "vectorize")
	assert.Contains(t, err.Error(), "pgvector")
}

func TestRegistry_KeysSorted(t *testing.T) {
	r := index.NewRegistry()
	r.Register("vectorize", &testutil.StaticIndexer{})
	r.Register("chromem", &testutil.StaticIndexer{})
	r.Register("pgvector", &testutil.StaticIndexer{})

	assert.Equal(t, []string{"chromem", "pgvector", "vectorize"}, r.Keys())
}
