package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbflow/kbflow/core"
)

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*InMemoryStore)(nil)

func TestInMemoryStore_GetCreatesLazily(t *testing.T) {
	store := NewInMemoryStore()

	sess, err := store.Get("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", sess.ID)
	assert.Empty(t, sess.Messages)
}

func TestInMemoryStore_AppendMessages(t *testing.T) {
	store := NewInMemoryStore()

	msg := core.FlowMessage{Message: core.NewUserMessage("what is pgvector?")}
	require.NoError(t, store.AppendMessages("chat-1", msg))

	sess, err := store.Get("chat-1")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, "what is pgvector?", sess.Messages[0].Content)
}

func TestInMemoryStore_GetReturnsClone(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.AppendMessages("chat-1", core.FlowMessage{Message: core.NewUserMessage("hi")}))

	sess, err := store.Get("chat-1")
	require.NoError(t, err)
	sess.Messages[0].Content = "mutated"
	sess.MergeState(map[string]any{"leak": true})

	fresh, err := store.Get("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "hi", fresh.Messages[0].Content)
	assert.NotContains(t, fresh.State, "leak")
}

func TestInMemoryStore_ApplyDelta(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.ApplyDelta("chat-1", map[string]any{"scope": "docs"}))
	require.NoError(t, store.ApplyDelta("chat-1", map[string]any{"turns": 2}))

	sess, err := store.Get("chat-1")
	require.NoError(t, err)
	assert.Equal(t, "docs", sess.State["scope"])
	assert.Equal(t, 2, sess.State["turns"])
}
