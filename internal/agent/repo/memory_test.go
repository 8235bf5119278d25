package repo

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	r := NewMemoryConversationRepository()
	ctx := context.Background()

	require.NoError(t, r.AppendMessages(ctx, "s1", []*schema.Message{
		schema.UserMessage("hello"),
		schema.AssistantMessage("hi", nil),
	}))

	history, err := r.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "hello", history.Messages[0].Content)
	assert.Equal(t, schema.Assistant, history.Messages[1].Role)

	n, err := r.MessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryRepositorySessionsAreIsolated(t *testing.T) {
	r := NewMemoryConversationRepository()
	ctx := context.Background()

	require.NoError(t, r.AppendMessages(ctx, "a", []*schema.Message{schema.UserMessage("x")}))

	history, err := r.LoadHistory(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, history.Messages)
}

func TestMemoryRepositoryClear(t *testing.T) {
	r := NewMemoryConversationRepository()
	ctx := context.Background()

	require.NoError(t, r.AppendMessages(ctx, "s1", []*schema.Message{schema.UserMessage("x")}))
	require.NoError(t, r.ClearHistory(ctx, "s1"))

	n, err := r.MessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryRepositoryLoadReturnsCopy(t *testing.T) {
	r := NewMemoryConversationRepository()
	ctx := context.Background()

	require.NoError(t, r.AppendMessages(ctx, "s1", []*schema.Message{schema.UserMessage("x")}))

	history, err := r.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	history.Messages[0] = schema.UserMessage("mutated")

	reloaded, err := r.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "x", reloaded.Messages[0].Content)
}
