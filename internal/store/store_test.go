package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndGetChat(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.CreateChat(ctx, "my chat", "")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "private", created.Visibility, "empty visibility defaults to private")

	got, err := store.GetChat(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "my chat", got.Title)
}

func TestGetChat_NotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetChat(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateMessage_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	chat, err := store.CreateChat(ctx, "", "")
	require.NoError(t, err)

	created, err := store.CreateMessage(ctx, chat.ID, "assistant", map[string]string{"text": "hello", "image": "aWFt"}, "")
	require.NoError(t, err)
	assert.Equal(t, "[]", created.Attachments, "empty attachments default to an empty JSON array")

	messages, err := store.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "assistant", messages[0].Role)
	assert.Equal(t, map[string]string{"text": "hello", "image": "aWFt"}, messages[0].Parts)
}

func TestListMessages_OrderedByCreation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	chat, err := store.CreateChat(ctx, "", "")
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		_, err := store.CreateMessage(ctx, chat.ID, "user", map[string]string{"text": text}, "")
		require.NoError(t, err)
	}

	messages, err := store.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0].Parts["text"])
	assert.Equal(t, "two", messages[1].Parts["text"])
	assert.Equal(t, "three", messages[2].Parts["text"])
	assert.False(t, messages[1].CreatedAt.Before(messages[0].CreatedAt))
	assert.False(t, messages[2].CreatedAt.Before(messages[1].CreatedAt))
}

func TestListMessages_ScopedToChat(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.CreateChat(ctx, "", "")
	require.NoError(t, err)
	second, err := store.CreateChat(ctx, "", "")
	require.NoError(t, err)

	_, err = store.CreateMessage(ctx, first.ID, "user", map[string]string{"text": "mine"}, "")
	require.NoError(t, err)

	messages, err := store.ListMessages(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestTouchChat(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	chat, err := store.CreateChat(ctx, "", "")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.TouchChat(ctx, chat.ID))

	got, err := store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(chat.UpdatedAt), "touch must bump the activity timestamp")
}

func TestTouchChat_NotFound(t *testing.T) {
	store := openTestStore(t)
	require.ErrorIs(t, store.TouchChat(context.Background(), "missing"), ErrNotFound)
}

func TestListChats_MostRecentFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older, err := store.CreateChat(ctx, "older", "")
	require.NoError(t, err)
	_, err = store.CreateChat(ctx, "newer", "")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.TouchChat(ctx, older.ID))

	chats, err := store.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "older", chats[0].Title, "touched chat becomes most recent")
}
