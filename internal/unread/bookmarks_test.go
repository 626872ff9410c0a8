package unread

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hr-portal/internal/events"
)

func newTestStore(t *testing.T) *SQLiteBookmarkStore {
	t.Helper()
	store, err := NewSQLiteBookmarkStore(filepath.Join(t.TempDir(), "bookmarks.db"))
	require.NoError(t, err, "Не удалось открыть тестовую базу закладок")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBookmarkStore_GetUnknownKey(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Get(context.Background(), "chat:1:2")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id, "неизвестная переписка - закладка в нуле")
}

func TestBookmarkStore_SetGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "chat:1:2", 7))
	id, err := store.Get(ctx, "chat:1:2")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)

	// Другая переписка - другая закладка.
	id, err = store.Get(ctx, "chat:1:3")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
}

func TestBookmarkStore_Monotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "chat:1:2", 10))
	require.NoError(t, store.Set(ctx, "chat:1:2", 4), "откат назад молча игнорируется")

	id, err := store.Get(ctx, "chat:1:2")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), id)

	require.NoError(t, store.Set(ctx, "chat:1:2", 15))
	id, err = store.Get(ctx, "chat:1:2")
	require.NoError(t, err)
	assert.Equal(t, uint64(15), id)
}

func TestBookmarkStore_Clear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "chat:1:2", 5))
	require.NoError(t, store.Set(ctx, "chat:1:3", 8))
	require.NoError(t, store.Clear(ctx))

	id, err := store.Get(ctx, "chat:1:2")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id, "logout стирает все закладки")
}

func TestComputeUnread(t *testing.T) {
	viewer := uint64(1)
	peer := uint64(2)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	messages := []events.ChatMessage{
		{ID: 1, FromID: peer, ToID: viewer, CreatedAt: base},
		{ID: 2, FromID: viewer, ToID: peer, CreatedAt: base.Add(time.Minute)},
		{ID: 3, FromID: peer, ToID: viewer, CreatedAt: base.Add(2 * time.Minute)},
		{ID: 4, FromID: peer, ToID: viewer, CreatedAt: base.Add(3 * time.Minute)},
	}

	assert.Equal(t, 3, ComputeUnread(messages, viewer, 0), "свои сообщения не считаются")
	assert.Equal(t, 2, ComputeUnread(messages, viewer, 1))
	assert.Equal(t, 0, ComputeUnread(messages, viewer, 4))
	assert.Equal(t, 0, ComputeUnread(nil, viewer, 0))
}
