package chat_test

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatservice "github.com/zhouzirui/astro-tavern/backend/internal/service/chat"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := chatservice.NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	id := store.Create()
	session := sampleSession()
	session.CreatedAt = time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Microsecond)
	require.NoError(t, store.Put(ctx, id, session))
	t.Cleanup(func() { _ = store.Delete(context.Background(), id) })

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)

	got, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, session.History, got.History)
	assert.JSONEq(t, string(session.ChartData), string(got.ChartData))
	assert.True(t, session.CreatedAt.Equal(got.CreatedAt))

	removed, err := store.DeleteCreatedBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 1)

	_, ok, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresStoreClosesThroughStore(t *testing.T) {
	var store chatservice.Store = &chatservice.PostgresStore{}
	_, ok := store.(io.Closer)
	assert.True(t, ok, "shutdown closes the pool via io.Closer")
}
