package sessionstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.zip")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	ctx := context.Background()

	exists, err := store.Exists(ctx, "tenant-a")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Save(ctx, "tenant-a", writeSnapshot(t, "blob-v1")))

	exists, err = store.Exists(ctx, "tenant-a")
	require.NoError(t, err)
	assert.True(t, exists)

	out := filepath.Join(t.TempDir(), "restored.zip")
	require.NoError(t, store.Restore(ctx, "tenant-a", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "blob-v1", string(data))

	// Save replaces the previous blob.
	require.NoError(t, store.Save(ctx, "tenant-a", writeSnapshot(t, "blob-v2")))
	require.NoError(t, store.Restore(ctx, "tenant-a", out))
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "blob-v2", string(data))

	require.NoError(t, store.Delete(ctx, "tenant-a"))
	err = store.Restore(ctx, "tenant-a", out)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete(ctx, "tenant-a"))
}

func TestMemoryStoreIsolatesSessions(t *testing.T) {
	store := NewMemory()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tenant-a", writeSnapshot(t, "a")))
	require.NoError(t, store.Save(ctx, "tenant-b", writeSnapshot(t, "b")))
	require.NoError(t, store.Delete(ctx, "tenant-a"))

	exists, err := store.Exists(ctx, "tenant-b")
	require.NoError(t, err)
	assert.True(t, exists)
}

// Postgres tests run only when TEST_SESSION_DSN points at a database with
// the snapshot table created.
func newPGStore(t *testing.T) Store {
	t.Helper()
	dsn := os.Getenv("TEST_SESSION_DSN")
	if dsn == "" {
		t.Skip("TEST_SESSION_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := NewPostgres(ctx, PostgresConfig{
		DSN: dsn,
		TableInfo: TableInfo{
			Table:         "wa_sessions",
			SessionColumn: "session_name",
			DataColumn:    "data",
			UpdatedColumn: "updated_at",
		},
		RequestTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestPostgresStoreLifecycle(t *testing.T) {
	store := newPGStore(t)
	ctx := context.Background()
	session := "store-test-" + time.Now().Format("150405.000")
	t.Cleanup(func() { _ = store.Delete(context.Background(), session) })

	exists, err := store.Exists(ctx, session)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Save(ctx, session, writeSnapshot(t, "pg-blob")))

	exists, err = store.Exists(ctx, session)
	require.NoError(t, err)
	assert.True(t, exists)

	out := filepath.Join(t.TempDir(), "restored.zip")
	require.NoError(t, store.Restore(ctx, session, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "pg-blob", string(data))

	require.NoError(t, store.Delete(ctx, session))
	err = store.Restore(ctx, session, out)
	assert.ErrorIs(t, err, ErrNotFound)
}
