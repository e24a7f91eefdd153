package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "vaultx_theme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "vaultx_theme", "dark"))
	require.NoError(t, s.Set(ctx, "credentials/gemini", "key-1"))
	require.NoError(t, s.Set(ctx, "vaultx_theme", "light"))

	v, ok, err := s.Get(ctx, "vaultx_theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "light", v)

	v, ok, err = s.Get(ctx, "credentials/gemini")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "key-1", v)

	require.NoError(t, s.Set(ctx, "empty", ""))
	v, ok, err = s.Get(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir)
	require.NoError(t, err)
	exerciseStore(t, s)

	reopened, err := NewFile(dir)
	require.NoError(t, err)
	v, ok, err := reopened.Get(context.Background(), "credentials/gemini")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "key-1", v)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kv.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer reopened.Close()
	v, ok, err := reopened.Get(context.Background(), "vaultx_theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "light", v)
}

func TestOpenBySchemeRejectsUnknown(t *testing.T) {
	_, err := Open(context.Background(), "redis://localhost", nil)
	require.Error(t, err)
	_, err = Open(context.Background(), "no-scheme", nil)
	require.Error(t, err)
}

func TestOpenFileAndSQLiteSchemes(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(context.Background(), "file://"+filepath.Join(dir, "kv"), nil)
	require.NoError(t, err)
	_, isFile := s.(*File)
	assert.True(t, isFile)

	s, err = Open(context.Background(), "sqlite://"+filepath.Join(dir, "kv.db"), nil)
	require.NoError(t, err)
	defer s.Close()
	_, isSQLite := s.(*SQLite)
	assert.True(t, isSQLite)

	s, err = Open(context.Background(), "memory://", nil)
	require.NoError(t, err)
	_, isMemory := s.(*Memory)
	assert.True(t, isMemory)
}
