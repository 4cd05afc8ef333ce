package badger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/storekit/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	info, err := os.Stat(tmpDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_NotADirectory(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(tmpFile, []byte("x"), 0644))

	_, err := OpenBackend(tmpFile, false)
	assert.Error(t, err)
}

func TestOpenBackend_Options(t *testing.T) {
	backend, err := OpenBackend("", true, WithLogger(slog.Default()), WithPoolSize(4))
	require.NoError(t, err)
	defer backend.Close()
	assert.Equal(t, 4, backend.poolSize)

	_, err = OpenBackend("", true, WithPoolSize(0))
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	assert.False(t, backend.IsClosed())
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	// closing twice is a no-op
	require.NoError(t, backend.Close())

	_, err = Await(backend.Open("t", 1, storage.OpenOptions{}))
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	_, err = backend.Databases()
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestBackend_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	conn, err := OpenSync(backend, "t", 1, mocksUpgrade)
	require.NoError(t, err)
	_, err = runTx(t, conn, "mocks", storage.ReadWrite, func(s storage.ObjectStore) storage.Request {
		return s.Add(map[string]any{"url": "/a"}, nil)
	})
	require.NoError(t, err)
	conn.Close()
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	conn, err = OpenSync(backend, "t", 0, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, uint64(1), conn.Version())

	result, err := runTx(t, conn, "mocks", storage.ReadOnly, func(s storage.ObjectStore) storage.Request {
		return s.Count(nil)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result)
}
