package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpMemoryToDisk(t *testing.T) {
	m := NewManager(zerolog.Nop())

	var err error
	m.DB, err = m.GetSqliteDB("")
	require.NoError(t, err)
	require.NoError(t, m.DB.Exec(`CREATE TABLE IF NOT EXISTS dump_rows (id INTEGER PRIMARY KEY)`).Error)
	require.NoError(t, m.DB.Exec(`INSERT INTO dump_rows (id) VALUES (1)`).Error)

	// no target path set yet
	require.Error(t, m.DumpMemoryToDisk())

	m.SqliteFilePath = filepath.Join(t.TempDir(), "session.db")
	require.NoError(t, m.DumpMemoryToDisk())

	info, err := os.Stat(m.SqliteFilePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// a second dump replaces the existing file
	require.NoError(t, m.DumpMemoryToDisk())
}

func TestGetBackupDBPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.db"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.db"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.db"), 0755))

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	for _, p := range paths {
		assert.Equal(t, ".db", filepath.Ext(p))
	}

	_, err = GetBackupDBPaths(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
