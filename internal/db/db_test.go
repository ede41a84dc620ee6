package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesWorkspace(t *testing.T) {
	ws := t.TempDir()
	conn, err := Open(Config{Workspace: ws})
	require.NoError(t, err)
	defer conn.Close()

	assert.FileExists(t, Path(ws))
	var fk int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
	assert.Equal(t, filepath.Join(ws, ".hireline", "documents"), DocumentsDir(ws))
}

func TestOpenExplicitFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "other.db")
	conn, err := Open(Config{File: file})
	require.NoError(t, err)
	defer conn.Close()
	assert.FileExists(t, file)
}
