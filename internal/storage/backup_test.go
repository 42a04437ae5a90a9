package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBackupCopiesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "mcp_server.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("payload"), 0o640))

	bm := NewBackupManager(dbPath, filepath.Join(dir, "backups"), 10)
	target, err := bm.CreateBackup()
	require.NoError(t, err)
	require.NotEmpty(t, target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Regexp(t, `mcp_server_\d{8}_\d{6}\.db$`, target)
}

func TestCreateBackupMissingDatabaseIsNoOp(t *testing.T) {
	dir := t.TempDir()
	bm := NewBackupManager(filepath.Join(dir, "absent.db"), filepath.Join(dir, "backups"), 10)
	target, err := bm.CreateBackup()
	require.NoError(t, err)
	assert.Empty(t, target)
}

func TestBackupRetention(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(backupDir, 0o750))
	dbPath := filepath.Join(dir, "api.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o640))

	// Seed stale timestamped copies older than anything CreateBackup writes.
	stamps := []string{
		"20200101_000001", "20200101_000002", "20200101_000003",
	}
	for _, stamp := range stamps {
		path := filepath.Join(backupDir, "api_"+stamp+".db")
		require.NoError(t, os.WriteFile(path, []byte("old"), 0o640))
	}

	bm := NewBackupManager(dbPath, backupDir, 2)
	_, err := bm.CreateBackup()
	require.NoError(t, err)

	backups, err := bm.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 2)

	// Newest first; the fresh copy leads.
	now := time.Now().Format("20060102")
	assert.Contains(t, backups[0], "api_"+now)
}
