package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"openapi-mcp-server/internal/apierr"
)

// BackupManager keeps rolling copies of the database file. Before a
// destructive re-ingest the converter takes one copy; only the newest
// maxKeep backups survive.
type BackupManager struct {
	dbPath    string
	backupDir string
	maxKeep   int
}

// NewBackupManager creates a backup manager for the given database file.
func NewBackupManager(dbPath, backupDir string, maxKeep int) *BackupManager {
	if maxKeep <= 0 {
		maxKeep = 10
	}
	return &BackupManager{dbPath: dbPath, backupDir: backupDir, maxKeep: maxKeep}
}

// CreateBackup copies the database file to
// backups/{stem}_{YYYYMMDD_HHMMSS}{suffix} and prunes old copies. A missing
// database file is a no-op, not an error.
func (bm *BackupManager) CreateBackup() (string, error) {
	if _, err := os.Stat(bm.dbPath); os.IsNotExist(err) {
		return "", nil
	}
	if err := os.MkdirAll(bm.backupDir, 0o750); err != nil {
		return "", apierr.NewStorage("failed to create backup directory", err)
	}

	base := filepath.Base(bm.dbPath)
	suffix := filepath.Ext(base)
	stem := strings.TrimSuffix(base, suffix)
	timestamp := time.Now().Format("20060102_150405")
	target := filepath.Join(bm.backupDir, fmt.Sprintf("%s_%s%s", stem, timestamp, suffix))

	if err := copyFile(bm.dbPath, target); err != nil {
		return "", apierr.NewStorage("failed to write database backup", err)
	}
	if err := bm.prune(stem, suffix); err != nil {
		return "", err
	}
	return target, nil
}

// ListBackups returns the existing backup paths, newest first.
func (bm *BackupManager) ListBackups() ([]string, error) {
	base := filepath.Base(bm.dbPath)
	suffix := filepath.Ext(base)
	stem := strings.TrimSuffix(base, suffix)
	return bm.matching(stem, suffix)
}

func (bm *BackupManager) matching(stem, suffix string) ([]string, error) {
	pattern := filepath.Join(bm.backupDir, stem+"_*"+suffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, apierr.NewStorage("failed to list backups", err)
	}
	// Timestamped names sort lexically by age; reverse for newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

func (bm *BackupManager) prune(stem, suffix string) error {
	matches, err := bm.matching(stem, suffix)
	if err != nil {
		return err
	}
	for _, stale := range matches[min(len(matches), bm.maxKeep):] {
		if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
			return apierr.NewStorage("failed to remove stale backup", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
