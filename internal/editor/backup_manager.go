// Package editor provides the host editor contract the translator reads
// from and writes back to, plus a file-backed implementation.
package editor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"md-translator/internal/logger"
	"md-translator/internal/types"
)

// DefaultKeepBackups is how many backups per file survive a cleanup.
const DefaultKeepBackups = 5

const backupInfix = ".backup_"

// BackupManager keeps timestamped copies of files before they are rewritten.
type BackupManager struct {
	backupDir string
	now       func() time.Time
}

// NewBackupManager creates a BackupManager.
// If backupDir is empty, backups are created next to the original file.
func NewBackupManager(backupDir string) *BackupManager {
	return &BackupManager{
		backupDir: backupDir,
		now:       time.Now,
	}
}

func (m *BackupManager) dirFor(path string) string {
	if m.backupDir != "" {
		return m.backupDir
	}
	return filepath.Dir(path)
}

// CreateBackup copies path into the backup directory and returns the
// backup path. Names sort chronologically; a clash within the same
// timestamp gets a numeric suffix.
func (m *BackupManager) CreateBackup(path string) (string, error) {
	logger.Debug("creating backup", logger.String("path", path))

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", types.NewAppErrorWithDetails(types.ErrFileNotFound, "file does not exist", path, err)
	}

	dir := m.dirFor(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create backup directory", err)
		return "", types.NewAppError(types.ErrInternal, "failed to create backup directory", err)
	}

	stamp := m.now().Format("20060102_150405.000")
	base := filepath.Join(dir, filepath.Base(path)+backupInfix+stamp)
	backupPath := base
	for i := 1; ; i++ {
		if _, err := os.Stat(backupPath); os.IsNotExist(err) {
			break
		}
		backupPath = fmt.Sprintf("%s_%d", base, i)
	}

	if err := copyFile(path, backupPath); err != nil {
		logger.Error("failed to copy file", err)
		return "", types.NewAppError(types.ErrInternal, "failed to create backup", err)
	}

	logger.Debug("backup created", logger.String("backupPath", backupPath))
	return backupPath, nil
}

// Restore copies a backup over the original file.
func (m *BackupManager) Restore(backupPath string, originalPath string) error {
	logger.Debug("restoring from backup",
		logger.String("backupPath", backupPath),
		logger.String("originalPath", originalPath))

	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		return types.NewAppErrorWithDetails(types.ErrFileNotFound, "backup file does not exist", backupPath, err)
	}
	if err := copyFile(backupPath, originalPath); err != nil {
		logger.Error("failed to restore backup", err)
		return types.NewAppError(types.ErrInternal, "failed to restore backup", err)
	}

	logger.Info("file restored from backup", logger.String("path", originalPath))
	return nil
}

// ListBackups lists the backups of path, newest first.
func (m *BackupManager) ListBackups(path string) ([]string, error) {
	dir := m.dirFor(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrInternal, "failed to read backup directory", err)
	}

	prefix := filepath.Base(path) + backupInfix
	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// LatestBackup returns the most recent backup of path.
func (m *BackupManager) LatestBackup(path string) (string, error) {
	backups, err := m.ListBackups(path)
	if err != nil {
		return "", err
	}
	if len(backups) == 0 {
		return "", types.NewAppErrorWithDetails(types.ErrFileNotFound, "no backups found", path, nil)
	}
	return backups[0], nil
}

// CleanupBackups removes old backups, keeping the keepCount most recent.
func (m *BackupManager) CleanupBackups(path string, keepCount int) error {
	backups, err := m.ListBackups(path)
	if err != nil {
		return err
	}

	removed := 0
	for i := keepCount; i < len(backups); i++ {
		if err := os.Remove(backups[i]); err != nil {
			logger.Warn("failed to remove backup", logger.Err(err), logger.String("path", backups[i]))
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Debug("backup cleanup completed",
			logger.String("path", path),
			logger.Int("removed", removed))
	}
	return nil
}

// copyFile copies src to dst, keeping the source permissions.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}
	if err := destFile.Sync(); err != nil {
		return err
	}

	sourceInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, sourceInfo.Mode())
}
