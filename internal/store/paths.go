package store

import (
	"fmt"
	"path/filepath"

	"github.com/promptforge/promptstore/internal/config"
)

// paths resolves on-disk locations for every record kind. Pure functions
// of the configured roots; nothing here touches the filesystem.
type paths struct {
	dataRoot   string
	backupRoot string
}

func newPaths(cfg config.StorageConfig) paths {
	return paths{
		dataRoot:   cfg.DataPath,
		backupRoot: cfg.BackupPath,
	}
}

func (p paths) usersDir() string {
	return filepath.Join(p.dataRoot, "users")
}

func (p paths) usageDir() string {
	return filepath.Join(p.dataRoot, "usage")
}

func (p paths) locksDir() string {
	return filepath.Join(p.dataRoot, "locks")
}

// userFile is users/<userID>.json
func (p paths) userFile(userID string) string {
	return filepath.Join(p.usersDir(), userID+".json")
}

// usageFile is usage/<userID>-<YYYY-MM>.json, one file per user per month
func (p paths) usageFile(userID, month string) string {
	return filepath.Join(p.usageDir(), fmt.Sprintf("%s-%s.json", userID, month))
}

// lockFile maps a data file to its lock sentinel under locks/
func (p paths) lockFile(target string) string {
	return filepath.Join(p.locksDir(), filepath.Base(target)+".lock")
}

func (p paths) backupDir(backupID string) string {
	return filepath.Join(p.backupRoot, backupID)
}

func (p paths) backupManifest(backupID string) string {
	return filepath.Join(p.backupDir(backupID), "backup-info.json")
}

// stagingDir is the scratch area restore assembles into before the swap
func (p paths) stagingDir() string {
	return filepath.Join(p.dataRoot, ".restore-staging")
}
