package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/promptforge/promptstore/internal/metrics"
	"github.com/promptforge/promptstore/pkg/models"
)

const backupTimeFormat = "2006-01-02T15-04-05.000000000Z"

// Backup snapshots the users/ and usage/ trees into a timestamped
// directory under the backup root and writes a manifest inside it. When
// an uploader is attached the snapshot is also pushed off-site; upload
// failure is logged, never fatal.
func (s *Store) Backup(ctx context.Context, description string) (info *models.BackupInfo, err error) {
	start := time.Now()
	defer func() {
		s.observe("backup", "", start, err)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.BackupsTotal.WithLabelValues(status).Inc()
		metrics.BackupDuration.Observe(time.Since(start).Seconds())
	}()

	backupID := "backup-" + time.Now().UTC().Format(backupTimeFormat)
	dir := s.paths.backupDir(backupID)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newError(KindBackupFailed, "backup", backupID, err)
	}
	if err := copyTree(s.paths.usersDir(), filepath.Join(dir, "users")); err != nil {
		os.RemoveAll(dir)
		return nil, newError(KindBackupFailed, "backup", backupID, err)
	}
	if err := copyTree(s.paths.usageDir(), filepath.Join(dir, "usage")); err != nil {
		os.RemoveAll(dir)
		return nil, newError(KindBackupFailed, "backup", backupID, err)
	}

	userIDs, err := s.listUserIDs()
	if err != nil {
		os.RemoveAll(dir)
		return nil, newError(KindBackupFailed, "backup", backupID, err)
	}
	size, err := dirSize(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, newError(KindBackupFailed, "backup", backupID, err)
	}

	info = &models.BackupInfo{
		ID:          backupID,
		CreatedAt:   time.Now().UTC(),
		Path:        dir,
		SizeBytes:   size,
		UserCount:   len(userIDs),
		Description: description,
	}

	// Manifest is plain JSON so a snapshot is inspectable without the key
	manifest, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		os.RemoveAll(dir)
		return nil, newError(KindBackupFailed, "backup", backupID, err)
	}
	if err := atomicWrite(s.paths.backupManifest(backupID), manifest); err != nil {
		os.RemoveAll(dir)
		return nil, newError(KindBackupFailed, "backup", backupID, err)
	}

	s.log.LogBackupEvent(backupID, "created", info.SizeBytes, info.UserCount, nil)

	if s.uploader != nil {
		if upErr := s.uploader.UploadBackup(ctx, backupID, dir); upErr != nil {
			s.log.LogBackupEvent(backupID, "upload_failed", info.SizeBytes, info.UserCount, upErr)
		} else {
			s.log.LogBackupEvent(backupID, "uploaded", info.SizeBytes, info.UserCount, nil)
		}
	}
	return info, nil
}

// Restore replaces the live dataset with a backup snapshot. The snapshot
// is copied into a staging directory first, then the users and usage
// subtrees are swapped in by rename, with rollback if a swap fails.
// Each subtree lands atomically; a crash between the two swaps can leave
// one subtree restored and the other not, but never a half-copied tree.
// Both caches are cleared afterwards.
func (s *Store) Restore(ctx context.Context, backupID string) (err error) {
	start := time.Now()
	defer func() {
		s.observe("restore", backupID, start, err)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RestoresTotal.WithLabelValues(status).Inc()
	}()

	manifest, err := safeReadFile(s.paths.backupManifest(backupID))
	if err != nil {
		return newError(KindRestoreFailed, "restore", backupID, err)
	}
	if manifest == nil {
		return newError(KindRestoreFailed, "restore", backupID, fmt.Errorf("backup manifest not found"))
	}
	var info models.BackupInfo
	if err := json.Unmarshal(manifest, &info); err != nil {
		return newError(KindRestoreFailed, "restore", backupID, err)
	}

	staging := s.paths.stagingDir()
	os.RemoveAll(staging)
	defer os.RemoveAll(staging)

	backupDir := s.paths.backupDir(backupID)
	if err := copyTree(filepath.Join(backupDir, "users"), filepath.Join(staging, "users")); err != nil {
		return newError(KindRestoreFailed, "restore", backupID, err)
	}
	if err := copyTree(filepath.Join(backupDir, "usage"), filepath.Join(staging, "usage")); err != nil {
		return newError(KindRestoreFailed, "restore", backupID, err)
	}

	for _, subtree := range []string{"users", "usage"} {
		live := filepath.Join(s.paths.dataRoot, subtree)
		staged := filepath.Join(staging, subtree)
		old := live + ".old"

		os.RemoveAll(old)
		if err := os.Rename(live, old); err != nil && !os.IsNotExist(err) {
			return newError(KindRestoreFailed, "restore", backupID, err)
		}
		if err := os.Rename(staged, live); err != nil {
			// Put the previous tree back before reporting failure
			os.Rename(old, live)
			return newError(KindRestoreFailed, "restore", backupID, err)
		}
		os.RemoveAll(old)
	}

	s.users.clear()
	s.usage.clear()

	s.log.LogBackupEvent(backupID, "restored", info.SizeBytes, info.UserCount, nil)
	return nil
}

// ListBackups enumerates backup manifests, newest first
func (s *Store) ListBackups(ctx context.Context) (backups []*models.BackupInfo, err error) {
	defer func(start time.Time) { s.observe("listBackups", "", start, err) }(time.Now())

	entries, err := os.ReadDir(s.paths.backupRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, newError(KindIO, "listBackups", s.paths.backupRoot, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "backup-") {
			continue
		}
		manifest, err := safeReadFile(s.paths.backupManifest(entry.Name()))
		if err != nil || manifest == nil {
			continue
		}
		var info models.BackupInfo
		if err := json.Unmarshal(manifest, &info); err != nil {
			continue
		}
		backups = append(backups, &info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// copyTree recursively copies src into dst. A missing src is treated as
// an empty tree; dst is still created.
func copyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
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

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// dirSize sums file sizes under a directory
func dirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}
