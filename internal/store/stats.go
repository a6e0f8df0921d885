package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/promptforge/promptstore/internal/metrics"
	"github.com/promptforge/promptstore/pkg/models"
)

// GetStorageStats reports the consolidated storage statistics: record
// totals, active users, combined cache hit rate, on-disk size, and the
// newest backup time.
func (s *Store) GetStorageStats(ctx context.Context) (stats *models.StorageStats, err error) {
	defer func(start time.Time) { s.observe("getStorageStats", "", start, err) }(time.Now())

	users, err := s.loadAllUsers()
	if err != nil {
		return nil, err
	}

	active := 0
	for _, u := range users {
		if u.IsActive {
			active++
		}
	}

	usageFiles, err := filepath.Glob(filepath.Join(s.paths.usageDir(), "*.json"))
	if err != nil {
		return nil, newError(KindIO, "getStorageStats", s.paths.usageDir(), err)
	}

	// Only the live record trees count; locks, staging leftovers and
	// nested backup snapshots would inflate the number
	var size int64
	for _, dir := range []string{s.paths.usersDir(), s.paths.usageDir()} {
		n, err := dirSize(dir)
		if err != nil {
			return nil, newError(KindIO, "getStorageStats", dir, err)
		}
		size += n
	}

	stats = &models.StorageStats{
		TotalUsers:        len(users),
		ActiveUsers:       active,
		TotalUsageRecords: len(usageFiles),
		DataSizeBytes:     size,
		CacheHitRate:      s.cacheHitRate(),
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return nil, err
	}
	if len(backups) > 0 {
		last := backups[0].CreatedAt
		stats.LastBackupAt = &last
	}

	metrics.UsersTotal.Set(float64(stats.TotalUsers))
	metrics.DataSizeBytes.Set(float64(stats.DataSizeBytes))
	return stats, nil
}

// cacheHitRate combines both caches' counters into one rate
func (s *Store) cacheHitRate() float64 {
	hits := s.users.hits.Load() + s.usage.hits.Load()
	total := hits + s.users.misses.Load() + s.usage.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// HealthStatus is the health check report. Issues are human-readable.
type HealthStatus struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`
}

// HealthCheck verifies the data and backup directories are reachable and
// writable by writing and removing a probe file in each. It reports
// issues instead of failing; it never returns an error.
func (s *Store) HealthCheck(ctx context.Context) HealthStatus {
	var issues []string

	for _, dir := range []string{s.paths.dataRoot, s.paths.backupRoot} {
		if info, err := os.Stat(dir); err != nil {
			issues = append(issues, fmt.Sprintf("directory %s is not reachable: %v", dir, err))
			continue
		} else if !info.IsDir() {
			issues = append(issues, fmt.Sprintf("%s is not a directory", dir))
			continue
		}

		probe := filepath.Join(dir, ".health-probe")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			issues = append(issues, fmt.Sprintf("directory %s is not writable: %v", dir, err))
			continue
		}
		os.Remove(probe)
	}

	return HealthStatus{Healthy: len(issues) == 0, Issues: issues}
}

// DataReport summarizes a full validation sweep over the dataset
type DataReport struct {
	UsersChecked int      `json:"users_checked"`
	UsageChecked int      `json:"usage_checked"`
	Issues       []string `json:"issues,omitempty"`
}

// ValidateData re-validates every persisted record and flags usage files
// whose owner no longer exists. Unreadable files are reported as issues,
// not failures.
func (s *Store) ValidateData(ctx context.Context) (report *DataReport, err error) {
	defer func(start time.Time) { s.observe("validateData", "", start, err) }(time.Now())

	report = &DataReport{}
	known := make(map[string]bool)

	ids, err := s.listUserIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		user, err := s.readUserFile(id)
		if err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("user %s: unreadable: %v", id, err))
			continue
		}
		report.UsersChecked++
		known[id] = true
		if res := ValidateUser(user); !res.Valid {
			for _, msg := range res.Errors {
				report.Issues = append(report.Issues, fmt.Sprintf("user %s: %s", id, msg))
			}
		}
		if user.ID != id {
			report.Issues = append(report.Issues, fmt.Sprintf("user %s: file name does not match record id %s", id, user.ID))
		}
	}

	usageFiles, err := filepath.Glob(filepath.Join(s.paths.usageDir(), "*.json"))
	if err != nil {
		return nil, newError(KindIO, "validateData", s.paths.usageDir(), err)
	}
	for _, path := range usageFiles {
		payload, err := safeReadFile(path)
		if err != nil || payload == nil {
			report.Issues = append(report.Issues, fmt.Sprintf("usage file %s: unreadable", filepath.Base(path)))
			continue
		}
		var record monthRecord
		if err := s.decode(payload, &record); err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("usage file %s: undecodable: %v", filepath.Base(path), err))
			continue
		}
		if !known[record.UserID] {
			report.Issues = append(report.Issues, fmt.Sprintf("usage file %s: owner %s does not exist", filepath.Base(path), record.UserID))
		}
		for _, day := range record.Days {
			report.UsageChecked++
			if res := ValidateUsage(day); !res.Valid {
				for _, msg := range res.Errors {
					report.Issues = append(report.Issues, fmt.Sprintf("usage %s %s: %s", record.UserID, day.Date, msg))
				}
			}
		}
	}

	return report, nil
}
