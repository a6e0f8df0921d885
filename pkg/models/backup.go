package models

import "time"

// BackupInfo describes one backup snapshot. Written into the snapshot
// directory at backup time and read back by restore and the listing.
type BackupInfo struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"size_bytes"`
	UserCount   int       `json:"user_count"`
	Description string    `json:"description,omitempty"`
}

// StorageStats is the consolidated storage statistics shape
type StorageStats struct {
	TotalUsers        int        `json:"total_users"`
	ActiveUsers       int        `json:"active_users"`
	TotalUsageRecords int        `json:"total_usage_records"`
	DataSizeBytes     int64      `json:"data_size_bytes"`
	CacheHitRate      float64    `json:"cache_hit_rate"`
	LastBackupAt      *time.Time `json:"last_backup_at,omitempty"`
}
