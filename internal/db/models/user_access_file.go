package models

import "time"

// UserAccessFile is the materialized per-user access cache: one row per
// precomputed "user can see this file" fact. It must equal the true access
// resolution for that user as of the last refresh. Staleness between
// refreshes is tolerated, but the cache is never authoritative for
// authorization decisions; sensitive operations re-check ownership and role.
type UserAccessFile struct {
	// UserID is the ID of the user the cached fact belongs to.
	// Indexed separately so membership checks for one user are O(1) lookups.
	UserID uint64 `gorm:"primaryKey;column:user_id;index"`
	// FileID is the ID of the accessible file.
	FileID uint64 `gorm:"primaryKey;column:file_id"`
	// RefreshedAt is the timestamp of the refresh that wrote this row.
	RefreshedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the database table name for the UserAccessFile model.
func (UserAccessFile) TableName() string {
	return "user_access_files"
}
