package models

import "time"

// FileAccessLevel represents the many-to-many relationship between files and
// access levels. The composite primary key enforces at most one row per
// (file, access level) pair.
type FileAccessLevel struct {
	// FileID is the ID of the file in this assignment.
	FileID uint64 `gorm:"primaryKey;column:file_id"`
	// AccessLevelID is the ID of the assigned access level.
	AccessLevelID uint `gorm:"primaryKey;column:access_level_id;index"`
	// File is the associated file (loaded via foreign key).
	// When a file is deleted, all its access level assignments are automatically removed (CASCADE).
	File File `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE"`
	// AccessLevel is the associated access level (loaded via foreign key).
	// When an access level is deleted, all its file assignments are automatically removed (CASCADE).
	AccessLevel AccessLevel `gorm:"foreignKey:AccessLevelID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the assignment was created (managed by GORM).
	CreatedAt time.Time
}

// TableName specifies the database table name for the FileAccessLevel model.
func (FileAccessLevel) TableName() string {
	return "file_access_levels"
}
