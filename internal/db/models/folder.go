package models

import "time"

// Folder represents a directory in the document tree.
// Path is a materialized list of ancestor IDs; keeping it in sync on every
// move is a hard invariant of the folder update path, because folder
// visibility resolution matches against it.
type Folder struct {
	// ID is the unique identifier for the folder.
	ID uint64 `gorm:"primaryKey"`
	// Name is the display name of the folder.
	Name string `gorm:"size:255;not null"`
	// ParentID is the containing folder, nil for a root folder.
	ParentID *uint64 `gorm:"column:parent_id;index"`
	// Path is the materialized ancestor path including this folder,
	// e.g. "/3/17/" for folder 17 under root folder 3.
	Path string `gorm:"size:512;not null"`
	// CreatedByUserID is the ID of the user who created the folder.
	CreatedByUserID uint64 `gorm:"column:created_by_user_id;index;not null"`
	// CreatedAt is the timestamp when the folder was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the folder was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Folder model.
func (Folder) TableName() string {
	return "folders"
}
