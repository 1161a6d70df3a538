package models

import "time"

// AccessLevel represents a named permission tag bridging groups and files.
// It is an independent entity: groups and files reference it through their
// association tables but never own it.
type AccessLevel struct {
	// ID is the unique identifier for the access level.
	ID uint `gorm:"primaryKey"`
	// Name is the unique display name of the access level.
	Name string `gorm:"unique;size:100;not null"`
	// Description provides a human-readable explanation of what this level grants.
	Description string `gorm:"size:255"`
	// IsDefault marks the level applied to new files when none is chosen.
	IsDefault bool `gorm:"not null;default:false"`
	// CreatedByUserID is the ID of the user who created the level.
	CreatedByUserID uint64 `gorm:"column:created_by_user_id"`
	// CreatedAt is the timestamp when the level was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the level was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the AccessLevel model.
func (AccessLevel) TableName() string {
	return "access_levels"
}
