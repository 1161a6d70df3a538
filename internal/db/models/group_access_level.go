package models

import "time"

// GroupAccessLevel represents the many-to-many relationship between groups
// and access levels. The composite primary key enforces at most one row per
// (group, access level) pair.
type GroupAccessLevel struct {
	// GroupID is the ID of the group in this assignment.
	GroupID uint `gorm:"primaryKey;column:group_id"`
	// AccessLevelID is the ID of the assigned access level.
	AccessLevelID uint `gorm:"primaryKey;column:access_level_id;index"`
	// Group is the associated group (loaded via foreign key).
	// When a group is deleted, all its access level assignments are automatically removed (CASCADE).
	Group Group `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	// AccessLevel is the associated access level (loaded via foreign key).
	// When an access level is deleted, all its group assignments are automatically removed (CASCADE).
	AccessLevel AccessLevel `gorm:"foreignKey:AccessLevelID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the assignment was created (managed by GORM).
	CreatedAt time.Time
}

// TableName specifies the database table name for the GroupAccessLevel model.
func (GroupAccessLevel) TableName() string {
	return "group_access_levels"
}
