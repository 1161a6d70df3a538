// Package access resolves which files a user may see.
//
// Visibility follows the chain user → group membership → access level →
// file assignment, with file ownership as a second, independent grant.
// Resolution always runs against the live tables; the materialized
// per-user cache in cache.go only ever mirrors what Resolve returns.
package access

import (
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/db/models"
)

// Query returns a files relation filtered to what the user may see.
// Admins see everything. The same relation backs both the count and the
// data page of a search so the two can never disagree.
func Query(db *gorm.DB, userID uint64, isAdmin bool) *gorm.DB {
	if isAdmin {
		return db.Model(&models.File{})
	}

	granted := db.Model(&models.FileAccessLevel{}).
		Select("file_access_levels.file_id").
		Joins("JOIN group_access_levels ON group_access_levels.access_level_id = file_access_levels.access_level_id").
		Joins("JOIN user_groups ON user_groups.group_id = group_access_levels.group_id").
		Where("user_groups.user_id = ?", userID)

	return db.Model(&models.File{}).
		Where("files.uploaded_by_user_id = ? OR files.id IN (?)", userID, granted)
}

// Resolve returns the IDs of every file the user may see, ascending.
func Resolve(db *gorm.DB, userID uint64, isAdmin bool) ([]uint64, error) {
	var ids []uint64
	err := Query(db, userID, isAdmin).
		Distinct("files.id").
		Order("files.id").
		Pluck("files.id", &ids).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to resolve accessible files")
	}

	return ids, nil
}

// CanAccess reports whether the user may see the file, resolved against
// the live tables rather than the cache.
func CanAccess(db *gorm.DB, userID uint64, isAdmin bool, fileID uint64) (bool, error) {
	if isAdmin {
		return true, nil
	}

	var count int64
	err := Query(db, userID, isAdmin).Where("files.id = ?", fileID).Count(&count).Error
	if err != nil {
		return false, apperr.Internal(err, "failed to check file access")
	}

	return count > 0, nil
}
