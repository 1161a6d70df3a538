// Package accesslevel provides CRUD operations for named access levels.
package accesslevel

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/db/dberr"
	"github.com/docvault/docvault/internal/db/models"
)

// Create creates a new access level. A duplicate name surfaces as a conflict.
func Create(db *gorm.DB, name, description string, isDefault bool, createdBy uint64) (*models.AccessLevel, error) {
	level := &models.AccessLevel{
		Name:            name,
		Description:     description,
		IsDefault:       isDefault,
		CreatedByUserID: createdBy,
	}

	if err := db.Create(level).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, err, "access level name already exists")
		}

		return nil, apperr.Internal(err, "failed to create access level")
	}

	return level, nil
}

// GetByID retrieves an access level by its ID.
func GetByID(db *gorm.DB, id uint) (*models.AccessLevel, error) {
	var level models.AccessLevel
	if err := db.First(&level, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("access level")
		}

		return nil, apperr.Internal(err, "failed to load access level")
	}

	return &level, nil
}

// GetAll retrieves all access levels ordered by name.
func GetAll(db *gorm.DB) ([]models.AccessLevel, error) {
	var levels []models.AccessLevel
	if err := db.Order("name").Find(&levels).Error; err != nil {
		return nil, apperr.Internal(err, "failed to load access levels")
	}

	return levels, nil
}

// Defaults retrieves the access levels flagged is_default, applied to new
// files when the uploader picks none.
func Defaults(db *gorm.DB) ([]models.AccessLevel, error) {
	var levels []models.AccessLevel
	if err := db.Where("is_default = ?", true).Find(&levels).Error; err != nil {
		return nil, apperr.Internal(err, "failed to load default access levels")
	}

	return levels, nil
}

// Update changes an access level's name, description or default flag.
func Update(db *gorm.DB, id uint, name, description string, isDefault bool) (*models.AccessLevel, error) {
	level, err := GetByID(db, id)
	if err != nil {
		return nil, err
	}

	level.Name = name
	level.Description = description
	level.IsDefault = isDefault

	if err := db.Save(level).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, err, "access level name already exists")
		}

		return nil, apperr.Internal(err, "failed to update access level")
	}

	return level, nil
}

// Delete removes an access level. Group and file assignments cascade.
func Delete(db *gorm.DB, id uint) error {
	res := db.Delete(&models.AccessLevel{}, id)
	if res.Error != nil {
		return apperr.Internal(res.Error, "failed to delete access level")
	}

	if res.RowsAffected == 0 {
		return apperr.NotFound("access level")
	}

	// cascading association cleanup for engines without FK enforcement
	if err := db.Where("access_level_id = ?", id).Delete(&models.GroupAccessLevel{}).Error; err != nil {
		return apperr.Internal(err, "failed to delete group assignments")
	}

	if err := db.Where("access_level_id = ?", id).Delete(&models.FileAccessLevel{}).Error; err != nil {
		return apperr.Internal(err, "failed to delete file assignments")
	}

	return nil
}
