// Package file provides persistence operations for uploaded documents.
package file

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/db/assoc"
	"github.com/docvault/docvault/internal/db/dberr"
	"github.com/docvault/docvault/internal/db/models"
)

// levelsDef describes the file↔access-level association.
var levelsDef = assoc.Def{
	Table:         models.FileAccessLevel{}.TableName(),
	OwnerColumn:   "file_id",
	ForeignColumn: "access_level_id",
	ForeignTable:  models.AccessLevel{}.TableName(),
}

// Create inserts a new file row.
func Create(db *gorm.DB, f *models.File) error {
	if err := db.Create(f).Error; err != nil {
		return apperr.Internal(err, "failed to create file record")
	}

	return nil
}

// GetByID retrieves a file by its ID.
func GetByID(db *gorm.DB, id uint64) (*models.File, error) {
	var f models.File
	if err := db.First(&f, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("file")
		}

		return nil, apperr.Internal(err, "failed to load file")
	}

	return &f, nil
}

// Rename changes a file's display name. Only the owner or an admin may do
// this; the check runs against the database row, never the access cache.
func Rename(db *gorm.DB, id, userID uint64, isAdmin bool, name string) (*models.File, error) {
	f, err := GetByID(db, id)
	if err != nil {
		return nil, err
	}

	if !isAdmin && f.UploadedByUserID != userID {
		return nil, apperr.Forbidden("only the owner or an admin may modify a file")
	}

	f.OriginalName = name

	if err := db.Save(f).Error; err != nil {
		return nil, apperr.Internal(err, "failed to update file")
	}

	return f, nil
}

// SetExtraction records the outcome of the extraction stage.
func SetExtraction(db *gorm.DB, id uint64, text string, status models.ProcessingStatus, errMsg string) error {
	res := db.Model(&models.File{}).Where("id = ?", id).Updates(map[string]interface{}{
		"extracted_text": text,
		"status":         status,
		"error_message":  errMsg,
	})
	if res.Error != nil {
		return apperr.Internal(res.Error, "failed to record extraction result")
	}

	if res.RowsAffected == 0 {
		return apperr.NotFound("file")
	}

	return nil
}

// Delete removes a file row after an owner/admin check and returns the
// storage path so the caller can remove the stored bytes.
func Delete(db *gorm.DB, id, userID uint64, isAdmin bool) (string, error) {
	f, err := GetByID(db, id)
	if err != nil {
		return "", err
	}

	if !isAdmin && f.UploadedByUserID != userID {
		return "", apperr.Forbidden("only the owner or an admin may delete a file")
	}

	if err := db.Delete(&models.File{}, id).Error; err != nil {
		return "", apperr.Internal(err, "failed to delete file")
	}

	// cascading association and cache cleanup for engines without FK enforcement
	if err := db.Where("file_id = ?", id).Delete(&models.FileAccessLevel{}).Error; err != nil {
		return "", apperr.Internal(err, "failed to delete file access levels")
	}

	if err := db.Where("file_id = ?", id).Delete(&models.UserAccessFile{}).Error; err != nil {
		return "", apperr.Internal(err, "failed to delete cached access rows")
	}

	return f.StoragePath, nil
}

// SetAccessLevels makes the file's assigned access levels equal the valid
// subset of levelIDs. Call sites wrap this in retry.Do.
func SetAccessLevels(tx *gorm.DB, fileID uint64, levelIDs []uint) (assoc.Result, error) {
	var count int64
	if err := tx.Model(&models.File{}).Where("id = ?", fileID).Count(&count).Error; err != nil {
		return assoc.Result{}, apperr.Internal(err, "failed to check file existence")
	}

	if count == 0 {
		return assoc.Result{}, apperr.NotFound("file")
	}

	res, err := assoc.Reconcile(tx, levelsDef, fileID, levelIDs)
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return res, apperr.Wrap(apperr.KindConflict, err, "failed to reconcile file access levels")
		}

		return res, err
	}

	return res, nil
}

// AccessLevels returns the access levels assigned to the file.
func AccessLevels(db *gorm.DB, fileID uint64) ([]models.AccessLevel, error) {
	if _, err := GetByID(db, fileID); err != nil {
		return nil, err
	}

	var levels []models.AccessLevel
	err := db.Model(&models.AccessLevel{}).
		Joins("JOIN file_access_levels ON file_access_levels.access_level_id = access_levels.id").
		Where("file_access_levels.file_id = ?", fileID).
		Order("access_levels.name").
		Find(&levels).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to load file access levels")
	}

	return levels, nil
}
