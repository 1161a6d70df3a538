// Package folder provides persistence operations for the folder tree.
//
// Each folder carries a materialized path of ancestor IDs ("/3/17/") so
// subtree queries reduce to a LIKE on a single column. Every operation that
// changes a folder's place in the tree rewrites the paths of the folder,
// its descendant folders and the folder_path column of contained files in
// the same transaction.
package folder

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/db/models"
)

// Create inserts a folder under parentID (nil for a root folder). The row is
// inserted first to obtain an ID, then its materialized path is written in
// the same transaction.
func Create(db *gorm.DB, name string, parentID *uint64, createdBy uint64) (*models.Folder, error) {
	var f *models.Folder

	err := db.Transaction(func(tx *gorm.DB) error {
		parentPath := "/"
		if parentID != nil {
			parent, err := getByID(tx, *parentID)
			if err != nil {
				return err
			}

			parentPath = parent.Path
		}

		f = &models.Folder{
			Name:            name,
			ParentID:        parentID,
			CreatedByUserID: createdBy,
		}

		if err := tx.Create(f).Error; err != nil {
			return apperr.Internal(err, "failed to create folder")
		}

		f.Path = fmt.Sprintf("%s%d/", parentPath, f.ID)

		if err := tx.Model(f).Update("path", f.Path).Error; err != nil {
			return apperr.Internal(err, "failed to set folder path")
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return f, nil
}

// GetByID retrieves a folder by its ID.
func GetByID(db *gorm.DB, id uint64) (*models.Folder, error) {
	return getByID(db, id)
}

func getByID(db *gorm.DB, id uint64) (*models.Folder, error) {
	var f models.Folder
	if err := db.First(&f, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("folder")
		}

		return nil, apperr.Internal(err, "failed to load folder")
	}

	return &f, nil
}

// Children returns the direct subfolders of parentID, or the root folders
// when parentID is nil.
func Children(db *gorm.DB, parentID *uint64) ([]models.Folder, error) {
	var folders []models.Folder

	q := db.Order("name")
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}

	if err := q.Find(&folders).Error; err != nil {
		return nil, apperr.Internal(err, "failed to list folders")
	}

	return folders, nil
}

// Rename changes a folder's name. Only the creator or an admin may do this.
func Rename(db *gorm.DB, id, userID uint64, isAdmin bool, name string) (*models.Folder, error) {
	f, err := getByID(db, id)
	if err != nil {
		return nil, err
	}

	if !isAdmin && f.CreatedByUserID != userID {
		return nil, apperr.Forbidden("only the creator or an admin may modify a folder")
	}

	f.Name = name

	if err := db.Save(f).Error; err != nil {
		return nil, apperr.Internal(err, "failed to update folder")
	}

	return f, nil
}

// Move reparents a folder and rewrites the materialized paths of the folder,
// every descendant folder and the folder_path of every file stored anywhere
// in the moved subtree, all inside one transaction. Moving a folder into its
// own subtree is rejected.
func Move(db *gorm.DB, id, userID uint64, isAdmin bool, newParentID *uint64) (*models.Folder, error) {
	var moved *models.Folder

	err := db.Transaction(func(tx *gorm.DB) error {
		f, err := getByID(tx, id)
		if err != nil {
			return err
		}

		if !isAdmin && f.CreatedByUserID != userID {
			return apperr.Forbidden("only the creator or an admin may move a folder")
		}

		parentPath := "/"
		if newParentID != nil {
			if *newParentID == id {
				return apperr.New(apperr.KindConflict, "cannot move a folder into itself")
			}

			parent, err := getByID(tx, *newParentID)
			if err != nil {
				return err
			}

			if strings.HasPrefix(parent.Path, f.Path) {
				return apperr.New(apperr.KindConflict, "cannot move a folder into its own subtree")
			}

			parentPath = parent.Path
		}

		oldPath := f.Path
		newPath := fmt.Sprintf("%s%d/", parentPath, f.ID)

		updates := map[string]interface{}{"parent_id": newParentID, "path": newPath}
		if err := tx.Model(&models.Folder{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return apperr.Internal(err, "failed to move folder")
		}

		if err := rewritePaths(tx, oldPath, newPath); err != nil {
			return err
		}

		f.ParentID = newParentID
		f.Path = newPath
		moved = f

		return nil
	})
	if err != nil {
		return nil, err
	}

	return moved, nil
}

// rewritePaths replaces the oldPath prefix with newPath on every descendant
// folder and on the folder_path of every file under the subtree.
func rewritePaths(tx *gorm.DB, oldPath, newPath string) error {
	var descendants []models.Folder
	if err := tx.Where("path LIKE ? AND path <> ?", oldPath+"%", newPath).Find(&descendants).Error; err != nil {
		return apperr.Internal(err, "failed to load descendant folders")
	}

	for _, d := range descendants {
		if d.Path == newPath {
			continue
		}

		rewritten := newPath + strings.TrimPrefix(d.Path, oldPath)
		if err := tx.Model(&models.Folder{}).Where("id = ?", d.ID).Update("path", rewritten).Error; err != nil {
			return apperr.Internal(err, "failed to rewrite descendant folder path")
		}
	}

	var files []models.File
	if err := tx.Where("folder_path LIKE ?", oldPath+"%").Find(&files).Error; err != nil {
		return apperr.Internal(err, "failed to load files under folder")
	}

	for _, fl := range files {
		rewritten := newPath + strings.TrimPrefix(fl.FolderPath, oldPath)
		if err := tx.Model(&models.File{}).Where("id = ?", fl.ID).Update("folder_path", rewritten).Error; err != nil {
			return apperr.Internal(err, "failed to rewrite file folder path")
		}
	}

	return nil
}

// Delete removes an empty folder. Folders that still contain files or
// subfolders are rejected so nothing is orphaned silently.
func Delete(db *gorm.DB, id, userID uint64, isAdmin bool) error {
	return db.Transaction(func(tx *gorm.DB) error {
		f, err := getByID(tx, id)
		if err != nil {
			return err
		}

		if !isAdmin && f.CreatedByUserID != userID {
			return apperr.Forbidden("only the creator or an admin may delete a folder")
		}

		var subfolders int64
		if err := tx.Model(&models.Folder{}).Where("parent_id = ?", id).Count(&subfolders).Error; err != nil {
			return apperr.Internal(err, "failed to count subfolders")
		}

		if subfolders > 0 {
			return apperr.New(apperr.KindConflict, "folder still contains subfolders")
		}

		var files int64
		if err := tx.Model(&models.File{}).Where("folder_id = ?", id).Count(&files).Error; err != nil {
			return apperr.Internal(err, "failed to count folder files")
		}

		if files > 0 {
			return apperr.New(apperr.KindConflict, "folder still contains files")
		}

		if err := tx.Delete(&models.Folder{}, id).Error; err != nil {
			return apperr.Internal(err, "failed to delete folder")
		}

		return nil
	})
}
